// Package hosted is the server side of a browser-hosted payment widget:
// the page loads the provider script, and outcomes come back over HTTP.
package hosted

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
)

type session struct {
	opts      dompay.Options
	onSuccess func(context.Context, dompay.Response)
	onDismiss func(context.Context)
	openedAt  time.Time
}

// Widget tracks open sessions by order id and delivers reported outcomes
// to their callbacks.
type Widget struct {
	scriptURL string
	client    *http.Client

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewWidget probes scriptURL on Load. An empty scriptURL skips the probe.
func NewWidget(scriptURL string, client *http.Client) *Widget {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Widget{
		scriptURL: scriptURL,
		client:    client,
		sessions:  make(map[string]*session),
	}
}

// Load reports whether the provider script is reachable.
func (w *Widget) Load(ctx context.Context) (bool, error) {
	if w.scriptURL == "" {
		return true, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.scriptURL, nil)
	if err != nil {
		return false, fmt.Errorf("hosted widget: build probe: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("hosted widget: probe %s: %w", w.scriptURL, err)
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400, nil
}

// Open registers the callbacks for opts.OrderID, replacing any earlier session.
func (w *Widget) Open(_ context.Context, opts dompay.Options, onSuccess func(context.Context, dompay.Response), onDismiss func(context.Context)) error {
	if opts.OrderID == "" {
		return fmt.Errorf("hosted widget: order id is required")
	}
	w.mu.Lock()
	w.sessions[opts.OrderID] = &session{
		opts:      opts,
		onSuccess: onSuccess,
		onDismiss: onDismiss,
		openedAt:  time.Now(),
	}
	w.mu.Unlock()
	return nil
}

// Options returns the widget options of the open session for orderID.
func (w *Widget) Options(orderID string) (dompay.Options, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[orderID]
	if !ok {
		return dompay.Options{}, false
	}
	return s.opts, true
}

// DeliverSuccess runs the success callback of orderID's session. The session
// stays open: providers retry and a later delivery must still be handled.
func (w *Widget) DeliverSuccess(ctx context.Context, orderID string, resp dompay.Response) error {
	s, err := w.lookup(orderID)
	if err != nil {
		return err
	}
	if resp.OrderID == "" {
		resp.OrderID = orderID
	}
	if s.onSuccess != nil {
		s.onSuccess(ctx, resp)
	}
	return nil
}

// DeliverDismiss runs the dismiss callback of orderID's session.
func (w *Widget) DeliverDismiss(ctx context.Context, orderID string) error {
	s, err := w.lookup(orderID)
	if err != nil {
		return err
	}
	if s.onDismiss != nil {
		s.onDismiss(ctx)
	}
	return nil
}

// Close forgets orderID's session.
func (w *Widget) Close(orderID string) {
	w.mu.Lock()
	delete(w.sessions, orderID)
	w.mu.Unlock()
}

// Prune drops sessions opened before cutoff and returns how many were removed.
func (w *Widget) Prune(cutoff time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for id, s := range w.sessions {
		if s.openedAt.Before(cutoff) {
			delete(w.sessions, id)
			n++
		}
	}
	return n
}

func (w *Widget) lookup(orderID string) (*session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dompay.ErrSessionNotFound, orderID)
	}
	return s, nil
}
