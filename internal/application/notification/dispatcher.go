// Package notification sends order confirmations to customers without
// holding up checkout.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domnotif "github.com/Zhima-Mochi/freshcut/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	"github.com/Zhima-Mochi/freshcut/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	notificationService = "notification-dispatcher"
	useCaseDeliver      = "notification.deliver"
	channelPeer         = "notification_channel"

	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 10 * time.Second
)

type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
	ShopName    string
	Currency    string
}

// Dispatcher queues confirmation messages and delivers them from a fixed
// pool of workers. Delivery failures are logged and dropped.
type Dispatcher struct {
	channel domnotif.Channel
	cfg     Config
	probe   application.Probe

	mu      sync.RWMutex
	queue   chan domnotif.Message
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	dropped      observability.Counter   // notifications_dropped_total{reason}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewDispatcher(channel domnotif.Channel, cfg Config, tel observability.Observability) *Dispatcher {
	if tel == nil {
		tel = observability.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	m := tel.Metrics()
	return &Dispatcher{
		channel:      channel,
		cfg:          cfg,
		probe:        application.NewProbe(tel, notificationService),
		queue:        make(chan domnotif.Message, cfg.QueueSize),
		dropped:      m.Counter(observability.MNotificationsDropped),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Start launches the worker pool. Cancelling ctx does not stop the workers;
// Stop owns shutdown so queued confirmations are still delivered.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.closed {
		return
	}
	d.running = true
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work(bg)
	}
	d.probe.Logger().Info("notification_dispatcher_started",
		observability.F("workers", d.cfg.Workers),
		observability.F("queue_size", d.cfg.QueueSize),
	)
}

// Stop refuses new messages and waits for queued ones until ctx expires.
// Workers still busy at that point are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	cancel := d.cancel
	d.mu.Unlock()
	if cancel == nil {
		cancel = func() {}
	}
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.probe.Logger().Info("notification_dispatcher_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send enqueues the confirmation for a paid order. It never blocks; a full
// queue drops the message and reports checkout.ErrNotification.
func (d *Dispatcher) Send(ctx context.Context, o *domorder.Order) error {
	msg := d.Confirmation(o)
	if msg.Phone == "" {
		return fmt.Errorf("%w: %w", checkout.ErrNotification, domnotif.ErrNoPhone)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1, observability.L("reason", "closed"))
		return fmt.Errorf("%w: %w", checkout.ErrNotification, domnotif.ErrNotStarted)
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.dropped.Add(1, observability.L("reason", "queue_full"))
		d.probe.Logger().Warn("notification_dropped",
			observability.F("order_id", o.ID),
			observability.F("reason", "queue_full"),
		)
		return fmt.Errorf("%w: %w", checkout.ErrNotification, domnotif.ErrQueueFull)
	}
}

// Confirmation builds the message announcing that o was paid.
func (d *Dispatcher) Confirmation(o *domorder.Order) domnotif.Message {
	shop := d.cfg.ShopName
	if shop == "" {
		shop = "our shop"
	}
	text := fmt.Sprintf("Hi %s, thank you for shopping with %s. Order #%d is confirmed. Amount paid: %s %d. Payment ref: %s.",
		o.Customer.Name, shop, o.Number, d.currency(), o.Total(), o.PaymentRef)
	return domnotif.Message{OrderID: o.ID, Phone: o.Customer.Phone, Text: text}
}

// ShareLink is the click-to-chat link carrying the confirmation text.
func (d *Dispatcher) ShareLink(o *domorder.Order) string {
	m := d.Confirmation(o)
	return domnotif.ShareLink(m.Phone, m.Text)
}

func (d *Dispatcher) currency() string {
	if d.cfg.Currency == "" {
		return "INR"
	}
	return d.cfg.Currency
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.queue:
			if !ok {
				return
			}
			_ = d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg domnotif.Message) (err error) {
	ctx, run := d.probe.Start(ctx, useCaseDeliver, "DeliverNotification",
		attribute.String("order.id", msg.OrderID),
	)
	defer func() { run.End(err) }()

	if d.channel == nil {
		run.Fail("NO_CHANNEL")
		return fmt.Errorf("%w: no channel configured", checkout.ErrNotification)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	start := time.Now()
	err = d.channel.Deliver(sendCtx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	d.extCounter.Add(1,
		observability.L("peer", channelPeer),
		observability.L("endpoint", "deliver"),
		observability.L("outcome", outcome),
	)
	d.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", channelPeer),
		observability.L("endpoint", "deliver"),
	)
	if err != nil {
		run.Fail("DELIVERY_FAILED")
		return fmt.Errorf("%w: %w", checkout.ErrNotification, err)
	}
	return nil
}
