// Package payment drives the external payment widget for a pending order.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
	"github.com/Zhima-Mochi/freshcut/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService     = "payment-orchestrator"
	useCaseWidgetLoad  = "payment.widget_load"
	useCaseWidgetOpen  = "payment.widget_open"
	useCaseVerify      = "payment.verify"
	widgetPeer         = "payment_widget"
	defaultLoadTimeout = 5 * time.Second
	defaultCurrency    = "INR"
	defaultDescription = "Order"
)

type Config struct {
	KeyID       string
	Currency    string
	ShopName    string
	ThemeColor  string
	LoadTimeout time.Duration
}

// Orchestrator loads and opens the widget and checks what it reports back.
type Orchestrator struct {
	widget   dompay.Widget
	verifier dompay.Verifier
	cfg      Config
	probe    application.Probe

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewOrchestrator(widget dompay.Widget, verifier dompay.Verifier, cfg Config, tel observability.Observability) *Orchestrator {
	if tel == nil {
		tel = observability.Nop()
	}
	if verifier == nil {
		verifier = dompay.TrustingVerifier{}
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	m := tel.Metrics()
	return &Orchestrator{
		widget:       widget,
		verifier:     verifier,
		cfg:          cfg,
		probe:        application.NewProbe(tel, paymentService),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

type loadResult struct {
	ok  bool
	err error
}

// EnsureWidgetLoaded waits at most LoadTimeout for the widget to become
// available. Any failure is reported as checkout.ErrPaymentFailure.
func (o *Orchestrator) EnsureWidgetLoaded(ctx context.Context) (ok bool, err error) {
	ctx, run := o.probe.Start(ctx, useCaseWidgetLoad, "EnsureWidgetLoaded",
		attribute.String("payment.load_timeout", o.cfg.LoadTimeout.String()),
	)
	defer func() { run.End(err) }()

	if o.widget == nil {
		run.Fail("WIDGET_NOT_CONFIGURED")
		return false, fmt.Errorf("%w: %w", checkout.ErrPaymentFailure, dompay.ErrWidgetUnavailable)
	}

	loadCtx, cancel := context.WithTimeout(ctx, o.cfg.LoadTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan loadResult, 1)
	go func() {
		ok, err := o.widget.Load(loadCtx)
		done <- loadResult{ok: ok, err: err}
	}()

	var res loadResult
	select {
	case res = <-done:
	case <-loadCtx.Done():
		res = loadResult{err: loadCtx.Err()}
	}
	o.observe("load", start, res.err == nil && res.ok, loadCtx.Err())

	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		run.Fail("WIDGET_LOAD_TIMEOUT")
		return false, fmt.Errorf("%w: widget did not load within %s", checkout.ErrPaymentFailure, o.cfg.LoadTimeout)
	case res.err != nil:
		run.Fail("WIDGET_LOAD_FAILED")
		return false, fmt.Errorf("%w: %w", checkout.ErrPaymentFailure, res.err)
	case !res.ok:
		run.Fail("WIDGET_UNAVAILABLE")
		return false, fmt.Errorf("%w: %w", checkout.ErrPaymentFailure, dompay.ErrWidgetUnavailable)
	}
	return true, nil
}

// OptionsFor builds the widget session for a pending order.
func (o *Orchestrator) OptionsFor(ord *domorder.Order) dompay.Options {
	desc := defaultDescription
	if o.cfg.ShopName != "" {
		desc = o.cfg.ShopName
	}
	return dompay.Options{
		OrderID:          ord.ID,
		KeyID:            o.cfg.KeyID,
		AmountMinorUnits: dompay.MinorUnits(ord.Total()),
		Currency:         o.cfg.Currency,
		Description:      fmt.Sprintf("%s #%d", desc, ord.Number),
		Prefill: dompay.Prefill{
			Name:  ord.Customer.Name,
			Phone: ord.Customer.Phone,
			Email: ord.Customer.Email,
		},
		Theme: dompay.Theme{Color: o.cfg.ThemeColor},
	}
}

// Open starts a widget session. Callbacks are forwarded as-is; they may run
// zero or more times on any goroutine.
func (o *Orchestrator) Open(ctx context.Context, opts dompay.Options, onSuccess func(context.Context, dompay.Response), onDismiss func(context.Context)) (err error) {
	ctx, run := o.probe.Start(ctx, useCaseWidgetOpen, "OpenWidget",
		attribute.String("order.id", opts.OrderID),
		attribute.Int64("payment.amount_minor", opts.AmountMinorUnits),
		attribute.String("payment.currency", opts.Currency),
	)
	defer func() { run.End(err) }()

	switch {
	case o.widget == nil:
		run.Fail("WIDGET_NOT_CONFIGURED")
		return fmt.Errorf("%w: %w", checkout.ErrPaymentFailure, dompay.ErrWidgetUnavailable)
	case strings.TrimSpace(opts.OrderID) == "":
		run.Fail("ORDER_ID_REQUIRED")
		return checkout.Validation("order id is required")
	case opts.AmountMinorUnits <= 0:
		run.Fail("AMOUNT_INVALID")
		return checkout.Validation("amount must be positive")
	}

	start := time.Now()
	err = o.widget.Open(ctx, opts, onSuccess, onDismiss)
	o.observe("open", start, err == nil, ctx.Err())
	if err != nil {
		run.Fail("WIDGET_OPEN_FAILED")
		return fmt.Errorf("%w: %w", checkout.ErrPaymentFailure, err)
	}
	return nil
}

// Verify corroborates a widget response for orderID.
func (o *Orchestrator) Verify(ctx context.Context, orderID string, resp dompay.Response) (err error) {
	ctx, run := o.probe.Start(ctx, useCaseVerify, "VerifyPayment",
		attribute.String("order.id", orderID),
		attribute.String("payment.ref", resp.PaymentRef),
	)
	defer func() { run.End(err) }()

	if strings.TrimSpace(resp.PaymentRef) == "" {
		run.Fail("PAYMENT_REF_REQUIRED")
		return fmt.Errorf("%w: %w", checkout.ErrUnverifiedPayment, domorder.ErrPaymentRefRequired)
	}
	if resp.OrderID != "" && resp.OrderID != orderID {
		run.Fail("ORDER_ID_MISMATCH")
		return fmt.Errorf("%w: response is for order %s", checkout.ErrUnverifiedPayment, resp.OrderID)
	}
	if err := o.verifier.Verify(ctx, orderID, resp); err != nil {
		run.Fail("VERIFICATION_FAILED")
		return fmt.Errorf("%w: %w", checkout.ErrUnverifiedPayment, err)
	}
	return nil
}

func (o *Orchestrator) observe(endpoint string, start time.Time, ok bool, ctxErr error) {
	outcome := "success"
	switch {
	case ctxErr != nil:
		outcome = "canceled"
	case !ok:
		outcome = "error"
	}
	o.extCounter.Add(1,
		observability.L("peer", widgetPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	o.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", widgetPeer),
		observability.L("endpoint", endpoint),
	)
}
