package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	appcart "github.com/Zhima-Mochi/freshcut/internal/application/cart"
	appinv "github.com/Zhima-Mochi/freshcut/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/freshcut/internal/application/order"
	apppay "github.com/Zhima-Mochi/freshcut/internal/application/payment"
	domcheckout "github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
	"github.com/Zhima-Mochi/freshcut/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	checkoutService = "checkout"
	useCaseStart    = "checkout.start"
	useCaseComplete = "checkout.complete_payment"
	useCaseDismiss  = "checkout.dismiss"
	publishPeer     = "outbox"
	publishTimeout  = 300 * time.Millisecond
	ArtifactPending = "generating"
)

// ShareLinker builds the customer share link shown on the confirmation view.
type ShareLinker interface {
	ShareLink(o *domorder.Order) string
}

type Service struct {
	carts     *appcart.Service
	ledger    *apporder.Ledger
	payments  *apppay.Orchestrator
	inventory *appinv.Adjuster
	publisher domoutbox.Publisher
	links     ShareLinker
	probe     application.Probe

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewService(
	carts *appcart.Service,
	ledger *apporder.Ledger,
	payments *apppay.Orchestrator,
	inventory *appinv.Adjuster,
	publisher domoutbox.Publisher,
	links ShareLinker,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Service{
		carts:        carts,
		ledger:       ledger,
		payments:     payments,
		inventory:    inventory,
		publisher:    publisher,
		links:        links,
		probe:        application.NewProbe(tel, checkoutService),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Started is what the browser needs to open the widget.
type Started struct {
	OrderID string
	Number  int64
	Total   int64
	Options dompay.Options
}

// Start turns the owner's cart into a pending order and opens the payment
// widget for it. If the widget cannot be loaded or opened the order stays
// pending and checkout.ErrPaymentFailure is returned.
func (s *Service) Start(ctx context.Context, owner appcart.Owner, customer domorder.Customer) (out *Started, err error) {
	ctx, run := s.probe.Start(ctx, useCaseStart, "StartCheckout")
	defer func() { run.End(err) }()

	c, err := s.carts.Get(ctx, owner)
	if err != nil {
		run.Fail("CART_LOAD_FAILED")
		return nil, err
	}
	if c.IsEmpty() {
		run.Fail("CART_EMPTY")
		return nil, domcheckout.Validation("cart is empty")
	}

	created, err := s.ledger.CreatePending(ctx, apporder.CreatePendingInput{
		Lines:    c.Snapshot(),
		Customer: customer,
	})
	if err != nil {
		run.Fail("CREATE_PENDING_FAILED")
		return nil, err
	}
	run.Span().SetAttributes(attribute.String("order.id", created.OrderID))
	run.Field("order_id", created.OrderID)

	if _, err := s.payments.EnsureWidgetLoaded(ctx); err != nil {
		run.Fail("WIDGET_LOAD_FAILED")
		return nil, err
	}

	opts := s.payments.OptionsFor(created.Order)
	cc := newCheckoutContext(owner, created.Order, opts)
	if err := s.payments.Open(ctx, opts, s.onSuccess(cc), s.onDismiss(cc)); err != nil {
		run.Fail("WIDGET_OPEN_FAILED")
		return nil, err
	}

	return &Started{
		OrderID: created.OrderID,
		Number:  created.Number,
		Total:   created.Total,
		Options: opts,
	}, nil
}

func (s *Service) onSuccess(cc CheckoutContext) func(context.Context, dompay.Response) {
	return func(ctx context.Context, resp dompay.Response) {
		if _, err := s.complete(ctx, cc, resp); err != nil {
			s.probe.Logger().Warn("payment_callback_failed",
				observability.F("order_id", cc.OrderID),
				observability.F("error", err.Error()),
			)
		}
	}
}

func (s *Service) onDismiss(cc CheckoutContext) func(context.Context) {
	return func(ctx context.Context) {
		_ = s.dismiss(ctx, cc.OrderID)
	}
}

// Result is the outcome of handling one payment confirmation.
type Result struct {
	Order        *domorder.Order
	Transitioned bool
	AlreadyPaid  bool
	// InventoryErr is set when stock could not be adjusted for every line.
	// The order is paid regardless.
	InventoryErr error
}

// CompletePayment handles a success report for orderID. Repeated reports with
// the same reference are answered from the recorded state without side
// effects.
func (s *Service) CompletePayment(ctx context.Context, owner appcart.Owner, orderID string, resp dompay.Response) (*Result, error) {
	o, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, newCheckoutContext(owner, o, dompay.Options{}), resp)
}

func (s *Service) complete(ctx context.Context, cc CheckoutContext, resp dompay.Response) (res *Result, err error) {
	ctx, run := s.probe.Start(ctx, useCaseComplete, "CompletePayment",
		attribute.String("order.id", cc.OrderID),
		attribute.String("payment.ref", resp.PaymentRef),
	)
	defer func() { run.End(err) }()

	if err := s.payments.Verify(ctx, cc.OrderID, resp); err != nil {
		run.Fail("PAYMENT_UNVERIFIED")
		return nil, err
	}

	out, confirmErr := s.ledger.ConfirmPaid(ctx, cc.OrderID, resp.PaymentRef)
	if out == nil {
		run.Fail("CONFIRM_FAILED")
		return nil, confirmErr
	}
	res = &Result{Order: out.Order, Transitioned: out.Transitioned, AlreadyPaid: out.AlreadyPaid}

	// A replay never re-runs the paid side effects, so once the order is paid
	// they must finish even if the caller has gone away. Store and publish
	// timeouts still bound each step.
	ctx = context.WithoutCancel(ctx)

	// Side effects belong to the caller that moved the order to paid, even
	// when the transaction record failed afterwards.
	if out.Transitioned {
		if _, invErr := s.inventory.DecrementOrder(ctx, out.Order); invErr != nil {
			res.InventoryErr = invErr
			run.Status("INVENTORY_NOT_ADJUSTED")
			run.Logger().Error("inventory_adjustment_incomplete",
				observability.F("order_id", cc.OrderID),
				observability.F("needs_reconciliation", true),
				application.ErrField(invErr),
			)
		}
		s.publish(ctx, run, domorder.NewPaidEvent(out.Order))
	} else {
		run.Status("ALREADY_PAID")
	}

	if err := s.carts.Clear(ctx, cc.Owner); err != nil && !errors.Is(err, domcheckout.ErrValidation) {
		run.Field("cart_clear_error", err.Error())
	}

	if confirmErr != nil {
		run.Fail("NEEDS_RECONCILIATION")
		return res, confirmErr
	}
	return res, nil
}

// Dismiss records that the customer closed the widget. The order stays
// pending; the stale-order sweeper or an admin may cancel it later.
func (s *Service) Dismiss(ctx context.Context, orderID string) error {
	return s.dismiss(ctx, orderID)
}

func (s *Service) dismiss(ctx context.Context, orderID string) (err error) {
	ctx, run := s.probe.Start(ctx, useCaseDismiss, "DismissCheckout",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	o, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		run.Fail("ORDER_LOOKUP_FAILED")
		return err
	}
	run.Status("LEFT_" + string(o.Status))
	return nil
}

// Confirmation is the post-payment view of an order.
type Confirmation struct {
	Order       *domorder.Order
	ArtifactRef string
	Generating  bool
	ShareLink   string
}

// Confirmation reports the receipt as ArtifactPending until billing has
// attached one.
func (s *Service) Confirmation(ctx context.Context, orderID string) (*Confirmation, error) {
	o, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	view := &Confirmation{Order: o, ArtifactRef: o.BillingArtifactRef}
	if view.ArtifactRef == "" {
		view.ArtifactRef, view.Generating = ArtifactPending, true
	}
	if s.links != nil && o.Status == domorder.StatusPaid {
		view.ShareLink = s.links.ShareLink(o)
	}
	return view, nil
}

func (s *Service) publish(ctx context.Context, run *application.Run, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()
	outcome := "success"
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		outcome = "error"
		run.Field("event_publish_error", fmt.Sprintf("%s: %v", e.EventName(), err))
	}
	s.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)
}
