package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domain "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
	"github.com/Zhima-Mochi/freshcut/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseConfirmPaid  = "order.confirm_paid"
	useCaseCancel       = "order.cancel"
	useCaseSetFulfilled = "order.set_fulfilled"
	useCaseSetArtifact  = "order.set_billing_artifact"

	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

type LedgerConfig struct {
	Currency            string
	StoreTimeout        time.Duration
	FulfillRequiresPaid bool
}

// Ledger owns the order record after creation: payment confirmation,
// cancellation, the fulfilment flag and read access.
type Ledger struct {
	*CreatePendingUseCase

	orders       domain.Repository
	transactions transaction.Repository
	ids          IDGenerator
	publisher    domoutbox.Publisher
	cfg          LedgerConfig
	probe        application.Probe

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewLedger(
	orders domain.Repository,
	transactions transaction.Repository,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	cfg LedgerConfig,
	tel observability.Observability,
) *Ledger {
	if tel == nil {
		tel = observability.Nop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	m := tel.Metrics()
	return &Ledger{
		CreatePendingUseCase: NewCreatePendingUseCase(orders, ids, cfg.StoreTimeout, tel),
		orders:               orders,
		transactions:         transactions,
		ids:                  ids,
		publisher:            publisher,
		cfg:                  cfg,
		probe:                application.NewProbe(tel, orderService),
		extCounter:           m.Counter(observability.MExternalRequests),
		extHistogram:         m.Histogram(observability.MExternalRequestDuration),
	}
}

// CreatePending is CreatePendingUseCase.Execute.
func (l *Ledger) CreatePending(ctx context.Context, in CreatePendingInput) (*CreatePendingResult, error) {
	return l.Execute(ctx, in)
}

// ConfirmOutcome describes what ConfirmPaid did.
type ConfirmOutcome struct {
	Order *domain.Order
	// Transitioned is true only for the single caller that moved the order to paid.
	// That caller owns the follow-up side effects (stock, events).
	Transitioned bool
	// AlreadyPaid is true when the same payment reference had been applied before.
	AlreadyPaid bool
	Transaction *transaction.Transaction
}

// ConfirmPaid applies a verified payment reference to an order. It is
// idempotent: repeating it with the same reference returns AlreadyPaid and
// writes nothing.
//
// The payment has been captured by the time this runs, so every store failure
// is returned as a *checkout.ReconciliationError. When the order was moved to
// paid but the transaction record failed, the outcome is returned together
// with the error so the caller can still finish the paid flow.
func (l *Ledger) ConfirmPaid(ctx context.Context, orderID, paymentRef string) (out *ConfirmOutcome, err error) {
	ctx, run := l.probe.Start(ctx, useCaseConfirmPaid, "ConfirmPaid",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	if orderID == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, checkout.Validation("order id is required")
	}
	if paymentRef == "" {
		run.Fail("PAYMENT_REF_REQUIRED")
		return nil, checkout.Validation("payment reference is required")
	}

	reconcile := func(stage string, cause error) error {
		return &checkout.ReconciliationError{OrderID: orderID, PaymentRef: paymentRef, Stage: stage, Err: cause}
	}

	// Two passes: a lost conditional write re-reads and re-classifies once.
	for attempt := 0; attempt < 2; attempt++ {
		current, err := l.get(ctx, orderID)
		if err != nil {
			run.Fail("ORDER_LOAD_FAILED")
			return nil, reconcile("load_order", err)
		}

		next := current.Clone()
		changed, derr := next.MarkPaid(paymentRef)
		switch {
		case errors.Is(derr, domain.ErrPaymentRefMismatch):
			run.Fail("PAYMENT_REF_MISMATCH")
			return nil, reconcile("payment_ref_mismatch", derr)
		case errors.Is(derr, domain.ErrInvalidStateTransition):
			run.Fail("ORDER_NOT_PENDING")
			return nil, reconcile("order_"+string(current.Status), derr)
		case derr != nil:
			run.Fail("DOMAIN_TRANSITION_FAILED")
			return nil, derr
		case !changed:
			run.Status("ALREADY_PAID")
			run.Span().AddEvent("order.confirm_replayed")
			out = &ConfirmOutcome{Order: current, AlreadyPaid: true}
			// A replay repairs a transaction record lost after an earlier transition.
			tx, repaired, terr := l.ensureTransaction(ctx, current)
			if terr != nil {
				run.Fail("TRANSACTION_REPAIR_FAILED")
				return out, reconcile("record_transaction", terr)
			}
			if repaired {
				run.Status("TRANSACTION_REPAIRED")
				out.Transaction = tx
			}
			return out, nil
		}

		storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
		err = l.orders.MarkPaid(storeCtx, orderID, paymentRef, next.UpdatedAt)
		cancel()
		if errors.Is(err, domain.ErrConflict) {
			run.Span().AddEvent("order.confirm_lost_race")
			continue
		}
		if err != nil {
			run.Fail("MARK_PAID_FAILED")
			return nil, reconcile("mark_paid", err)
		}

		// The order is paid from here on; the caller going away must not
		// cost it its transaction record.
		ctx = context.WithoutCancel(ctx)
		out = &ConfirmOutcome{Order: next, Transitioned: true}
		tx := transaction.ForOrder(l.ids.NewID(), next, l.cfg.Currency)
		storeCtx, cancel = withStoreTimeout(ctx, l.cfg.StoreTimeout)
		err = l.transactions.Insert(storeCtx, tx)
		cancel()
		switch {
		case err == nil:
			out.Transaction = tx
		case errors.Is(err, transaction.ErrDuplicate):
			run.Status("TRANSACTION_EXISTS")
		default:
			run.Fail("TRANSACTION_INSERT_FAILED")
			return out, reconcile("record_transaction", err)
		}

		run.Field("order_id", orderID)
		run.Field("amount", next.Total())
		run.Span().SetAttributes(attribute.String("order.status", string(next.Status)))
		return out, nil
	}

	run.Fail("CONFIRM_CONTENDED")
	return nil, reconcile("mark_paid", domain.ErrConflict)
}

// ensureTransaction inserts the transaction of a paid order when none is
// recorded yet. It reports whether it had to.
func (l *Ledger) ensureTransaction(ctx context.Context, o *domain.Order) (*transaction.Transaction, bool, error) {
	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	_, err := l.transactions.GetByOrder(storeCtx, o.ID)
	cancel()
	if err == nil {
		return nil, false, nil
	}
	if !errors.Is(err, transaction.ErrNotFound) {
		return nil, false, err
	}

	tx := transaction.ForOrder(l.ids.NewID(), o, l.cfg.Currency)
	storeCtx, cancel = withStoreTimeout(ctx, l.cfg.StoreTimeout)
	err = l.transactions.Insert(storeCtx, tx)
	cancel()
	switch {
	case err == nil:
		return tx, true, nil
	case errors.Is(err, transaction.ErrDuplicate):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Cancel moves a pending order to cancelled. Cancelling a cancelled order is a
// no-op; a paid order cannot be cancelled.
func (l *Ledger) Cancel(ctx context.Context, orderID, reason string) (o *domain.Order, err error) {
	ctx, run := l.probe.Start(ctx, useCaseCancel, "CancelOrder",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	current, err := l.get(ctx, orderID)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, err
	}
	next := current.Clone()
	changed, err := next.Cancel(reason)
	if err != nil {
		run.Fail("ORDER_NOT_CANCELLABLE")
		return nil, err
	}
	if !changed {
		run.Status("ALREADY_CANCELLED")
		return current, nil
	}

	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	err = l.orders.MarkCancelled(storeCtx, orderID, reason, next.UpdatedAt)
	cancel()
	if errors.Is(err, domain.ErrConflict) {
		// Someone else moved it first; report whatever it became.
		latest, gerr := l.get(ctx, orderID)
		if gerr != nil {
			run.Fail("ORDER_LOAD_FAILED")
			return nil, gerr
		}
		if latest.Status == domain.StatusCancelled {
			run.Status("ALREADY_CANCELLED")
			return latest, nil
		}
		run.Fail("ORDER_NOT_CANCELLABLE")
		return nil, domain.ErrInvalidStateTransition
	}
	if err != nil {
		run.Fail("MARK_CANCELLED_FAILED")
		return nil, wrapRepositoryError(err)
	}

	l.publish(ctx, run, domain.NewCancelledEvent(next))
	run.Field("reason", reason)
	return next, nil
}

// SetFulfilled toggles the handover flag. It never touches status.
func (l *Ledger) SetFulfilled(ctx context.Context, orderID string, value bool) (o *domain.Order, err error) {
	ctx, run := l.probe.Start(ctx, useCaseSetFulfilled, "SetFulfilled",
		attribute.String("order.id", orderID),
		attribute.Bool("order.fulfilled", value),
	)
	defer func() { run.End(err) }()

	current, err := l.get(ctx, orderID)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, err
	}
	next := current.Clone()
	if err := next.SetFulfilled(value, l.cfg.FulfillRequiresPaid); err != nil {
		run.Fail("FULFIL_BEFORE_PAID")
		return nil, err
	}
	if value && next.Status != domain.StatusPaid {
		run.Status("FULFILLED_BEFORE_PAID")
		run.Logger().Warn("order_fulfilled_before_paid",
			observability.F("order_id", orderID),
			observability.F("order_status", string(next.Status)),
		)
	}

	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	if err := l.orders.SetFulfilled(storeCtx, orderID, value, next.UpdatedAt); err != nil {
		run.Fail("SET_FULFILLED_FAILED")
		return nil, wrapRepositoryError(err)
	}
	return next, nil
}

// AttachBillingArtifact records where the order's receipt was stored.
func (l *Ledger) AttachBillingArtifact(ctx context.Context, orderID, ref string) (err error) {
	ctx, run := l.probe.Start(ctx, useCaseSetArtifact, "AttachBillingArtifact",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	if err := l.orders.SetBillingArtifact(storeCtx, orderID, ref, time.Now().UTC()); err != nil {
		run.Fail("SET_ARTIFACT_FAILED")
		return wrapRepositoryError(err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return l.get(ctx, orderID)
}

func (l *Ledger) List(ctx context.Context, f domain.Filter) ([]*domain.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, checkout.Validation(fmt.Sprintf("unknown status %q", f.Status))
	}
	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	orders, err := l.orders.List(storeCtx, f)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return orders, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, limit int) ([]*transaction.Transaction, error) {
	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	txs, err := l.transactions.List(storeCtx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
	return txs, nil
}

// Transaction returns the capture record of a paid order.
func (l *Ledger) Transaction(ctx context.Context, orderID string) (*transaction.Transaction, error) {
	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	tx, err := l.transactions.GetByOrder(storeCtx, orderID)
	if err != nil && !errors.Is(err, transaction.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
	return tx, err
}

func (l *Ledger) get(ctx context.Context, orderID string) (*domain.Order, error) {
	storeCtx, cancel := withStoreTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	o, err := l.orders.Get(storeCtx, orderID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

// publish is best-effort; a failure is recorded on the run but never fails the caller.
func (l *Ledger) publish(ctx context.Context, run *application.Run, e domoutbox.Event) {
	if l.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()
	outcome := "success"
	if err := l.publisher.Publish(pubCtx, e); err != nil {
		outcome = "error"
		run.Status("EVENT_PUBLISH_FAILED")
		run.Span().RecordError(err)
		run.Field("event_publish_error", err.Error())
	}
	l.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	l.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)
}
