package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domain "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService         = "order-ledger"
	useCaseCreatePending = "order.create_pending"
	spanPrefix           = "UC."
)

// CreatePendingUseCase records a new pending order from a cart snapshot.
type CreatePendingUseCase struct {
	repo         domain.Repository
	idGenerator  IDGenerator
	storeTimeout time.Duration
	tel          observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewCreatePendingUseCase(
	repo domain.Repository,
	idGen IDGenerator,
	storeTimeout time.Duration,
	tel observability.Observability,
) *CreatePendingUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metricsProvider := tel.Metrics()

	return &CreatePendingUseCase{
		repo:         repo,
		idGenerator:  idGen,
		storeTimeout: storeTimeout,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
	}
}

type CreatePendingInput struct {
	Lines    []cart.Line
	Customer domain.Customer
}

type CreatePendingResult struct {
	OrderID string
	Number  int64
	Total   int64
	Order   *domain.Order
}

// Execute validates the customer and cart, then inserts the order as pending.
// Nothing external has been contacted yet, so every failure here aborts cleanly.
func (uc *CreatePendingUseCase) Execute(ctx context.Context, cmd CreatePendingInput) (_ *CreatePendingResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseCreatePending))

	var orderID string

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"CreatePendingOrder",
		attribute.String("use_case", useCaseCreatePending),
		attribute.Int("order.lines", len(cmd.Lines)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseCreatePending),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCaseCreatePending),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	orderID = uc.idGenerator.NewID()
	entity, derr := domain.New(orderID, cmd.Lines, cmd.Customer)
	switch {
	case errors.Is(derr, domain.ErrCustomerNameRequired):
		outcome, statusText = "error", "CUSTOMER_NAME_REQUIRED"
		return nil, checkout.Validation("customer name is required")
	case errors.Is(derr, domain.ErrCustomerPhoneRequired):
		outcome, statusText = "error", "CUSTOMER_PHONE_REQUIRED"
		return nil, checkout.Validation("customer phone is required")
	case errors.Is(derr, domain.ErrEmpty):
		outcome, statusText = "error", "CART_EMPTY"
		return nil, checkout.Validation("cart is empty")
	case derr != nil:
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("%w: %w", checkout.ErrValidation, derr)
	}

	storeCtx, cancel := withStoreTimeout(ctx, uc.storeTimeout)
	defer cancel()
	if err := uc.repo.Insert(storeCtx, entity); err != nil {
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return nil, wrapRepositoryError(err)
	}

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int64("order.number", entity.Number),
		attribute.String("order.status", string(entity.Status)),
	)
	span.AddEvent("order.created",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)

	return &CreatePendingResult{
		OrderID: entity.ID,
		Number:  entity.Number,
		Total:   entity.Total(),
		Order:   entity,
	}, nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return domain.ErrConflict
	default:
		return fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
}

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
