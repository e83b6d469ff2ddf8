// Package inventory decrements product stock after a confirmed payment.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	dominv "github.com/Zhima-Mochi/freshcut/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/Zhima-Mochi/freshcut/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	inventoryService       = "inventory-adjuster"
	useCaseDecrement       = "inventory.decrement"
	useCaseDecrementOrder  = "inventory.decrement_order"
	publishPeer            = "outbox"
	publishTimeout         = 300 * time.Millisecond
	defaultLineConcurrency = 4
)

type Config struct {
	Retry           RetryConfig
	StoreTimeout    time.Duration
	LineConcurrency int
}

// Adjuster applies stock decrements as conditional writes on the product
// version, retrying with backoff when a concurrent writer wins.
type Adjuster struct {
	products  catalog.Repository
	publisher domoutbox.Publisher
	cfg       Config
	probe     application.Probe

	casRetries   observability.Counter   // inventory_cas_retries_total{product_id}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewAdjuster(products catalog.Repository, publisher domoutbox.Publisher, cfg Config, tel observability.Observability) *Adjuster {
	if tel == nil {
		tel = observability.Nop()
	}
	defaults := DefaultRetryConfig()
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = defaults.MaxRetries
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = defaults.BaseDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = defaults.MaxDelay
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = defaults.Multiplier
	}
	if cfg.LineConcurrency <= 0 {
		cfg.LineConcurrency = defaultLineConcurrency
	}
	m := tel.Metrics()
	return &Adjuster{
		products:     products,
		publisher:    publisher,
		cfg:          cfg,
		probe:        application.NewProbe(tel, inventoryService),
		casRetries:   m.Counter(observability.MInventoryCASRetries),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Result reports the stock after one decrement.
type Result struct {
	ProductID  string
	Kilograms  decimal.Decimal
	StockAfter decimal.Decimal
	Attempts   int
}

// Decrement removes weightGrams from productID's stock, flooring at zero.
func (a *Adjuster) Decrement(ctx context.Context, productID string, weightGrams int) (*Result, error) {
	return a.apply(ctx, "", dominv.Adjustment{ProductID: productID, WeightGrams: weightGrams, Quantity: 1})
}

// DecrementOrder adjusts stock for every line of a paid order. Lines run
// concurrently; lines for the same product contend through the version check.
// The caller must invoke it once per order, after winning the pending → paid
// transition.
func (a *Adjuster) DecrementOrder(ctx context.Context, o *domorder.Order) (results []*Result, err error) {
	ctx, run := a.probe.Start(ctx, useCaseDecrementOrder, "DecrementOrder",
		attribute.String("order.id", o.ID),
		attribute.Int("order.lines", len(o.Lines)),
	)
	defer func() { run.End(err) }()

	results = make([]*Result, len(o.Lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.LineConcurrency)
	errs := make([]error, len(o.Lines))
	for i, line := range o.Lines {
		g.Go(func() error {
			res, err := a.apply(gctx, o.ID, dominv.Adjustment{
				ProductID:   line.ProductID,
				WeightGrams: line.WeightGrams,
				Quantity:    line.Quantity,
			})
			results[i], errs[i] = res, err
			// Keep going: one contended line must not leave the others unadjusted.
			return nil
		})
	}
	_ = g.Wait()

	if err = errors.Join(errs...); err != nil {
		run.Fail("LINE_DECREMENT_FAILED")
		return results, err
	}
	return results, nil
}

func (a *Adjuster) apply(ctx context.Context, orderID string, adj dominv.Adjustment) (res *Result, err error) {
	ctx, run := a.probe.Start(ctx, useCaseDecrement, "DecrementStock",
		attribute.String("product.id", adj.ProductID),
		attribute.Int("inventory.weight_grams", adj.WeightGrams),
		attribute.Int("inventory.quantity", adj.Quantity),
	)
	defer func() { run.End(err) }()

	if err := adj.Validate(); err != nil {
		run.Fail("INVALID_ADJUSTMENT")
		return nil, fmt.Errorf("%w: %w", checkout.ErrValidation, err)
	}
	kg := adj.Kilograms()
	attempts := 0

	res, err = retryWithBackoff(ctx, a.cfg.Retry,
		func(err error) bool { return errors.Is(err, catalog.ErrStockConflict) },
		func(int) { a.casRetries.Add(1, observability.L("product_id", adj.ProductID)) },
		func() (*Result, error) {
			attempts++
			storeCtx, cancel := application.WithTimeout(ctx, a.cfg.StoreTimeout)
			defer cancel()

			p, err := a.products.Get(storeCtx, adj.ProductID)
			if err != nil {
				return nil, err
			}
			after := p.StockAfter(kg)
			if err := a.products.UpdateStock(storeCtx, p.ID, p.Version, after); err != nil {
				return nil, err
			}
			return &Result{ProductID: p.ID, Kilograms: kg, StockAfter: after}, nil
		},
	)
	run.Field("attempts", attempts)

	switch {
	case err == nil:
		res.Attempts = attempts
		if res.StockAfter.IsZero() {
			run.Status("STOCK_EXHAUSTED")
		}
		a.publish(ctx, dominv.NewStockDecrementedEvent(orderID, adj.ProductID, kg, res.StockAfter))
		return res, nil
	case errors.Is(err, catalog.ErrStockConflict):
		run.Fail("CAS_RETRIES_EXHAUSTED")
		a.publish(ctx, dominv.NewDecrementFailedEvent(orderID, adj.ProductID, dominv.FailureReasonConflict))
		return nil, fmt.Errorf("%w: %w: product %s after %d attempts", checkout.ErrInventoryConflict, dominv.ErrConflict, adj.ProductID, attempts)
	case errors.Is(err, catalog.ErrNotFound):
		run.Fail("PRODUCT_NOT_FOUND")
		a.publish(ctx, dominv.NewDecrementFailedEvent(orderID, adj.ProductID, dominv.FailureReasonNotFound))
		return nil, fmt.Errorf("inventory: product %s: %w", adj.ProductID, err)
	default:
		run.Fail("STORE_FAILED")
		a.publish(ctx, dominv.NewDecrementFailedEvent(orderID, adj.ProductID, dominv.FailureReasonPersistence))
		return nil, fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
}

func (a *Adjuster) publish(ctx context.Context, event domoutbox.Event) {
	if a.publisher == nil || event == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	err := a.publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
	}
	cancel()

	a.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
		observability.L("outcome", outcome),
	)
	a.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
	)
}
