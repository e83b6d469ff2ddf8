package order

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	domain "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
)

const (
	useCaseSweepStale   = "order.sweep_stale"
	sweepBatchSize      = 100
	StaleCancelReason   = "expired"
	defaultSweepPeriods = 4
)

// Sweeper cancels orders left pending longer than ttl, e.g. after the payment
// widget was dismissed and the customer never came back.
type Sweeper struct {
	ledger   *Ledger
	ttl      time.Duration
	interval time.Duration
	now      Clock
	probe    application.Probe
}

// NewSweeper checks every ttl/4 unless interval is given. A zero ttl disables sweeping.
func NewSweeper(ledger *Ledger, ttl, interval time.Duration, now Clock, tel observability.Observability) *Sweeper {
	if interval <= 0 && ttl > 0 {
		interval = ttl / defaultSweepPeriods
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		ledger:   ledger,
		ttl:      ttl,
		interval: interval,
		now:      now,
		probe:    application.NewProbe(tel, "order-sweeper"),
	}
}

// Start runs the sweep loop until ctx ends. It returns immediately when disabled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.ttl <= 0 || s.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce cancels up to one batch of stale pending orders and reports how many it cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (n int, err error) {
	ctx, run := s.probe.Start(ctx, useCaseSweepStale, "SweepStalePending")
	defer func() {
		run.Field("cancelled", n)
		run.End(err)
	}()

	cutoff := s.now().Add(-s.ttl)
	stale, err := s.ledger.List(ctx, domain.Filter{
		Status:        domain.StatusPending,
		CreatedBefore: cutoff,
		Limit:         sweepBatchSize,
	})
	if err != nil {
		run.Fail("LIST_FAILED")
		return 0, err
	}

	for _, o := range stale {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		_, cerr := s.ledger.Cancel(ctx, o.ID, StaleCancelReason)
		switch {
		case cerr == nil:
			n++
		case errors.Is(cerr, domain.ErrInvalidStateTransition):
			// paid between list and cancel
		default:
			run.Status("PARTIAL")
			run.Logger().Warn("stale_order_cancel_failed",
				observability.F("order_id", o.ID),
				application.ErrField(cerr),
			)
		}
	}
	return n, nil
}
