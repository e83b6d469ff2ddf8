package billing

import (
	"context"

	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"
)

const billingWorker = "billing_worker"

// Worker generates receipts for paid orders off the request path.
type Worker struct {
	subscriber domoutbox.Subscriber
	generator  *Generator
	log        observability.Logger
}

func NewWorker(subscriber domoutbox.Subscriber, generator *Generator, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		generator:  generator,
		log:        tel.Logger().With(observability.F("component", billingWorker)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.generator == nil {
		return
	}
	w.subscriber.Subscribe(domorder.PaidEvent{}.EventName(), w.handleOrderPaid)
}

// handleOrderPaid never returns the generation error: the order stays paid and
// the confirmation view keeps showing the receipt as generating.
func (w *Worker) handleOrderPaid(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.PaidEvent)
	if !ok {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("event", e.EventName()),
		observability.F("order_id", evt.OrderID),
	)

	ref, err := w.generator.Generate(ctx, evt.OrderID)
	if err != nil {
		logger.Warn("billing_artifact_failed", observability.F("error", err.Error()))
		return nil
	}
	logger.Info("billing_artifact_ready", observability.F("artifact_ref", ref))
	return nil
}
