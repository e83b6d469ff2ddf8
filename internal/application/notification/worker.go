package notification

import (
	"context"

	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"
)

const notificationWorker = "notification_worker"

// Orders loads the order a paid event refers to.
type Orders interface {
	Get(ctx context.Context, orderID string) (*domorder.Order, error)
}

type Worker struct {
	subscriber domoutbox.Subscriber
	orders     Orders
	dispatcher *Dispatcher
	log        observability.Logger
}

func NewWorker(subscriber domoutbox.Subscriber, orders Orders, dispatcher *Dispatcher, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		orders:     orders,
		dispatcher: dispatcher,
		log:        tel.Logger().With(observability.F("component", notificationWorker)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.dispatcher == nil {
		return
	}
	w.subscriber.Subscribe(domorder.PaidEvent{}.EventName(), w.handleOrderPaid)
}

func (w *Worker) handleOrderPaid(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.PaidEvent)
	if !ok {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("event", e.EventName()),
		observability.F("order_id", evt.OrderID),
	)

	o, err := w.orders.Get(ctx, evt.OrderID)
	if err != nil {
		logger.Warn("notification_order_lookup_failed", observability.F("error", err.Error()))
		return nil
	}
	if err := w.dispatcher.Send(ctx, o); err != nil {
		logger.Warn("notification_not_queued", observability.F("error", err.Error()))
		return nil
	}
	logger.Debug("notification_queued")
	return nil
}
