package order

import "time"

// PaidEvent is published once, by the caller that won the pending → paid transition.
type PaidEvent struct {
	OrderID    string    `json:"order_id"`
	Number     int64     `json:"number"`
	PaymentRef string    `json:"payment_ref"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaidEvent) EventName() string { return "order.paid" }

func (e PaidEvent) AggregateID() string { return e.OrderID }

func NewPaidEvent(o *Order) PaidEvent {
	return PaidEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		PaymentRef: o.PaymentRef,
		Total:      o.Total(),
		OccurredAt: time.Now().UTC(),
	}
}

type CancelledEvent struct {
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (CancelledEvent) EventName() string { return "order.cancelled" }

func (e CancelledEvent) AggregateID() string { return e.OrderID }

func NewCancelledEvent(o *Order) CancelledEvent {
	return CancelledEvent{
		OrderID:    o.ID,
		Reason:     o.CancelReason,
		OccurredAt: time.Now().UTC(),
	}
}
