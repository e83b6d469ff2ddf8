package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FailureReasonNotFound    = "not_found"
	FailureReasonConflict    = "conflict"
	FailureReasonPersistence = "persist_error"
)

// StockDecrementedEvent is emitted after a product's stock was reduced for an order.
type StockDecrementedEvent struct {
	OrderID    string          `json:"order_id"`
	ProductID  string          `json:"product_id"`
	Kilograms  decimal.Decimal `json:"kilograms"`
	StockAfter decimal.Decimal `json:"stock_after"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (StockDecrementedEvent) EventName() string { return "inventory.decremented" }

func (e StockDecrementedEvent) AggregateID() string { return e.OrderID }

func NewStockDecrementedEvent(orderID, productID string, kg, after decimal.Decimal) StockDecrementedEvent {
	return StockDecrementedEvent{
		OrderID:    orderID,
		ProductID:  productID,
		Kilograms:  kg,
		StockAfter: after,
		OccurredAt: time.Now().UTC(),
	}
}

// DecrementFailedEvent is emitted when a line's stock could not be adjusted.
type DecrementFailedEvent struct {
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (DecrementFailedEvent) EventName() string { return "inventory.decrement_failed" }

func (e DecrementFailedEvent) AggregateID() string { return e.OrderID }

func NewDecrementFailedEvent(orderID, productID, reason string) DecrementFailedEvent {
	return DecrementFailedEvent{
		OrderID:    orderID,
		ProductID:  productID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
