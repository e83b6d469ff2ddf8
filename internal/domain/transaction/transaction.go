// Package transaction is the append-only audit record of captured payments.
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/order"
)

var (
	ErrNotFound = errors.New("transaction: not found")
	// ErrDuplicate is returned when a transaction already exists for the order.
	ErrDuplicate = errors.New("transaction: duplicate for order")
)

type Status string

const StatusCaptured Status = "captured"

type Transaction struct {
	ID         string
	OrderID    string
	PaymentRef string
	Amount     int64
	Currency   string
	Status     Status
	Customer   order.Customer
	CreatedAt  time.Time
}

// ForOrder records the capture of a paid order's total.
func ForOrder(id string, o *order.Order, currency string) *Transaction {
	return &Transaction{
		ID:         id,
		OrderID:    o.ID,
		PaymentRef: o.PaymentRef,
		Amount:     o.Total(),
		Currency:   currency,
		Status:     StatusCaptured,
		Customer:   o.Customer,
		CreatedAt:  time.Now().UTC(),
	}
}

// Repository keeps at most one transaction per OrderID.
type Repository interface {
	Insert(ctx context.Context, t *Transaction) error
	GetByOrder(ctx context.Context, orderID string) (*Transaction, error)
	// List returns the newest transactions first.
	List(ctx context.Context, limit int) ([]*Transaction, error)
}
