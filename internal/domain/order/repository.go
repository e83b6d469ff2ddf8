package order

import (
	"context"
	"time"
)

// Filter narrows List. Zero values mean "any"; Limit <= 0 uses the store default.
type Filter struct {
	Status    Status
	Fulfilled *bool
	Limit     int
	// CreatedBefore, when set, keeps orders created strictly earlier.
	CreatedBefore time.Time
}

type Repository interface {
	// Insert stores a new order and assigns its Number.
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// MarkPaid sets status=paid and the payment ref only while the stored status is
	// pending; otherwise it returns ErrConflict and changes nothing.
	MarkPaid(ctx context.Context, id, paymentRef string, at time.Time) error
	// MarkCancelled is the pending → cancelled counterpart of MarkPaid.
	MarkCancelled(ctx context.Context, id, reason string, at time.Time) error
	SetFulfilled(ctx context.Context, id string, value bool, at time.Time) error
	SetBillingArtifact(ctx context.Context, id, ref string, at time.Time) error
	// List returns matching orders, newest first.
	List(ctx context.Context, f Filter) ([]*Order, error)
}
