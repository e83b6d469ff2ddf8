package cart

import (
	"context"
	"errors"
)

var (
	ErrCartNotFound = errors.New("cart: not found")
	// ErrContended means Update kept losing to concurrent writers of the same key.
	ErrContended = errors.New("cart: concurrent update contention")
)

// Store persists carts by key. Load returns ErrCartNotFound for unknown keys.
type Store interface {
	Load(ctx context.Context, key string) (*Cart, error)
	// Update runs edit on the stored cart, or on an empty one, and saves the
	// result only if no other writer changed the key in between. An error from
	// edit is returned as is and nothing is saved.
	Update(ctx context.Context, key string, edit func(*Cart) error) (*Cart, error)
	Delete(ctx context.Context, key string) error
}

// SessionKey scopes a cart to an anonymous browsing session.
func SessionKey(sessionID string) string { return "session:" + sessionID }

// CustomerKey scopes a cart to an identified customer.
func CustomerKey(customerID string) string { return "customer:" + customerID }
