// Package billing defines receipt rendering and storage ports.
package billing

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/freshcut/internal/domain/order"
)

var ErrStorage = errors.New("billing: storage failure")

// Storage persists a rendered artifact and returns a retrievable URL.
type Storage interface {
	Upload(ctx context.Context, name string, body []byte, contentType string) (string, error)
}

// Renderer produces the receipt document for a paid order.
type Renderer interface {
	Render(o *order.Order) (body []byte, contentType string, err error)
}

// ArtifactName is the stable storage name for an order's receipt.
func ArtifactName(o *order.Order) string {
	return "receipt-" + o.ID + ".html"
}
