package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// Reader resolves products for carts and receipts.
type Reader interface {
	Get(ctx context.Context, id string) (*Product, error)
}

type Repository interface {
	Reader
	List(ctx context.Context) ([]*Product, error)
	// Upsert replaces the product record and bumps its version.
	Upsert(ctx context.Context, p *Product) error
	// UpdateStock writes stock only while the stored version equals expectedVersion,
	// returning ErrStockConflict otherwise. The stored version is incremented.
	UpdateStock(ctx context.Context, id string, expectedVersion int64, stock decimal.Decimal) error
}
