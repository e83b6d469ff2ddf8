package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("catalog: product not found")
	ErrInvalidProduct = errors.New("catalog: invalid product")
	// ErrStockConflict means the product version moved between read and write.
	ErrStockConflict = errors.New("catalog: stock version conflict")
)

// Product is a weight-priced item. PricePerKilogram is in whole currency units.
type Product struct {
	ID               string
	Name             string
	Category         string
	PricePerKilogram int64
	StockKilograms   decimal.Decimal
	ImageRef         string
	Version          int64
	UpdatedAt        time.Time
}

func New(id, name, category string, pricePerKilogram int64, stock decimal.Decimal, imageRef string) (*Product, error) {
	p := &Product{
		ID:               strings.TrimSpace(id),
		Name:             strings.TrimSpace(name),
		Category:         strings.TrimSpace(category),
		PricePerKilogram: pricePerKilogram,
		StockKilograms:   stock,
		ImageRef:         imageRef,
		Version:          1,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Product) Validate() error {
	switch {
	case p.ID == "":
		return errors.Join(ErrInvalidProduct, errors.New("id is required"))
	case p.Name == "":
		return errors.Join(ErrInvalidProduct, errors.New("name is required"))
	case p.PricePerKilogram <= 0:
		return errors.Join(ErrInvalidProduct, errors.New("price per kilogram must be positive"))
	case p.StockKilograms.IsNegative():
		return errors.Join(ErrInvalidProduct, errors.New("stock must not be negative"))
	}
	return nil
}

// StockAfter returns the stock left once kg is taken out, floored at zero.
func (p *Product) StockAfter(kg decimal.Decimal) decimal.Decimal {
	left := p.StockKilograms.Sub(kg)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
