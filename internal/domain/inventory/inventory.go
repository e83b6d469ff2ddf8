package inventory

import (
	"errors"

	"github.com/Zhima-Mochi/freshcut/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidWeight = errors.New("inventory: weight must be greater than zero")
	// ErrConflict means the conditional stock update kept losing to concurrent writers.
	ErrConflict = errors.New("inventory: stock update conflict")
)

// Adjustment is a stock decrement for one order line.
type Adjustment struct {
	ProductID   string
	WeightGrams int
	Quantity    int
}

func (a Adjustment) Validate() error {
	if a.WeightGrams <= 0 || a.Quantity <= 0 {
		return ErrInvalidWeight
	}
	return nil
}

// Kilograms is the total weight removed by the adjustment.
func (a Adjustment) Kilograms() decimal.Decimal {
	return pricing.Kilograms(a.WeightGrams).Mul(decimal.NewFromInt(int64(a.Quantity)))
}
