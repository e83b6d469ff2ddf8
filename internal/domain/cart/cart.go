// Package cart holds the weight-priced cart value and its merge rules.
// Adding a line that matches an existing (product, weight) pair increments its quantity.
package cart

import (
	"errors"

	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/Zhima-Mochi/freshcut/internal/domain/pricing"
)

var (
	ErrLineNotFound = errors.New("cart: line not found")
	ErrNilProduct   = errors.New("cart: product is required")
)

// Line is one product at one chosen weight. UnitPricePerKilogram is the price
// captured when the line was added; ComputedPrice is per unit of Quantity.
type Line struct {
	ProductID            string `json:"product_id"`
	Name                 string `json:"name"`
	WeightGrams          int    `json:"weight_grams"`
	UnitPricePerKilogram int64  `json:"unit_price_per_kg"`
	ComputedPrice        int64  `json:"computed_price"`
	Quantity             int    `json:"quantity"`
}

// Subtotal is ComputedPrice × Quantity.
func (l Line) Subtotal() int64 {
	return l.ComputedPrice * int64(l.Quantity)
}

type Cart struct {
	SessionID  string `json:"session_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Lines      []Line `json:"lines"`
}

func (c *Cart) find(productID string, grams int) int {
	for i, l := range c.Lines {
		if l.ProductID == productID && l.WeightGrams == grams {
			return i
		}
	}
	return -1
}

// AddOrMerge adds one unit of product at the clamped weight, snapshotting its current price.
func (c *Cart) AddOrMerge(p *catalog.Product, weightGrams int) (Line, error) {
	if p == nil {
		return Line{}, ErrNilProduct
	}
	grams := pricing.ClampWeight(weightGrams)
	if i := c.find(p.ID, grams); i >= 0 {
		c.Lines[i].Quantity++
		return c.Lines[i], nil
	}
	line := Line{
		ProductID:            p.ID,
		Name:                 p.Name,
		WeightGrams:          grams,
		UnitPricePerKilogram: p.PricePerKilogram,
		ComputedPrice:        pricing.Price(p.PricePerKilogram, grams),
		Quantity:             1,
	}
	c.Lines = append(c.Lines, line)
	return line, nil
}

// SetQuantity overwrites the quantity of a line; quantity <= 0 removes it.
func (c *Cart) SetQuantity(productID string, weightGrams, quantity int) error {
	if quantity <= 0 {
		return c.Remove(productID, weightGrams)
	}
	i := c.find(productID, pricing.ClampWeight(weightGrams))
	if i < 0 {
		return ErrLineNotFound
	}
	c.Lines[i].Quantity = quantity
	return nil
}

func (c *Cart) Remove(productID string, weightGrams int) error {
	i := c.find(productID, pricing.ClampWeight(weightGrams))
	if i < 0 {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return nil
}

// Merge folds other's lines into c using the same increment rule as AddOrMerge.
func (c *Cart) Merge(other *Cart) {
	if other == nil {
		return
	}
	for _, l := range other.Lines {
		if i := c.find(l.ProductID, l.WeightGrams); i >= 0 {
			c.Lines[i].Quantity += l.Quantity
			continue
		}
		c.Lines = append(c.Lines, l)
	}
}

func (c *Cart) Total() int64 {
	return Total(c.Lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Snapshot returns a copy of the lines that later cart edits cannot reach.
func (c *Cart) Snapshot() []Line {
	return append([]Line(nil), c.Lines...)
}

// Total sums Subtotal across lines.
func Total(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.Subtotal()
	}
	return sum
}
