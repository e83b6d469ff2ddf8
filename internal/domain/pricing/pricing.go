// Package pricing turns a per-kilogram unit price and a chosen gram weight into a line price.
package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MinWeightGrams = 50
	MaxWeightGrams = 20000
)

var gramsPerKilogram = decimal.NewFromInt(1000)

// ClampWeight forces grams into [MinWeightGrams, MaxWeightGrams].
func ClampWeight(grams int) int {
	switch {
	case grams < MinWeightGrams:
		return MinWeightGrams
	case grams > MaxWeightGrams:
		return MaxWeightGrams
	default:
		return grams
	}
}

// ParseWeight reads a user-entered gram weight. Anything that is not a number
// yields MinWeightGrams; fractional input rounds to the nearest gram.
func ParseWeight(raw string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return MinWeightGrams
	}
	if math.IsInf(v, 1) || v > MaxWeightGrams {
		return MaxWeightGrams
	}
	if v < MinWeightGrams {
		return MinWeightGrams
	}
	return ClampWeight(int(math.Round(v)))
}

// Price returns round(unitPricePerKilogram × grams / 1000) after clamping grams.
// Halves round away from zero.
func Price(unitPricePerKilogram int64, weightGrams int) int64 {
	grams := decimal.NewFromInt(int64(ClampWeight(weightGrams)))
	return decimal.NewFromInt(unitPricePerKilogram).
		Mul(grams).
		Div(gramsPerKilogram).
		Round(0).
		IntPart()
}

// Kilograms converts a gram weight into an exact kilogram amount.
func Kilograms(grams int) decimal.Decimal {
	return decimal.NewFromInt(int64(grams)).Div(gramsPerKilogram)
}
