package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places a tick represents.
// Prices are stored as int64 ticks (hundredths) everywhere inside the
// engine; decimals only appear at the API and oracle boundaries.
const PriceScale = 2

// MaxPriceTicks and MaxQuantity bound a single order so that price ×
// quantity, and any sum of fills of one order, stays well inside int64.
const (
	MaxPriceTicks int64 = 1_000_000_000 // 10,000,000.00
	MaxQuantity   int64 = 1_000_000_000
)

var maxPrice = TicksToDecimal(MaxPriceTicks)

// TicksFromDecimal converts a decimal price to int64 ticks. It rejects
// values with more than PriceScale decimal places and magnitudes above
// MaxPriceTicks.
func TicksFromDecimal(d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Truncate(PriceScale)) {
		return 0, fmt.Errorf("prices must have at most %d decimal places", PriceScale)
	}
	if d.Abs().GreaterThan(maxPrice) {
		return 0, fmt.Errorf("price %s out of range, max %s", d.String(), maxPrice.StringFixed(PriceScale))
	}
	return d.Shift(PriceScale).IntPart(), nil
}

// TicksFromFloat converts a float price (as decoded from loosely typed
// JSON) to ticks using the same precision rules as TicksFromDecimal.
func TicksFromFloat(f float64) (int64, error) {
	return TicksFromDecimal(decimal.NewFromFloat(f))
}

// TicksToDecimal converts ticks back to a decimal price.
func TicksToDecimal(t int64) decimal.Decimal {
	return decimal.New(t, -PriceScale)
}

// TicksToFloat converts ticks to a float64 for JSON responses.
func TicksToFloat(t int64) float64 {
	return TicksToDecimal(t).InexactFloat64()
}
