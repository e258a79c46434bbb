// Package core holds the canonical snapshot types and the small value
// helpers shared by the reconciliation engine.
//
// This file contains amount parsing and summing. Amounts are stored as JSON
// numbers, so arithmetic goes through decimal and is rounded back to cents.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered decimal string to an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up to cents. Only positive amounts are accepted.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() || d.GreaterThan(maxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// maxAmount is the largest magnitude an amount can take as a float64.
var maxAmount = decimal.NewFromFloat(math.MaxFloat64)

// fromFloat converts a, mapping NaN to zero and infinities to the largest
// finite amount.
func fromFloat(a float64) decimal.Decimal {
	switch {
	case math.IsNaN(a):
		return decimal.Zero
	case math.IsInf(a, 1):
		return maxAmount
	case math.IsInf(a, -1):
		return maxAmount.Neg()
	}
	return decimal.NewFromFloat(a)
}

// Sum adds amounts exactly and returns the result rounded to cents.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(fromFloat(a))
	}
	return Round2(total)
}

// Sub returns a-b rounded to cents.
func Sub(a, b float64) float64 {
	return Round2(fromFloat(a).Sub(fromFloat(b)))
}

// Round2 rounds d to cents and converts it back to a float. Results beyond
// the float64 range saturate at the largest finite amount.
func Round2(d decimal.Decimal) float64 {
	d = decimal.Min(decimal.Max(d, maxAmount.Neg()), maxAmount)
	f, _ := d.Round(2).Float64()
	return f
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(a float64) string {
	return fromFloat(a).StringFixed(2)
}
