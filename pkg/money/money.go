// Package money holds the decimal conventions for premium amounts:
// fixed point with two fractional digits, half-even rounding.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotPositive = errors.New("amount_not_positive")

// Round normalizes an amount to two fractional digits using banker's rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// Parse reads a decimal string and normalizes it. Rejects zero and negative
// amounts; monetary inputs on the wire are always strings, never floats.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	d = Round(d)
	if !d.IsPositive() {
		return decimal.Zero, ErrNotPositive
	}
	return d, nil
}

// MustParse is a test helper for literals.
func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return Round(d)
}
