// Package money centralizes currency rounding so the calculator,
// allocator and replay engine cannot drift apart in their arithmetic.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round normalizes a currency value to 2 decimal places, half up.
// Every arithmetic combination of money values must pass through here
// before being stored or compared.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent applies a percentage rate to a base amount and rounds.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(pct).Div(hundred))
}

// IsCleared reports whether an outstanding balance counts as fully paid
// within rounding tolerance.
func IsCleared(d decimal.Decimal) bool {
	return Round(d).LessThanOrEqual(decimal.Zero)
}
