// Package money holds the decimal helpers shared by the cart, loyalty and
// payment code. All monetary values are shopspring decimals rounded to cents
// at the edges; intermediate sums keep full precision.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const Places int32 = 2

var (
	Zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// IsCents reports whether d has no precision below a cent.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(Round(d))
}

// Parse reads a decimal string such as "4.00".
func Parse(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) decimal.Decimal {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// Percent returns amount * rate / 100, unrounded.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// Extend returns unit * qty.
func Extend(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// Equal compares two amounts at cent precision.
func Equal(a, b decimal.Decimal) bool {
	return Round(a).Equal(Round(b))
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Min returns the smaller amount.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
