// Package rate provides fixed-point currency arithmetic for load rates.
// All rates are stored as integer cents; ratio math rounds half-up so
// negotiation counters are deterministic across platforms.
package rate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a currency amount in US cents.
type Cents int64

// FromDollars converts a dollar amount to Cents, rounding half-up.
func FromDollars(d float64) Cents {
	return Cents(math.Floor(d*100 + 0.5))
}

// Dollars returns the amount as a float64 dollar value.
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

// Mul multiplies the amount by a ratio, rounding half-up to the nearest cent.
func (c Cents) Mul(ratio float64) Cents {
	return Cents(math.Floor(float64(c)*ratio + 0.5))
}

// String formats the amount as a plain two-decimal string, e.g. "1234.56".
func (c Cents) String() string {
	neg := ""
	v := int64(c)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}

// ParseAmount parses a two-decimal currency string ("1234.56", "900",
// "$1,764.00") into Cents.
func ParseAmount(s string) (Cents, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("rate: empty amount")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("rate: parse amount %q: %w", s, err)
	}
	return FromDollars(v), nil
}
