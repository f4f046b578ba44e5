package pricing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of fractional digits used for currency amounts.
const DefaultScale int32 = 2

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

// Money is an exact decimal amount. Arithmetic never rounds; rounding happens
// only through RoundHalfUp at the end of a pipeline stage.
type Money struct {
	d decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Money { return Money{} }

// NewMoney parses a decimal string such as "2.00". Negative amounts are rejected.
func NewMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d.String())
	}
	return Money{d: d}, nil
}

// MustMoney is NewMoney that panics. Intended for fixtures and constants.
func MustMoney(value string) Money {
	m, err := NewMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinor builds an amount from integer minor units, e.g. FromMinor(887, 2) == 8.87.
func FromMinor(units int64, scale int32) Money {
	return Money{d: decimal.New(units, -scale)}
}

// FromDecimal wraps a decimal value.
func FromDecimal(d decimal.Decimal) Money { return Money{d: d} }

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// MulQty multiplies the amount by a quantity. Negative quantities are rejected.
func (m Money) MulQty(qty int) (Money, error) {
	if qty < 0 {
		return Money{}, fmt.Errorf("%w: negative quantity %d", ErrInvalidAmount, qty)
	}
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(qty)))}, nil
}

// MultiplyByPercent returns m * p / 100 without rounding.
func (m Money) MultiplyByPercent(p Percent) Money {
	return Money{d: m.d.Mul(p.d).Shift(-2)}
}

// RoundHalfUp rounds to scale fractional digits, ties toward positive infinity.
func (m Money) RoundHalfUp(scale int32) Money {
	return Money{d: m.d.Shift(scale).Add(half).Floor().Shift(-scale)}
}

// FitsScale reports whether the amount needs no more than scale fractional digits.
func (m Money) FitsScale(scale int32) bool { return m.d.Equal(m.d.Truncate(scale)) }

// Cmp compares m and o, returning -1, 0 or +1.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Equal reports whether both amounts are numerically equal.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// LessThan reports m < o.
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

// GreaterOrEqual reports m >= o.
func (m Money) GreaterOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.d.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// StringFixed renders the amount with exactly scale fractional digits.
func (m Money) StringFixed(scale int32) string { return m.d.StringFixed(scale) }

// String renders the amount like MarshalJSON, without rounding.
func (m Money) String() string { return m.d.StringFixed(m.Scale()) }

// MarshalJSON encodes the amount as a string with at least DefaultScale
// fractional digits and as many more as the value needs. Encoding is
// lossless and equal amounts serialise to identical bytes.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Scale returns the smallest fractional digit count, never below
// DefaultScale, that represents the amount exactly.
func (m Money) Scale() int32 {
	scale := DefaultScale
	for !m.FitsScale(scale) {
		scale++
	}
	return scale
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return fmt.Errorf("%w: null amount", ErrInvalidAmount)
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	if d.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d.String())
	}
	m.d = d
	return nil
}

// Percent is a percentage in the closed range 0..100.
type Percent struct {
	d decimal.Decimal
}

// NewPercent parses a percentage such as "5" or "12.5".
func NewPercent(value string) (Percent, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Percent{}, fmt.Errorf("%w: percent %q", ErrInvalidAmount, value)
	}
	return PercentFromDecimal(d)
}

// MustPercent is NewPercent that panics.
func MustPercent(value string) Percent {
	p, err := NewPercent(value)
	if err != nil {
		panic(err)
	}
	return p
}

// PercentFromDecimal validates the 0..100 range.
func PercentFromDecimal(d decimal.Decimal) (Percent, error) {
	if d.IsNegative() || d.GreaterThan(hundred) {
		return Percent{}, fmt.Errorf("%w: percent %s out of range", ErrInvalidAmount, d.String())
	}
	return Percent{d: d}, nil
}

// Complement returns 100 - p.
func (p Percent) Complement() Percent { return Percent{d: hundred.Sub(p.d)} }

// Cmp compares two percentages.
func (p Percent) Cmp(o Percent) int { return p.d.Cmp(o.d) }

// IsZero reports whether the percentage is zero.
func (p Percent) IsZero() bool { return p.d.IsZero() }

// Decimal exposes the underlying value.
func (p Percent) Decimal() decimal.Decimal { return p.d }

func (p Percent) valid() bool {
	return !p.d.IsNegative() && !p.d.GreaterThan(hundred)
}

// String renders the percentage without trailing zeros.
func (p Percent) String() string { return p.d.String() }

// MarshalJSON encodes the percentage as a JSON string.
func (p Percent) MarshalJSON() ([]byte, error) { return json.Marshal(p.d.String()) }

// UnmarshalJSON accepts strings and numbers and enforces the 0..100 range.
func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return fmt.Errorf("%w: null percent", ErrInvalidAmount)
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: percent %s", ErrInvalidAmount, string(data))
	}
	parsed, err := PercentFromDecimal(d)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
