// Package core provides money parsing and handling utilities.
//
// Amounts are fixed point with two decimals and kept as int64 cents. Parsing
// and formatting go through shopspring/decimal so that no float ever touches
// a stored amount.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

type Money struct {
	Cents int64
}

// ParseAmount converts a decimal string to Money with half-up rounding on the
// third decimal place. Both dot (12.34) and comma (12,34) separators are accepted.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,345") -> 1235 cents
//	ParseAmount("-5")     -> -500 cents
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if !cents.IsInteger() || cents.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d)
	}
	return Money{Cents: cents.IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents == 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with exactly two decimals, e.g. "12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a decimal string to avoid float rounding on clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
