// Package money converts between decimal major-unit amounts used on the wire and
// the int64 minor units the ledger stores.
package money

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// MinorUnitDigits is the number of fractional digits of the ledger currency.
const MinorUnitDigits = 2

var (
	ErrTooPrecise = errors.New("amount has more fractional digits than the currency allows")
	ErrOutOfRange = errors.New("amount is out of range")
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ToMinor converts a major-unit amount such as 12.34 into minor units (1234).
func ToMinor(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(MinorUnitDigits)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return 0, ErrOutOfRange
	}
	return shifted.IntPart(), nil
}

// FromMinor is the inverse of ToMinor.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorUnitDigits)
}

// Format renders minor units as a fixed-point major-unit string, e.g. "12.34".
func Format(minor int64) string {
	return FromMinor(minor).StringFixed(MinorUnitDigits)
}
