package util

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amount strings that are not canonical
// non-negative decimals or carry more fractional digits than the ledger
// supports.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal-string amount to integer ledger units by
// shifting the decimal point by "decimals" places. Inputs with more fractional
// digits than "decimals" are rejected rather than truncated.
func ParseAmount(amount string, decimals int32) (*uint256.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, amount)
	}
	if -d.Exponent() > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, amount, decimals)
	}
	units := d.Shift(decimals)
	value, overflow := uint256.FromBig(units.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q does not fit in 256 bits", ErrInvalidAmount, amount)
	}
	return value, nil
}

// AmountToString renders integer ledger units as a decimal string with the
// given precision, e.g. 12345678 with 6 decimals => "12.345678".
func AmountToString(units *uint256.Int, decimals int32) string {
	return decimal.NewFromBigInt(units.ToBig(), -decimals).String()
}
