package server

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var maxUint64 = decimal.NewFromUint64(math.MaxUint64)

// ParseAmount converts a display amount such as "12.5" into base units at
// the given precision. Amounts with more fractional digits than the asset
// supports are rejected rather than rounded.
func ParseAmount(value string, decimals uint8) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount precision exceeds %d decimals", decimals)
	}
	if scaled.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("amount out of range")
	}
	return scaled.BigInt().Uint64(), nil
}

// FormatAmount renders base units with a fixed number of decimals.
func FormatAmount(units uint64, decimals uint8) string {
	return decimal.NewFromUint64(units).Shift(-int32(decimals)).StringFixed(int32(decimals))
}
