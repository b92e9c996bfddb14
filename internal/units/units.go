// Package units converts on-chain fixed-point integers into display strings.
package units

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fractional precision of the reward token.
const TokenDecimals = 18

// RayDecimals is the precision of Aave-style rate values.
const RayDecimals = 27

// FormatUnits renders amount scaled down by decimals. The result always
// carries at least one fractional digit, so 10^18 at 18 decimals is "1.0".
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		amount = new(big.Int)
	}
	s := decimal.NewFromBigInt(amount, -int32(decimals)).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// AddDisplay adds delta to a previously formatted amount and renders it with
// two decimal places. ok is false when prior is not a number (for example the
// error sentinel); prior is then returned unchanged.
func AddDisplay(prior string, delta int64) (string, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(prior))
	if err != nil {
		return prior, false
	}
	return d.Add(decimal.NewFromInt(delta)).StringFixed(2), true
}

// RayToPercent converts a ray-denominated rate (1e27 == 100%) into a percentage.
func RayToPercent(rate *big.Int) decimal.Decimal {
	if rate == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(rate, -RayDecimals).Mul(decimal.NewFromInt(100))
}
