package domain

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed decimal exponent shared by the collateral and
// debt assets on the ledger.
const Decimals = 18

// FormatUnits converts an integer amount in minor units into a decimal
// string with the given number of fractional digits. A nil or zero
// amount formats as "0".
func FormatUnits(minor *big.Int, decimals, precision int32) string {
	if minor == nil || minor.Sign() == 0 {
		return "0"
	}
	return decimal.NewFromBigInt(minor, -decimals).StringFixed(precision)
}

// ParseUnits converts a decimal string into an integer amount in minor
// units. Malformed input yields zero instead of an error: the value
// comes from free-form user input and a typo must not abort the flow.
// Fractional digits beyond the exponent are truncated.
func ParseUnits(s string, decimals int32) *big.Int {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return new(big.Int)
	}
	return d.Shift(decimals).Truncate(0).BigInt()
}
