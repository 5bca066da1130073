package domain

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// LiquidationThresholdPercent is the protocol's liquidation threshold.
// A position whose health factor drops below 1.0 under this threshold
// is eligible for liquidation on the ledger.
const LiquidationThresholdPercent = 120

// HealthFactor computes the collateralization safety margin of a
// position. Both operands are integer amounts in minor units with the
// standard exponent. A position with no debt is always safe and yields
// +Inf.
func HealthFactor(collateralValue, totalDebt *big.Int) float64 {
	return HealthFactorWithThreshold(collateralValue, totalDebt, LiquidationThresholdPercent)
}

// HealthFactorWithThreshold is HealthFactor with an explicit threshold
// percent.
func HealthFactorWithThreshold(collateralValue, totalDebt *big.Int, thresholdPercent int64) float64 {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return math.Inf(1)
	}
	cv, _ := decimal.NewFromBigInt(collateralValue, -Decimals).Float64()
	debt, _ := decimal.NewFromBigInt(totalDebt, -Decimals).Float64()
	return (cv * float64(thresholdPercent)) / (debt * 100)
}

// HealthBand classifies a health factor for presentation. The bands do
// not drive any logic; the ledger is the sole authority on liquidation.
type HealthBand int

const (
	HealthBandSafe HealthBand = iota
	HealthBandCaution
	HealthBandElevated
	HealthBandCritical
)

// String returns the band name.
func (b HealthBand) String() string {
	switch b {
	case HealthBandSafe:
		return "safe"
	case HealthBandCaution:
		return "caution"
	case HealthBandElevated:
		return "elevated"
	case HealthBandCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ClassifyHealth maps a health factor to its presentation band.
func ClassifyHealth(hf float64) HealthBand {
	switch {
	case hf > 2:
		return HealthBandSafe
	case hf > 1.5:
		return HealthBandCaution
	case hf > 1.2:
		return HealthBandElevated
	default:
		return HealthBandCritical
	}
}

// FormatHealthFactor renders a health factor for display, using the
// infinity sign for debt-free positions.
func FormatHealthFactor(hf float64) string {
	if math.IsInf(hf, 1) {
		return "∞"
	}
	return decimal.NewFromFloat(hf).StringFixed(2)
}
