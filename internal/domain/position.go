package domain

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"time"
)

var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// RawPosition holds the account fields exactly as the ledger returns
// them, in minor units.
type RawPosition struct {
	CollateralAmount    *big.Int
	BorrowedAmount      *big.Int
	LastUpdateTime      uint64
	AccumulatedInterest *big.Int
}

// SnapshotInputs carries the raw reads collected for one account. Every
// field except Account arrives from an independent asynchronous read
// and may still be absent (nil).
type SnapshotInputs struct {
	Account          Account
	Position         *RawPosition
	TotalDebt        *big.Int
	MaxBorrowable    *big.Int
	AssetPrice       *big.Int
	Liquidatable     *bool
	WalletCollateral *big.Int
	WalletDebt       *big.Int
}

// Ready reports whether the minimally required reads (raw position and
// asset price) have completed. Optional fields default to zero/false
// until available.
func (in SnapshotInputs) Ready() bool {
	return !in.Account.IsZero() && in.Position != nil && in.AssetPrice != nil
}

// PositionSnapshot is an immutable, point-in-time aggregation of an
// account's position. It is either empty (Ready=false, HealthFactor
// +Inf) or fully populated; partially populated snapshots are never
// published.
type PositionSnapshot struct {
	Account             Account
	Ready               bool
	CollateralAmount    Amount
	BorrowedAmount      Amount
	AccumulatedInterest Amount
	LastUpdateTime      uint64
	AssetPrice          Amount
	CollateralValue     Amount
	TotalDebt           Amount
	AvailableToBorrow   Amount
	HealthFactor        float64
	Liquidatable        bool
	WalletCollateral    Amount
	WalletDebt          Amount
	ObservedAt          time.Time
}

// EmptySnapshot returns the snapshot published when no account is set
// or the required reads have not completed yet.
func EmptySnapshot(account Account) PositionSnapshot {
	return PositionSnapshot{
		Account:      account,
		HealthFactor: math.Inf(1),
	}
}

// ComputeSnapshot derives a snapshot from the current inputs. It is a
// pure function: identical inputs always yield an identical snapshot.
// When the required subset is incomplete it returns the empty snapshot.
func ComputeSnapshot(in SnapshotInputs, observedAt time.Time) PositionSnapshot {
	if !in.Ready() {
		return EmptySnapshot(in.Account)
	}

	collateralValue := new(big.Int).Mul(in.Position.CollateralAmount, in.AssetPrice)
	collateralValue.Quo(collateralValue, priceScale)

	totalDebt := in.TotalDebt
	if totalDebt == nil {
		// ledger read not in yet, derive from the raw fields
		totalDebt = new(big.Int).Add(in.Position.BorrowedAmount, in.Position.AccumulatedInterest)
	}

	liquidatable := false
	if in.Liquidatable != nil {
		liquidatable = *in.Liquidatable
	}

	return PositionSnapshot{
		Account:             in.Account,
		Ready:               true,
		CollateralAmount:    NewAmount(in.Position.CollateralAmount),
		BorrowedAmount:      NewAmount(in.Position.BorrowedAmount),
		AccumulatedInterest: NewAmount(in.Position.AccumulatedInterest),
		LastUpdateTime:      in.Position.LastUpdateTime,
		AssetPrice:          NewAmount(in.AssetPrice),
		CollateralValue:     NewAmount(collateralValue),
		TotalDebt:           NewAmount(totalDebt),
		AvailableToBorrow:   NewAmount(in.MaxBorrowable),
		HealthFactor:        HealthFactor(collateralValue, totalDebt),
		Liquidatable:        liquidatable,
		WalletCollateral:    NewAmount(in.WalletCollateral),
		WalletDebt:          NewAmount(in.WalletDebt),
		ObservedAt:          observedAt,
	}
}

// Band returns the presentation band of the snapshot's health factor.
func (s PositionSnapshot) Band() HealthBand {
	return ClassifyHealth(s.HealthFactor)
}

// Equal reports field-wise equality ignoring the observation time.
func (s PositionSnapshot) Equal(o PositionSnapshot) bool {
	sameHealth := s.HealthFactor == o.HealthFactor ||
		(math.IsInf(s.HealthFactor, 1) && math.IsInf(o.HealthFactor, 1))
	return s.Account == o.Account &&
		s.Ready == o.Ready &&
		s.CollateralAmount.Equal(o.CollateralAmount) &&
		s.BorrowedAmount.Equal(o.BorrowedAmount) &&
		s.AccumulatedInterest.Equal(o.AccumulatedInterest) &&
		s.LastUpdateTime == o.LastUpdateTime &&
		s.AssetPrice.Equal(o.AssetPrice) &&
		s.CollateralValue.Equal(o.CollateralValue) &&
		s.TotalDebt.Equal(o.TotalDebt) &&
		s.AvailableToBorrow.Equal(o.AvailableToBorrow) &&
		sameHealth &&
		s.Liquidatable == o.Liquidatable &&
		s.WalletCollateral.Equal(o.WalletCollateral) &&
		s.WalletDebt.Equal(o.WalletDebt)
}

type snapshotJSON struct {
	Account             Account   `json:"account"`
	Ready               bool      `json:"ready"`
	CollateralAmount    Amount    `json:"collateral_amount"`
	BorrowedAmount      Amount    `json:"borrowed_amount"`
	AccumulatedInterest Amount    `json:"accumulated_interest"`
	LastUpdateTime      uint64    `json:"last_update_time"`
	AssetPrice          Amount    `json:"asset_price"`
	CollateralValue     Amount    `json:"collateral_value"`
	TotalDebt           Amount    `json:"total_debt"`
	AvailableToBorrow   Amount    `json:"available_to_borrow"`
	HealthFactor        string    `json:"health_factor"`
	HealthBand          string    `json:"health_band"`
	Liquidatable        bool      `json:"liquidatable"`
	WalletCollateral    Amount    `json:"wallet_collateral"`
	WalletDebt          Amount    `json:"wallet_debt"`
	ObservedAt          time.Time `json:"observed_at"`
}

// UnmarshalJSON restores a snapshot encoded by MarshalJSON.
func (s *PositionSnapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	hf := math.Inf(1)
	if raw.HealthFactor != "" && raw.HealthFactor != "∞" {
		parsed, err := strconv.ParseFloat(raw.HealthFactor, 64)
		if err != nil {
			return err
		}
		hf = parsed
	}

	*s = PositionSnapshot{
		Account:             raw.Account,
		Ready:               raw.Ready,
		CollateralAmount:    raw.CollateralAmount,
		BorrowedAmount:      raw.BorrowedAmount,
		AccumulatedInterest: raw.AccumulatedInterest,
		LastUpdateTime:      raw.LastUpdateTime,
		AssetPrice:          raw.AssetPrice,
		CollateralValue:     raw.CollateralValue,
		TotalDebt:           raw.TotalDebt,
		AvailableToBorrow:   raw.AvailableToBorrow,
		HealthFactor:        hf,
		Liquidatable:        raw.Liquidatable,
		WalletCollateral:    raw.WalletCollateral,
		WalletDebt:          raw.WalletDebt,
		ObservedAt:          raw.ObservedAt,
	}
	return nil
}

// MarshalJSON encodes the snapshot with the health factor as a string,
// since JSON has no representation for +Inf.
func (s PositionSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Account:             s.Account,
		Ready:               s.Ready,
		CollateralAmount:    s.CollateralAmount,
		BorrowedAmount:      s.BorrowedAmount,
		AccumulatedInterest: s.AccumulatedInterest,
		LastUpdateTime:      s.LastUpdateTime,
		AssetPrice:          s.AssetPrice,
		CollateralValue:     s.CollateralValue,
		TotalDebt:           s.TotalDebt,
		AvailableToBorrow:   s.AvailableToBorrow,
		HealthFactor:        FormatHealthFactor(s.HealthFactor),
		HealthBand:          s.Band().String(),
		Liquidatable:        s.Liquidatable,
		WalletCollateral:    s.WalletCollateral,
		WalletDebt:          s.WalletDebt,
		ObservedAt:          s.ObservedAt,
	})
}
