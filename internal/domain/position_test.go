package domain

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullInputs() SnapshotInputs {
	liq := false
	return SnapshotInputs{
		Account: "0xabc",
		Position: &RawPosition{
			CollateralAmount:    units(2),
			BorrowedAmount:      units(1000),
			LastUpdateTime:      1700000000,
			AccumulatedInterest: big.NewInt(0),
		},
		TotalDebt:        units(1000),
		MaxBorrowable:    units(3800),
		AssetPrice:       units(2000),
		Liquidatable:     &liq,
		WalletCollateral: units(10),
		WalletDebt:       units(500),
	}
}

func TestComputeSnapshotIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SnapshotInputs)
	}{
		{name: "no account", mutate: func(in *SnapshotInputs) { in.Account = "" }},
		{name: "no raw position", mutate: func(in *SnapshotInputs) { in.Position = nil }},
		{name: "no price", mutate: func(in *SnapshotInputs) { in.AssetPrice = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := fullInputs()
			tt.mutate(&in)

			snap := ComputeSnapshot(in, time.Now())
			assert.False(t, snap.Ready)
			assert.True(t, math.IsInf(snap.HealthFactor, 1))
			assert.True(t, snap.Equal(EmptySnapshot(in.Account)))
		})
	}
}

func TestComputeSnapshotFull(t *testing.T) {
	snap := ComputeSnapshot(fullInputs(), time.Now())

	require.True(t, snap.Ready)
	// 2 units at price 2000 per unit
	assert.Equal(t, units(4000).String(), snap.CollateralValue.String())
	assert.Equal(t, units(1000).String(), snap.TotalDebt.String())
	assert.InDelta(t, 4.8, snap.HealthFactor, 1e-9)
	assert.Equal(t, HealthBandSafe, snap.Band())
	assert.False(t, snap.Liquidatable)
}

func TestComputeSnapshotDerivesDebtFromRawFields(t *testing.T) {
	in := fullInputs()
	in.TotalDebt = nil
	in.Position.AccumulatedInterest = units(50)

	snap := ComputeSnapshot(in, time.Now())
	assert.Equal(t, units(1050).String(), snap.TotalDebt.String())
}

func TestComputeSnapshotOptionalFieldsDefault(t *testing.T) {
	in := fullInputs()
	in.TotalDebt = nil
	in.MaxBorrowable = nil
	in.Liquidatable = nil
	in.WalletCollateral = nil
	in.WalletDebt = nil

	snap := ComputeSnapshot(in, time.Now())
	require.True(t, snap.Ready)
	assert.True(t, snap.AvailableToBorrow.IsZero())
	assert.False(t, snap.Liquidatable)
	assert.True(t, snap.WalletCollateral.IsZero())
}

func TestComputeSnapshotIdempotent(t *testing.T) {
	at := time.Now()
	first := ComputeSnapshot(fullInputs(), at)
	second := ComputeSnapshot(fullInputs(), at.Add(time.Minute))
	assert.True(t, first.Equal(second), "identical inputs must yield an identical snapshot")
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	snap := ComputeSnapshot(fullInputs(), time.Now().UTC().Truncate(time.Second))

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"health_factor":"4.80"`)
	assert.Contains(t, string(data), `"total_debt":"`+units(1000).String()+`"`)

	var restored PositionSnapshot
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, snap.Equal(restored))
}

func TestSnapshotJSONInfiniteHealth(t *testing.T) {
	snap := EmptySnapshot("0xabc")

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"health_factor":"∞"`)

	var restored PositionSnapshot
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, math.IsInf(restored.HealthFactor, 1))
}
