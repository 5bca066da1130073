package snapshots

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/collat/internal/domain"
)

func testSnapshot(account domain.Account, debt int64) domain.PositionSnapshot {
	return domain.ComputeSnapshot(domain.SnapshotInputs{
		Account: account,
		Position: &domain.RawPosition{
			CollateralAmount:    big.NewInt(2_000_000),
			BorrowedAmount:      big.NewInt(debt),
			AccumulatedInterest: big.NewInt(0),
		},
		TotalDebt:  big.NewInt(debt),
		AssetPrice: new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.Decimals), nil),
	}, time.Now().UTC().Truncate(time.Second))
}

func TestSaveAndReplay(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first := testSnapshot("0xabc", 100)
	second := testSnapshot("0xabc", 250)
	require.NoError(t, store.Save(first))
	require.NoError(t, store.Save(second))

	records, err := store.SnapshotsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Snapshot.Equal(first))
	assert.True(t, records[1].Snapshot.Equal(second))
	assert.Less(t, records[0].Index, records[1].Index)
}

func TestSnapshotsAfterSkipsConsumed(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(testSnapshot("0xabc", 100)))
	mark := store.CurrentIndex()
	require.NoError(t, store.Save(testSnapshot("0xabc", 250)))

	records, err := store.SnapshotsAfter(mark)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, big.NewInt(250).String(), records[0].Snapshot.TotalDebt.String())

	records, err = store.SnapshotsAfter(store.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReplayAfterReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	snap := testSnapshot("0xabc", 100)
	require.NoError(t, store.Save(snap))
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.SnapshotsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Snapshot.Equal(snap))
}

func TestUninitializedStore(t *testing.T) {
	var store *WALStore
	require.Error(t, store.Save(testSnapshot("0xabc", 1)))
	_, err := store.SnapshotsAfter(0)
	require.Error(t, err)
	assert.Zero(t, store.CurrentIndex())
}
