package aggregator

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/internal/domain"
	"github.com/vadiminshakov/collat/internal/services/ledger"
)

const (
	alice = domain.Account("0xa11ce")
	bob   = domain.Account("0xb0b")
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.Decimals), nil))
}

func seededLedger(t *testing.T) *ledger.SimulatedLedger {
	t.Helper()
	l := ledger.NewSimulatedLedger(units(2000), 0)
	l.Fund(alice, units(10), big.NewInt(0))

	ctx := context.Background()
	for _, req := range []domain.TxRequest{
		{Kind: domain.TxDeposit, Amount: units(2), Account: alice},
		{Kind: domain.TxBorrow, Amount: units(1000), Account: alice},
	} {
		ref, err := l.Submit(ctx, req, "seed")
		require.NoError(t, err)
		require.NoError(t, l.AwaitSettlement(ctx, ref))
	}
	return l
}

func newAggregator(reader ledger.Reader) *Aggregator {
	return New(reader, DefaultIntervals(), zap.NewNop())
}

// flakyReader degrades selected reads to errors while delegating the
// rest to the simulated ledger.
type flakyReader struct {
	ledger.Reader
	failPrice   bool
	failDerived bool
}

func (f *flakyReader) AssetPrice(ctx context.Context) (*big.Int, error) {
	if f.failPrice {
		return nil, errors.New("oracle unavailable")
	}
	return f.Reader.AssetPrice(ctx)
}

func (f *flakyReader) TotalDebt(ctx context.Context, account domain.Account) (*big.Int, error) {
	if f.failDerived {
		return nil, errors.New("rpc timeout")
	}
	return f.Reader.TotalDebt(ctx, account)
}

func (f *flakyReader) MaxBorrowable(ctx context.Context, account domain.Account) (*big.Int, error) {
	if f.failDerived {
		return nil, errors.New("rpc timeout")
	}
	return f.Reader.MaxBorrowable(ctx, account)
}

func (f *flakyReader) Liquidatable(ctx context.Context, account domain.Account) (bool, error) {
	if f.failDerived {
		return false, errors.New("rpc timeout")
	}
	return f.Reader.Liquidatable(ctx, account)
}

func TestSnapshotEmptyUntilRefresh(t *testing.T) {
	a := newAggregator(seededLedger(t))
	a.SetAccount(alice)

	snap := a.Snapshot()
	assert.False(t, snap.Ready)
	assert.True(t, math.IsInf(snap.HealthFactor, 1))
}

func TestRefreshProducesFullSnapshot(t *testing.T) {
	a := newAggregator(seededLedger(t))
	a.SetAccount(alice)
	a.Refresh(context.Background())

	snap := a.Snapshot()
	require.True(t, snap.Ready)
	assert.Equal(t, alice, snap.Account)
	assert.Equal(t, units(2).String(), snap.CollateralAmount.String())
	assert.Equal(t, units(4000).String(), snap.CollateralValue.String())
	assert.Equal(t, units(1000).String(), snap.TotalDebt.String())
	assert.Equal(t, units(3800).String(), snap.AvailableToBorrow.String())
	assert.InDelta(t, 4.8, snap.HealthFactor, 1e-9)
	assert.False(t, snap.Liquidatable)
	assert.Equal(t, units(8).String(), snap.WalletCollateral.String())
}

func TestRefreshIdempotentWithoutLedgerChanges(t *testing.T) {
	a := newAggregator(seededLedger(t))
	a.SetAccount(alice)

	a.Refresh(context.Background())
	first := a.Snapshot()
	a.Refresh(context.Background())
	second := a.Snapshot()

	assert.True(t, first.Equal(second), "unchanged ledger state must aggregate identically")
}

func TestPublishOnlyOnChange(t *testing.T) {
	a := newAggregator(seededLedger(t))
	a.SetAccount(alice)
	snaps := a.Subscribe()

	a.Refresh(context.Background())
	a.Refresh(context.Background())

	var published int
	for {
		select {
		case <-snaps:
			published++
			continue
		default:
		}
		break
	}
	require.Greater(t, published, 0)

	// the second refresh read identical state, so the final published
	// snapshot count equals the count of distinct aggregate values
	a.Refresh(context.Background())
	select {
	case snap := <-snaps:
		t.Fatalf("unexpected publication of unchanged snapshot: %+v", snap)
	default:
	}
}

func TestWriteVisibleAfterRefresh(t *testing.T) {
	l := seededLedger(t)
	a := newAggregator(l)
	a.SetAccount(alice)
	a.Refresh(context.Background())

	before := a.Snapshot()
	require.Equal(t, units(1000).String(), before.TotalDebt.String())

	ctx := context.Background()
	ref, err := l.Submit(ctx, domain.TxRequest{Kind: domain.TxBorrow, Amount: units(500), Account: alice}, "req")
	require.NoError(t, err)
	require.NoError(t, l.AwaitSettlement(ctx, ref))

	a.Refresh(ctx)
	after := a.Snapshot()
	assert.Equal(t, units(1500).String(), after.TotalDebt.String())
	assert.Equal(t, units(3300).String(), after.AvailableToBorrow.String())
	assert.Less(t, after.HealthFactor, before.HealthFactor)
}

func TestAccountSwitchInvalidatesSnapshot(t *testing.T) {
	a := newAggregator(seededLedger(t))
	a.SetAccount(alice)
	a.Refresh(context.Background())
	require.True(t, a.Snapshot().Ready)

	a.SetAccount(bob)

	snap := a.Snapshot()
	assert.False(t, snap.Ready, "switching accounts must drop the previous aggregate")
	assert.Equal(t, bob, snap.Account)
	assert.True(t, math.IsInf(snap.HealthFactor, 1))

	// bob has no position, the fresh aggregate is an empty one
	a.Refresh(context.Background())
	snap = a.Snapshot()
	require.True(t, snap.Ready)
	assert.True(t, snap.CollateralAmount.IsZero())
	assert.True(t, snap.TotalDebt.IsZero())
	assert.True(t, math.IsInf(snap.HealthFactor, 1))
}

func TestPriceReadFailureBlocksPublication(t *testing.T) {
	flaky := &flakyReader{Reader: seededLedger(t), failPrice: true}
	a := newAggregator(flaky)
	a.SetAccount(alice)
	a.Refresh(context.Background())

	assert.False(t, a.Snapshot().Ready, "a required read failure must keep the snapshot empty")

	// once the oracle recovers the snapshot fills in
	flaky.failPrice = false
	a.Refresh(context.Background())
	assert.True(t, a.Snapshot().Ready)
}

func TestDerivedReadFailureDegradesGracefully(t *testing.T) {
	flaky := &flakyReader{Reader: seededLedger(t), failDerived: true}
	a := newAggregator(flaky)
	a.SetAccount(alice)
	a.Refresh(context.Background())

	snap := a.Snapshot()
	require.True(t, snap.Ready, "optional read failures must not block the snapshot")
	// total debt falls back to the raw position fields
	assert.Equal(t, units(1000).String(), snap.TotalDebt.String())
	assert.True(t, snap.AvailableToBorrow.IsZero())
	assert.False(t, snap.Liquidatable)
}

func TestNoReadsWithoutAccount(t *testing.T) {
	a := newAggregator(seededLedger(t))
	a.Refresh(context.Background())

	snap := a.Snapshot()
	assert.False(t, snap.Ready)
	assert.True(t, snap.Account.IsZero())
}
