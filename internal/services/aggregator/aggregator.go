// Package aggregator combines independent ledger reads into consistent
// position snapshots.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/internal/domain"
	"github.com/vadiminshakov/collat/internal/services/ledger"
)

// Intervals sets the refresh cadence per field group. Balances change
// fastest, the oracle price slowest, ledger-derived values in between.
type Intervals struct {
	Position time.Duration
	Derived  time.Duration
	Price    time.Duration
}

// DefaultIntervals mirrors the volatility of the underlying fields.
func DefaultIntervals() Intervals {
	return Intervals{
		Position: 15 * time.Second,
		Derived:  30 * time.Second,
		Price:    60 * time.Second,
	}
}

// Aggregator issues the five ledger reads on their own cadences and
// recomputes a derived snapshot whenever any input changes. A non-empty
// snapshot is published only once the required subset (raw position and
// price) is present; optional fields default until their reads land.
type Aggregator struct {
	reader    ledger.Reader
	intervals Intervals
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	inputs   domain.SnapshotInputs
	snapshot domain.PositionSnapshot
	epoch    uint64
	subs     []chan domain.PositionSnapshot
}

// New creates an aggregator for the given reader. No reads are issued
// until an account is set and Run is called (or Refresh is invoked
// directly).
func New(reader ledger.Reader, intervals Intervals, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		reader:    reader,
		intervals: intervals,
		logger:    logger,
		now:       time.Now,
		snapshot:  domain.EmptySnapshot(""),
	}
}

// SetAccount switches the active account. All collected fields are
// invalidated and consumers observe an empty snapshot until the new
// account's required reads complete. Reads in flight for the previous
// account are discarded on arrival.
func (a *Aggregator) SetAccount(account domain.Account) {
	a.mu.Lock()
	a.epoch++
	a.inputs = domain.SnapshotInputs{Account: account}
	a.mu.Unlock()
	a.recompute()
}

// Account returns the active account.
func (a *Aggregator) Account() domain.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inputs.Account
}

// Snapshot returns the current snapshot. It is empty until the
// required reads for the active account have completed.
func (a *Aggregator) Snapshot() domain.PositionSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// Subscribe returns a channel receiving every published snapshot.
// Slow consumers drop intermediate snapshots rather than block the
// aggregation.
func (a *Aggregator) Subscribe() <-chan domain.PositionSnapshot {
	ch := make(chan domain.PositionSnapshot, 16)
	a.mu.Lock()
	a.subs = append(a.subs, ch)
	a.mu.Unlock()
	return ch
}

// Run refreshes the fields on their cadences until the context is
// cancelled. An initial full refresh runs immediately.
func (a *Aggregator) Run(ctx context.Context) error {
	a.Refresh(ctx)

	positionTicker := time.NewTicker(a.intervals.Position)
	defer positionTicker.Stop()
	derivedTicker := time.NewTicker(a.intervals.Derived)
	defer derivedTicker.Stop()
	priceTicker := time.NewTicker(a.intervals.Price)
	defer priceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return ctx.Err()
		case <-positionTicker.C:
			a.refreshPosition(ctx)
		case <-derivedTicker.C:
			a.refreshDerived(ctx)
		case <-priceTicker.C:
			a.refreshPrice(ctx)
		}
	}
}

// Refresh performs all reads once, synchronously. Aggregation is a pure
// function of the collected inputs, so refreshing with unchanged ledger
// state yields a field-wise identical snapshot.
func (a *Aggregator) Refresh(ctx context.Context) {
	a.refreshPosition(ctx)
	a.refreshDerived(ctx)
	a.refreshPrice(ctx)
}

func (a *Aggregator) activeAccount() (domain.Account, uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inputs.Account.IsZero() {
		return "", 0, false
	}
	return a.inputs.Account, a.epoch, true
}

// apply mutates the collected inputs if the account has not been
// switched since the read was issued.
func (a *Aggregator) apply(epoch uint64, mutate func(*domain.SnapshotInputs)) {
	a.mu.Lock()
	if a.epoch != epoch {
		a.mu.Unlock()
		return
	}
	mutate(&a.inputs)
	a.mu.Unlock()
	a.recompute()
}

func (a *Aggregator) refreshPosition(ctx context.Context) {
	account, epoch, ok := a.activeAccount()
	if !ok {
		return
	}

	pos, err := a.reader.Position(ctx, account)
	if err != nil {
		a.logger.Warn("position read failed", zap.String("account", account.Short()), zap.Error(err))
		pos = nil
	}
	a.apply(epoch, func(in *domain.SnapshotInputs) { in.Position = pos })

	walletCollateral, walletDebt, err := a.reader.WalletBalances(ctx, account)
	if err != nil {
		a.logger.Warn("wallet balances read failed", zap.String("account", account.Short()), zap.Error(err))
		walletCollateral, walletDebt = nil, nil
	}
	a.apply(epoch, func(in *domain.SnapshotInputs) {
		in.WalletCollateral = walletCollateral
		in.WalletDebt = walletDebt
	})
}

func (a *Aggregator) refreshDerived(ctx context.Context) {
	account, epoch, ok := a.activeAccount()
	if !ok {
		return
	}

	debt, err := a.reader.TotalDebt(ctx, account)
	if err != nil {
		a.logger.Warn("total debt read failed", zap.String("account", account.Short()), zap.Error(err))
		debt = nil
	}
	a.apply(epoch, func(in *domain.SnapshotInputs) { in.TotalDebt = debt })

	maxBorrow, err := a.reader.MaxBorrowable(ctx, account)
	if err != nil {
		a.logger.Warn("max borrowable read failed", zap.String("account", account.Short()), zap.Error(err))
		maxBorrow = nil
	}
	a.apply(epoch, func(in *domain.SnapshotInputs) { in.MaxBorrowable = maxBorrow })

	liquidatable, err := a.reader.Liquidatable(ctx, account)
	if err != nil {
		a.logger.Warn("liquidatable read failed", zap.String("account", account.Short()), zap.Error(err))
		a.apply(epoch, func(in *domain.SnapshotInputs) { in.Liquidatable = nil })
		return
	}
	a.apply(epoch, func(in *domain.SnapshotInputs) { in.Liquidatable = &liquidatable })
}

func (a *Aggregator) refreshPrice(ctx context.Context) {
	account, epoch, ok := a.activeAccount()
	if !ok {
		return
	}
	_ = account

	price, err := a.reader.AssetPrice(ctx)
	if err != nil {
		a.logger.Warn("asset price read failed", zap.Error(err))
		price = nil
	}
	a.apply(epoch, func(in *domain.SnapshotInputs) { in.AssetPrice = price })
}

// recompute derives a fresh snapshot from the current inputs and
// publishes it to subscribers when it differs from the previous one.
func (a *Aggregator) recompute() {
	a.mu.Lock()
	next := domain.ComputeSnapshot(a.inputs, a.now())
	changed := !next.Equal(a.snapshot)
	a.snapshot = next
	subs := a.subs
	a.mu.Unlock()

	if !changed {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- next:
		default:
			// drop for slow consumers
		}
	}
}
