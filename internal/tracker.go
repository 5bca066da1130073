package internal

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/config"
	"github.com/vadiminshakov/collat/internal/domain"
	"github.com/vadiminshakov/collat/internal/services/aggregator"
	"github.com/vadiminshakov/collat/internal/services/ledger"
	"github.com/vadiminshakov/collat/internal/services/orchestrator"
	"github.com/vadiminshakov/collat/internal/storage/snapshots"
)

// PositionTracker ties the snapshot aggregator and the transaction
// orchestrator to one account session against the lending ledger.
type PositionTracker struct {
	Aggregator   *aggregator.Aggregator
	Orchestrator *orchestrator.Orchestrator
	Config       config.Config
	ledger       ledger.ReadWriter
	store        *snapshots.WALStore
	logger       *zap.Logger
}

// NewPositionTracker creates a tracker instance for the configured
// platform client. The store may be nil to disable history persistence.
func NewPositionTracker(conf config.Config, client any, store *snapshots.WALStore, logger *zap.Logger) (*PositionTracker, error) {
	ledgerSvc, err := newLedgerService(client, conf.Account, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ledger service")
	}

	agg := aggregator.New(ledgerSvc, aggregator.Intervals{
		Position: conf.PositionInterval,
		Derived:  conf.DerivedInterval,
		Price:    conf.PriceInterval,
	}, logger.Named("aggregator"))
	agg.SetAccount(conf.Account)

	return &PositionTracker{
		Aggregator:   agg,
		Orchestrator: orchestrator.New(ledgerSvc, logger.Named("orchestrator")),
		Config:       conf,
		ledger:       ledgerSvc,
		store:        store,
		logger:       logger,
	}, nil
}

// Ledger returns the backing ledger service.
func (t *PositionTracker) Ledger() ledger.ReadWriter { return t.ledger }

// Snapshot returns the current position snapshot.
func (t *PositionTracker) Snapshot() domain.PositionSnapshot {
	return t.Aggregator.Snapshot()
}

// SwitchAccount changes the tracked account. Previous snapshots are
// invalidated; handles already submitted keep running to their terminal
// phase on their own.
func (t *PositionTracker) SwitchAccount(account domain.Account) {
	t.logger.Info("switching account",
		zap.String("from", t.Aggregator.Account().Short()),
		zap.String("to", account.Short()))
	t.Aggregator.SetAccount(account)
}

func (t *PositionTracker) submit(ctx context.Context, kind domain.TxKind, amount *big.Int) *orchestrator.Handle {
	return t.Orchestrator.Submit(ctx, domain.TxRequest{
		Kind:    kind,
		Amount:  amount,
		Account: t.Aggregator.Account(),
	})
}

// Deposit submits a collateral deposit.
func (t *PositionTracker) Deposit(ctx context.Context, amount *big.Int) *orchestrator.Handle {
	return t.submit(ctx, domain.TxDeposit, amount)
}

// Withdraw submits a collateral withdrawal.
func (t *PositionTracker) Withdraw(ctx context.Context, amount *big.Int) *orchestrator.Handle {
	return t.submit(ctx, domain.TxWithdraw, amount)
}

// Borrow submits a borrow request.
func (t *PositionTracker) Borrow(ctx context.Context, amount *big.Int) *orchestrator.Handle {
	return t.submit(ctx, domain.TxBorrow, amount)
}

// Repay submits a repayment.
func (t *PositionTracker) Repay(ctx context.Context, amount *big.Int) *orchestrator.Handle {
	return t.submit(ctx, domain.TxRepay, amount)
}

// Run refreshes the position on its schedule, persists published
// snapshots and re-aggregates after every settled write. Blocks until
// the context is cancelled.
func (t *PositionTracker) Run(ctx context.Context) error {
	snaps := t.Aggregator.Subscribe()
	events := t.Orchestrator.Subscribe()

	go func() {
		_ = t.Aggregator.Run(ctx)
	}()

	t.logger.Info("position tracker started",
		zap.String("platform", t.Config.Platform),
		zap.String("account", t.Config.Account.Short()))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("position tracker stopped")
			return ctx.Err()
		case snapshot := <-snaps:
			if t.store == nil {
				continue
			}
			if err := t.store.Save(snapshot); err != nil {
				t.logger.Warn("failed to persist snapshot", zap.Error(err))
			}
		case event := <-events:
			if event.Status == domain.StatusSuccess {
				// the ledger state changed, pick it up right away
				t.Aggregator.Refresh(ctx)
			}
		}
	}
}
