package ledger

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/collat/internal/domain"
)

var hundred = big.NewInt(100)

// SimulatedLedger is an in-memory lending ledger with the same
// collateralization rules the real protocol enforces. It backs the
// simulate platform and the test suite, so no real funds are needed to
// exercise the full submit/settle flow.
type SimulatedLedger struct {
	mu          sync.Mutex
	price       *big.Int
	accounts    map[domain.Account]*simAccount
	settlements map[string]error
	settleDelay time.Duration
	failNext    error
	now         func() time.Time
}

type simAccount struct {
	collateral       *big.Int
	borrowed         *big.Int
	interest         *big.Int
	lastUpdate       uint64
	walletCollateral *big.Int
	walletDebt       *big.Int
}

// NewSimulatedLedger creates a simulated ledger with the given oracle
// price (debt units per collateral unit, scaled by 10^18).
func NewSimulatedLedger(price *big.Int, settleDelay time.Duration) *SimulatedLedger {
	return &SimulatedLedger{
		price:       new(big.Int).Set(price),
		accounts:    make(map[domain.Account]*simAccount),
		settlements: make(map[string]error),
		settleDelay: settleDelay,
		now:         time.Now,
	}
}

// Fund seeds an account's wallet balances, creating the account if
// needed.
func (l *SimulatedLedger) Fund(account domain.Account, walletCollateral, walletDebt *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(account)
	acc.walletCollateral.Add(acc.walletCollateral, walletCollateral)
	acc.walletDebt.Add(acc.walletDebt, walletDebt)
}

// SetPrice replaces the oracle price.
func (l *SimulatedLedger) SetPrice(price *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.price.Set(price)
}

// AccrueInterest adds interest to the account's debt, the way the real
// protocol does on its own schedule.
func (l *SimulatedLedger) AccrueInterest(account domain.Account, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(account)
	acc.interest.Add(acc.interest, amount)
	acc.lastUpdate = uint64(l.now().Unix())
}

// FailNextSettlement makes the next accepted submission settle with the
// given failure instead of applying its state change.
func (l *SimulatedLedger) FailNextSettlement(reason error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = reason
}

func (l *SimulatedLedger) account(account domain.Account) *simAccount {
	acc, ok := l.accounts[account]
	if !ok {
		acc = &simAccount{
			collateral:       new(big.Int),
			borrowed:         new(big.Int),
			interest:         new(big.Int),
			walletCollateral: new(big.Int),
			walletDebt:       new(big.Int),
		}
		l.accounts[account] = acc
	}
	return acc
}

func (acc *simAccount) totalDebt() *big.Int {
	return new(big.Int).Add(acc.borrowed, acc.interest)
}

func (l *SimulatedLedger) collateralValue(acc *simAccount) *big.Int {
	cv := new(big.Int).Mul(acc.collateral, l.price)
	return cv.Quo(cv, new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.Decimals), nil))
}

// healthy reports whether debt*100 <= collateralValue*threshold, i.e.
// health factor >= 1 under the protocol's liquidation threshold.
func healthy(collateralValue, debt *big.Int) bool {
	lhs := new(big.Int).Mul(debt, hundred)
	rhs := new(big.Int).Mul(collateralValue, big.NewInt(domain.LiquidationThresholdPercent))
	return lhs.Cmp(rhs) <= 0
}

// Position implements Reader.
func (l *SimulatedLedger) Position(_ context.Context, account domain.Account) (*domain.RawPosition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(account)
	return &domain.RawPosition{
		CollateralAmount:    new(big.Int).Set(acc.collateral),
		BorrowedAmount:      new(big.Int).Set(acc.borrowed),
		LastUpdateTime:      acc.lastUpdate,
		AccumulatedInterest: new(big.Int).Set(acc.interest),
	}, nil
}

// TotalDebt implements Reader.
func (l *SimulatedLedger) TotalDebt(_ context.Context, account domain.Account) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account(account).totalDebt(), nil
}

// MaxBorrowable implements Reader. Headroom is the debt the position
// could carry at health factor 1, minus the current debt.
func (l *SimulatedLedger) MaxBorrowable(_ context.Context, account domain.Account) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(account)
	maxDebt := new(big.Int).Mul(l.collateralValue(acc), big.NewInt(domain.LiquidationThresholdPercent))
	maxDebt.Quo(maxDebt, hundred)
	headroom := maxDebt.Sub(maxDebt, acc.totalDebt())
	if headroom.Sign() < 0 {
		headroom.SetInt64(0)
	}
	return headroom, nil
}

// AssetPrice implements Reader.
func (l *SimulatedLedger) AssetPrice(_ context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.price), nil
}

// Liquidatable implements Reader.
func (l *SimulatedLedger) Liquidatable(_ context.Context, account domain.Account) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(account)
	if acc.totalDebt().Sign() == 0 {
		return false, nil
	}
	return !healthy(l.collateralValue(acc), acc.totalDebt()), nil
}

// WalletBalances implements Reader.
func (l *SimulatedLedger) WalletBalances(_ context.Context, account domain.Account) (*big.Int, *big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(account)
	return new(big.Int).Set(acc.walletCollateral), new(big.Int).Set(acc.walletDebt), nil
}

// Submit implements Writer. Rejections are returned synchronously with
// terse reasons; accepted requests apply their state change and settle
// after the configured delay.
func (l *SimulatedLedger) Submit(_ context.Context, req domain.TxRequest, requestID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(req.Account)

	if l.failNext != nil {
		outcome := l.failNext
		l.failNext = nil
		ref := newRef()
		l.settlements[ref] = outcome
		return ref, nil
	}

	switch req.Kind {
	case domain.TxDeposit:
		if acc.walletCollateral.Cmp(req.Amount) < 0 {
			return "", errors.New("insufficient wallet balance")
		}
		acc.walletCollateral.Sub(acc.walletCollateral, req.Amount)
		acc.collateral.Add(acc.collateral, req.Amount)

	case domain.TxWithdraw:
		if acc.collateral.Cmp(req.Amount) < 0 {
			return "", errors.New("insufficient collateral")
		}
		remaining := new(big.Int).Sub(acc.collateral, req.Amount)
		cv := new(big.Int).Mul(remaining, l.price)
		cv.Quo(cv, new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.Decimals), nil))
		if !healthy(cv, acc.totalDebt()) {
			return "", errors.New("insufficient collateral")
		}
		acc.collateral.Set(remaining)
		acc.walletCollateral.Add(acc.walletCollateral, req.Amount)

	case domain.TxBorrow:
		maxDebt := new(big.Int).Mul(l.collateralValue(acc), big.NewInt(domain.LiquidationThresholdPercent))
		maxDebt.Quo(maxDebt, hundred)
		newDebt := new(big.Int).Add(acc.totalDebt(), req.Amount)
		if newDebt.Cmp(maxDebt) > 0 {
			return "", errors.New("exceeds max borrow amount")
		}
		acc.borrowed.Add(acc.borrowed, req.Amount)
		acc.walletDebt.Add(acc.walletDebt, req.Amount)

	case domain.TxRepay:
		if acc.totalDebt().Cmp(req.Amount) < 0 {
			return "", errors.New("repay exceeds outstanding debt")
		}
		if acc.walletDebt.Cmp(req.Amount) < 0 {
			return "", errors.New("insufficient wallet balance")
		}
		acc.walletDebt.Sub(acc.walletDebt, req.Amount)
		// interest is paid down before principal
		rest := new(big.Int).Set(req.Amount)
		if acc.interest.Cmp(rest) >= 0 {
			acc.interest.Sub(acc.interest, rest)
		} else {
			rest.Sub(rest, acc.interest)
			acc.interest.SetInt64(0)
			acc.borrowed.Sub(acc.borrowed, rest)
		}

	default:
		return "", errors.Errorf("unknown operation: %s", req.Kind)
	}

	acc.lastUpdate = uint64(l.now().Unix())
	_ = requestID

	ref := newRef()
	l.settlements[ref] = nil
	return ref, nil
}

// AwaitSettlement implements Writer. It is idempotent: observing the
// same reference repeatedly yields the same outcome.
func (l *SimulatedLedger) AwaitSettlement(ctx context.Context, ref string) error {
	l.mu.Lock()
	outcome, ok := l.settlements[ref]
	delay := l.settleDelay
	l.mu.Unlock()

	if !ok {
		return errors.Errorf("unknown settlement reference: %s", ref)
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return outcome
}

func newRef() string {
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
