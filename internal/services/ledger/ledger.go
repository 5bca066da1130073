// Package ledger defines the read and write capabilities of the
// external lending protocol and its concrete backends.
package ledger

import (
	"context"
	"math/big"

	"github.com/vadiminshakov/collat/internal/domain"
)

// Reader is the point-in-time query capability of the ledger. Reads are
// side-effect free and safe to retry; independent reads may reflect
// slightly different ledger heights.
type Reader interface {
	Position(ctx context.Context, account domain.Account) (*domain.RawPosition, error)
	TotalDebt(ctx context.Context, account domain.Account) (*big.Int, error)
	MaxBorrowable(ctx context.Context, account domain.Account) (*big.Int, error)
	AssetPrice(ctx context.Context) (*big.Int, error)
	Liquidatable(ctx context.Context, account domain.Account) (bool, error)
	WalletBalances(ctx context.Context, account domain.Account) (collateral, debt *big.Int, err error)
}

// Writer submits state-changing requests. Submit is not safe to
// blind-retry: a lost response may still have recorded the write.
// AwaitSettlement is idempotent to observe.
type Writer interface {
	Submit(ctx context.Context, req domain.TxRequest, requestID string) (ref string, err error)
	AwaitSettlement(ctx context.Context, ref string) error
}

// ReadWriter combines both capabilities of one backend.
type ReadWriter interface {
	Reader
	Writer
}
