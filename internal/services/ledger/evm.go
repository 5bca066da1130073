package ledger

import (
	"context"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/internal/clients"
	"github.com/vadiminshakov/collat/internal/domain"
	"github.com/vadiminshakov/collat/pkg/retrier"
)

const lendingABIJSON = `[
 {"name":"users","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"collateralAmount","type":"uint256"},{"name":"borrowedAmount","type":"uint256"},{"name":"lastUpdateTime","type":"uint256"},{"name":"accumulatedInterest","type":"uint256"}]},
 {"name":"getTotalDebt","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"name":"getMaxBorrowAmount","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"name":"getLatestPrice","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"name":"isLiquidatable","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"name":"depositCollateral","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"name":"withdrawCollateral","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"name":"borrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"name":"repay","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const erc20ABIJSON = `[
 {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const defaultReceiptPollInterval = 3 * time.Second

// EVMLedger implements both ledger capabilities on top of an EVM
// lending protocol contract accessed over JSON-RPC.
type EVMLedger struct {
	client              *clients.EVMClient
	lendingABI          abi.ABI
	erc20ABI            abi.ABI
	receiptPollInterval time.Duration
	readRetrier         *retrier.Retrier
	logger              *zap.Logger
}

// NewEVMLedger builds the EVM-backed ledger.
func NewEVMLedger(client *clients.EVMClient, logger *zap.Logger) (*EVMLedger, error) {
	lending, err := abi.JSON(strings.NewReader(lendingABIJSON))
	if err != nil {
		return nil, errors.Wrap(err, "parse lending abi")
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, errors.Wrap(err, "parse erc20 abi")
	}
	return &EVMLedger{
		client:              client,
		lendingABI:          lending,
		erc20ABI:            erc20,
		receiptPollInterval: defaultReceiptPollInterval,
		// reads are idempotent, so transient RPC failures are retried;
		// the budget stays below the shortest refresh cadence
		readRetrier: retrier.New(
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxInterval(2*time.Second),
			retrier.WithMaxRetries(2),
		),
		logger: logger,
	}, nil
}

func (l *EVMLedger) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	out, err := retrier.DoWithData(l.readRetrier, ctx, func(ctx context.Context) ([]byte, error) {
		return l.client.Eth().CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	res, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	return res, nil
}

func asBigInt(v interface{}) (*big.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected output type %T", v)
	}
	return b, nil
}

// Position reads the account's raw position fields.
func (l *EVMLedger) Position(ctx context.Context, account domain.Account) (*domain.RawPosition, error) {
	out, err := l.call(ctx, l.client.Contract(), l.lendingABI, "users", common.HexToAddress(account.String()))
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, errors.Errorf("users returned %d values, want 4", len(out))
	}
	collateral, err := asBigInt(out[0])
	if err != nil {
		return nil, err
	}
	borrowed, err := asBigInt(out[1])
	if err != nil {
		return nil, err
	}
	updated, err := asBigInt(out[2])
	if err != nil {
		return nil, err
	}
	interest, err := asBigInt(out[3])
	if err != nil {
		return nil, err
	}
	return &domain.RawPosition{
		CollateralAmount:    collateral,
		BorrowedAmount:      borrowed,
		LastUpdateTime:      updated.Uint64(),
		AccumulatedInterest: interest,
	}, nil
}

// TotalDebt reads the ledger-computed principal plus accrued interest.
func (l *EVMLedger) TotalDebt(ctx context.Context, account domain.Account) (*big.Int, error) {
	out, err := l.call(ctx, l.client.Contract(), l.lendingABI, "getTotalDebt", common.HexToAddress(account.String()))
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

// MaxBorrowable reads the ledger-computed borrow headroom.
func (l *EVMLedger) MaxBorrowable(ctx context.Context, account domain.Account) (*big.Int, error) {
	out, err := l.call(ctx, l.client.Contract(), l.lendingABI, "getMaxBorrowAmount", common.HexToAddress(account.String()))
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

// AssetPrice reads the oracle price of the collateral asset in debt
// units, scaled by 10^18.
func (l *EVMLedger) AssetPrice(ctx context.Context) (*big.Int, error) {
	out, err := l.call(ctx, l.client.Contract(), l.lendingABI, "getLatestPrice")
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

// Liquidatable reads the ledger's advisory liquidation flag.
func (l *EVMLedger) Liquidatable(ctx context.Context, account domain.Account) (bool, error) {
	out, err := l.call(ctx, l.client.Contract(), l.lendingABI, "isLiquidatable", common.HexToAddress(account.String()))
	if err != nil {
		return false, err
	}
	b, ok := out[0].(bool)
	if !ok {
		return false, errors.Errorf("unexpected output type %T", out[0])
	}
	return b, nil
}

// WalletBalances reads the account's collateral and debt token wallet
// balances.
func (l *EVMLedger) WalletBalances(ctx context.Context, account domain.Account) (*big.Int, *big.Int, error) {
	addr := common.HexToAddress(account.String())
	out, err := l.call(ctx, l.client.CollateralToken(), l.erc20ABI, "balanceOf", addr)
	if err != nil {
		return nil, nil, err
	}
	collateral, err := asBigInt(out[0])
	if err != nil {
		return nil, nil, err
	}
	out, err = l.call(ctx, l.client.DebtToken(), l.erc20ABI, "balanceOf", addr)
	if err != nil {
		return nil, nil, err
	}
	debt, err := asBigInt(out[0])
	if err != nil {
		return nil, nil, err
	}
	return collateral, debt, nil
}

func methodForKind(kind domain.TxKind) (string, error) {
	switch kind {
	case domain.TxDeposit:
		return "depositCollateral", nil
	case domain.TxWithdraw:
		return "withdrawCollateral", nil
	case domain.TxBorrow:
		return "borrow", nil
	case domain.TxRepay:
		return "repay", nil
	default:
		return "", errors.Errorf("unknown operation: %s", kind)
	}
}

// Submit signs and broadcasts the operation. A failed gas estimate
// means the contract would revert, so it is surfaced as a synchronous
// rejection before anything hits the chain.
func (l *EVMLedger) Submit(ctx context.Context, req domain.TxRequest, requestID string) (string, error) {
	method, err := methodForKind(req.Kind)
	if err != nil {
		return "", err
	}
	data, err := l.lendingABI.Pack(method, req.Amount)
	if err != nil {
		return "", errors.Wrapf(err, "pack %s", method)
	}

	eth := l.client.Eth()
	from := l.client.From()
	contract := l.client.Contract()

	nonce, err := eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", errors.Wrap(err, "fetch nonce")
	}
	gasPrice, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", errors.Wrap(err, "suggest gas price")
	}
	gasLimit, err := eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &contract, Data: data})
	if err != nil {
		return "", errors.Wrapf(err, "%s rejected", method)
	}

	tx := types.NewTransaction(nonce, contract, new(big.Int), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.client.ChainID()), l.client.Key())
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}
	if err := eth.SendTransaction(ctx, signed); err != nil {
		return "", errors.Wrapf(err, "broadcast %s", method)
	}

	ref := signed.Hash().Hex()
	l.logger.Info("transaction broadcast",
		zap.String("operation", req.Kind.String()),
		zap.String("request_id", requestID),
		zap.String("tx", ref))
	return ref, nil
}

// AwaitSettlement polls for the transaction receipt until the chain
// reports a terminal outcome or the context is cancelled.
func (l *EVMLedger) AwaitSettlement(ctx context.Context, ref string) error {
	hash := common.HexToHash(ref)
	ticker := time.NewTicker(l.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.Eth().TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return errors.Errorf("transaction %s reverted", ref)
		case errors.Is(err, ethereum.NotFound):
			// still pending
		default:
			return errors.Wrap(err, "fetch receipt")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
