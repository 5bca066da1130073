package clients

import (
	"math/big"
	"time"
)

// SimulateClient carries the parameters of the in-memory ledger used by
// the simulate platform: a fixed oracle price and a seeded wallet, so
// the full deposit/borrow flow can be exercised without a chain.
type SimulateClient struct {
	Price            *big.Int
	SettleDelay      time.Duration
	WalletCollateral *big.Int
	WalletDebt       *big.Int
}

// NewSimulateClient creates a simulate client with a 2000 price, a
// two-second settlement delay and ten collateral units in the wallet.
func NewSimulateClient() *SimulateClient {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return &SimulateClient{
		Price:            new(big.Int).Mul(big.NewInt(2000), unit),
		SettleDelay:      2 * time.Second,
		WalletCollateral: new(big.Int).Mul(big.NewInt(10), unit),
		WalletDebt:       new(big.Int),
	}
}
