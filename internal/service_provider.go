package internal

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/internal/clients"
	"github.com/vadiminshakov/collat/internal/domain"
	"github.com/vadiminshakov/collat/internal/services/ledger"
)

// newLedgerService creates the ledger backend for the given client.
// This is the single point of truth for dispatching to platform-specific
// implementations.
func newLedgerService(client any, account domain.Account, logger *zap.Logger) (ledger.ReadWriter, error) {
	switch c := client.(type) {
	case *clients.EVMClient:
		return ledger.NewEVMLedger(c, logger)
	case *clients.SimulateClient:
		sim := ledger.NewSimulatedLedger(c.Price, c.SettleDelay)
		if !account.IsZero() {
			sim.Fund(account, c.WalletCollateral, c.WalletDebt)
		}
		return sim, nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}
