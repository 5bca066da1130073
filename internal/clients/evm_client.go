package clients

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// EVMClient bundles the RPC connection and the signing key used to
// talk to the lending protocol contract.
type EVMClient struct {
	eth             *ethclient.Client
	key             *ecdsa.PrivateKey
	from            common.Address
	chainID         *big.Int
	contract        common.Address
	collateralToken common.Address
	debtToken       common.Address
}

// NewEVMClient dials the RPC endpoint and prepares the signer. The
// private key is hex-encoded, with or without the 0x prefix.
func NewEVMClient(ctx context.Context, rpcURL, privateKeyHex, contractAddr, collateralTokenAddr, debtTokenAddr string) (*EVMClient, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, errors.Errorf("invalid contract address: %s", contractAddr)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc endpoint")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch chain id")
	}

	return &EVMClient{
		eth:             eth,
		key:             key,
		from:            crypto.PubkeyToAddress(key.PublicKey),
		chainID:         chainID,
		contract:        common.HexToAddress(contractAddr),
		collateralToken: common.HexToAddress(collateralTokenAddr),
		debtToken:       common.HexToAddress(debtTokenAddr),
	}, nil
}

// Eth returns the underlying RPC client.
func (c *EVMClient) Eth() *ethclient.Client { return c.eth }

// Key returns the signing key.
func (c *EVMClient) Key() *ecdsa.PrivateKey { return c.key }

// From returns the signer address.
func (c *EVMClient) From() common.Address { return c.from }

// ChainID returns the connected chain's id.
func (c *EVMClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Contract returns the lending protocol contract address.
func (c *EVMClient) Contract() common.Address { return c.contract }

// CollateralToken returns the collateral token contract address.
func (c *EVMClient) CollateralToken() common.Address { return c.collateralToken }

// DebtToken returns the debt token contract address.
func (c *EVMClient) DebtToken() common.Address { return c.debtToken }

// Close releases the RPC connection.
func (c *EVMClient) Close() {
	c.eth.Close()
}
