package clients

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// 0.1 gwei tip on top of twice the base fee.
var defaultPriorityFee = big.NewInt(100000000)

// EthBackend is the subset of ethclient.Client the relayer needs. It
// includes bind.DeployBackend for receipt polling.
type EthBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

var _ bind.DeployBackend = EthBackend(nil)

// EVMClient signs and submits transactions to an EVM-compatible chain
type EVMClient struct {
	backend    EthBackend
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainMu    sync.Mutex
	chainID    *big.Int
	logger     *zap.Logger
}

// NewEVMClient dials rpcURL. A chainID of zero is resolved from the node on
// first use.
func NewEVMClient(logger *zap.Logger, rpcURL, privateKeyHex string, chainID int64) (*EVMClient, error) {
	logger.Info("Connecting to EVM chain", zap.String("rpcURL", rpcURL))
	ethClient, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to EVM node")
	}
	return NewEVMClientWithBackend(logger, ethClient, privateKeyHex, chainID)
}

func NewEVMClientWithBackend(logger *zap.Logger, backend EthBackend, privateKeyHex string, chainID int64) (*EVMClient, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid EVM private key")
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("error casting public key to ECDSA")
	}

	c := &EVMClient{
		backend:    backend,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
		logger:     logger.With(zap.String("component", "EVMClient")),
	}
	if chainID != 0 {
		c.chainID = big.NewInt(chainID)
	}
	return c, nil
}

// Address returns the public address for this client
func (c *EVMClient) Address() common.Address {
	return c.address
}

func (c *EVMClient) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain ID")
	}
	c.chainID = id
	return id, nil
}

// EstimateGas estimates the gas for calling to with data from this account.
func (c *EVMClient) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.address,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return 0, errors.Wrap(err, "estimate gas")
	}
	return gas, nil
}

// SendTransaction signs and broadcasts a call. EIP-1559 fees are used when
// the latest header carries a base fee, a legacy gas price otherwise.
func (c *EVMClient) SendTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get nonce")
	}

	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest block header")
	}

	var tx *types.Transaction
	if header.BaseFee != nil {
		maxFeePerGas := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
		maxFeePerGas.Add(maxFeePerGas, defaultPriorityFee)

		c.logger.Debug("Gas fees calculated",
			zap.String("baseFee", header.BaseFee.String()),
			zap.String("maxFeePerGas", maxFeePerGas.String()),
			zap.String("maxPriorityFeePerGas", defaultPriorityFee.String()))

		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: new(big.Int).Set(defaultPriorityFee),
			GasFeeCap: maxFeePerGas,
			Gas:       gasLimit,
			To:        &to,
			Value:     big.NewInt(0),
			Data:      data,
		})
	} else {
		gasPrice, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to suggest gas price")
		}
		c.logger.Debug("Using legacy gas price", zap.String("gasPrice", gasPrice.String()))

		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    big.NewInt(0),
			Data:     data,
		})
	}

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, errors.Wrap(err, "failed to send transaction")
	}
	return signedTx, nil
}

// WaitMined polls once a second for the receipt of txHash until it appears
// or ctx ends.
func (c *EVMClient) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.logger.Debug("Waiting for receipt", zap.String("txHash", txHash.Hex()))
	return bind.WaitMinedHash(ctx, c.backend, txHash)
}
