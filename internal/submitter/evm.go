package submitter

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/payload"
)

// Orbital contract entry points used by the relayer.
const orbitalABIJSON = `[
	{
		"inputs": [
			{"internalType": "uint32", "name": "nonce", "type": "uint32"},
			{"internalType": "bytes32", "name": "loanId", "type": "bytes32"},
			{"internalType": "bytes32", "name": "receiver", "type": "bytes32"},
			{"internalType": "uint16", "name": "fromChainId", "type": "uint16"},
			{"internalType": "bytes32", "name": "fromContractId", "type": "bytes32"},
			{"internalType": "bytes32", "name": "tokenIn", "type": "bytes32"},
			{"internalType": "bytes32", "name": "tokenOut", "type": "bytes32"},
			{"internalType": "uint256", "name": "value", "type": "uint256"}
		],
		"name": "receiveOnBorrow",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint32", "name": "nonce", "type": "uint32"},
			{"internalType": "bytes32", "name": "loanId", "type": "bytes32"}
		],
		"name": "receiveOnRepay",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var orbitalABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(orbitalABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// TokenRole names a configured token slot on the EVM contract.
type TokenRole int

const (
	TokenDefaultIn TokenRole = iota
	TokenDefaultOut
)

// EVMBackend is implemented by *clients.EVMClient.
type EVMBackend interface {
	Address() common.Address
	EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error)
	SendTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type EVMConfig struct {
	Contract       common.Address
	Tokens         map[TokenRole]common.Address
	GasMarginPct   int
	ConfirmTimeout time.Duration
}

// EVMCall is a fully resolved contract call. It is never mutated once built.
type EVMCall struct {
	Contract common.Address
	Method   string
	Args     []interface{}
	Data     []byte
}

// EVMSubmitter relays Sui-originated actions to the EVM Orbital contract
type EVMSubmitter struct {
	config EVMConfig
	client EVMBackend
	logger *zap.Logger
}

// NewEVMSubmitter creates a new EVM submitter instance
func NewEVMSubmitter(logger *zap.Logger, config EVMConfig, client EVMBackend) *EVMSubmitter {
	return &EVMSubmitter{
		config: config,
		client: client,
		logger: logger.With(zap.String("component", "EVMSubmitter")),
	}
}

func (s *EVMSubmitter) Destination() vaaLib.ChainID { return vaaLib.ChainIDAvalanche }

// LeftPad32 left-pads b with zeros to 32 bytes. Inputs longer than 32 bytes
// are rejected.
func LeftPad32(b []byte) ([32]byte, error) {
	var out [32]byte
	if len(b) > len(out) {
		return out, errors.Errorf("value is %d bytes, cannot pad to 32", len(b))
	}
	copy(out[:], common.LeftPadBytes(b, 32))
	return out, nil
}

func (s *EVMSubmitter) token(role TokenRole) ([32]byte, error) {
	addr, ok := s.config.Tokens[role]
	if !ok {
		return [32]byte{}, errors.Errorf("no token configured for role %d", role)
	}
	padded, err := LeftPad32(addr.Bytes())
	if err != nil {
		return [32]byte{}, errors.Wrapf(err, "token for role %d", role)
	}
	return padded, nil
}

// BuildCall resolves the contract call for a Sui-originated action.
func (s *EVMSubmitter) BuildCall(req Request) (EVMCall, error) {
	var (
		method string
		args   []interface{}
	)

	switch a := req.Action.(type) {
	case payload.SuiBorrow:
		tokenIn, err := s.token(TokenDefaultIn)
		if err != nil {
			return EVMCall{}, err
		}
		tokenOut, err := s.token(TokenDefaultOut)
		if err != nil {
			return EVMCall{}, err
		}
		value := a.CoinInValue
		if value == nil {
			value = new(big.Int)
		}
		method = "receiveOnBorrow"
		args = []interface{}{
			req.Nonce,
			a.LoanID,
			a.Receiver,
			uint16(vaaLib.ChainIDSui),
			a.FromContractID,
			tokenIn,
			tokenOut,
			new(big.Int).Set(value),
		}
	case payload.SuiRepay:
		method = "receiveOnRepay"
		args = []interface{}{req.Nonce, a.LoanID}
	default:
		return EVMCall{}, errors.Wrapf(ErrNoMatchingHandler, "%T to EVM", req.Action)
	}

	data, err := orbitalABI.Pack(method, args...)
	if err != nil {
		return EVMCall{}, errors.Wrapf(err, "packing %s", method)
	}
	return EVMCall{Contract: s.config.Contract, Method: method, Args: args, Data: data}, nil
}

// Build estimates, submits and confirms the call for req.
func (s *EVMSubmitter) Build(ctx context.Context, req Request) (Receipt, error) {
	logger := s.logger.With(
		zap.String("loanId", loanHex(req.Action)),
		zap.String("sourceTxHash", req.SourceTxHash),
		zap.Uint64("sequence", req.Sequence))

	call, err := s.BuildCall(req)
	if err != nil {
		return Receipt{}, err
	}

	gas, err := s.client.EstimateGas(ctx, call.Contract, call.Data)
	if err != nil {
		logger.Error("Gas estimation failed", zap.String("method", call.Method), zap.Error(err))
		return Receipt{}, errors.Wrap(ErrEstimationFailure, err.Error())
	}
	gasLimit := WithMargin(gas, s.config.GasMarginPct)

	logger.Info("Submitting transaction to EVM",
		zap.String("method", call.Method),
		zap.String("contract", call.Contract.Hex()),
		zap.String("from", s.client.Address().Hex()),
		zap.Uint64("gasEstimate", gas),
		zap.Uint64("gasLimit", gasLimit))

	tx, err := s.client.SendTransaction(ctx, call.Contract, call.Data, gasLimit)
	if err != nil {
		logger.Error("Transaction submission failed", zap.String("method", call.Method), zap.Error(err))
		return Receipt{}, errors.Wrap(ErrSubmissionFailure, err.Error())
	}
	txHash := tx.Hash()

	waitCtx := ctx
	if s.config.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.config.ConfirmTimeout)
		defer cancel()
	}
	receipt, err := s.client.WaitMined(waitCtx, txHash)
	if err != nil {
		logger.Error("Transaction not confirmed", zap.String("txHash", txHash.Hex()), zap.Error(err))
		return Receipt{}, confirmationError(waitCtx, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.Error("Transaction reverted", zap.String("txHash", txHash.Hex()))
		return Receipt{}, errors.Wrapf(ErrSubmissionFailure, "transaction %s reverted", txHash.Hex())
	}

	logger.Info("Transaction confirmed on EVM",
		zap.String("txHash", txHash.Hex()),
		zap.Uint64("gasUsed", receipt.GasUsed))
	return Receipt{TxID: txHash.Hex()}, nil
}

// WithMargin inflates a gas estimate by pct percent.
func WithMargin(gas uint64, pct int) uint64 {
	if pct <= 0 {
		return gas
	}
	return gas + gas*uint64(pct)/100
}
