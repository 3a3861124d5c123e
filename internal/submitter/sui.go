package submitter

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/clients"
	"github.com/orbital-protocol/relayer/internal/payload"
)

// SuiBackend is implemented by *clients.SuiClient.
type SuiBackend interface {
	Address() string
	ExecuteMoveCall(ctx context.Context, call clients.MoveCall) (*clients.SuiTransaction, error)
}

// LoanResolver maps an EVM loan id to the Sui loan object created for it.
type LoanResolver interface {
	LoanObject(ctx context.Context, loanID string) (string, bool)
}

type SuiConfig struct {
	Package        string
	Module         string
	StateObject    string
	OwnerCap       string
	Clock          string
	CoinInType     string
	CoinOutType    string
	GasBudget      uint64
	ConfirmTimeout time.Duration
}

// SuiSubmitter relays EVM-originated actions to the Sui Orbital module
type SuiSubmitter struct {
	config SuiConfig
	client SuiBackend
	loans  LoanResolver
	logger *zap.Logger
}

// NewSuiSubmitter creates a submitter; loans may be nil, in which case the
// loan id itself is used as the loan object on repay.
func NewSuiSubmitter(logger *zap.Logger, config SuiConfig, client SuiBackend, loans LoanResolver) *SuiSubmitter {
	return &SuiSubmitter{
		config: config,
		client: client,
		loans:  loans,
		logger: logger.With(zap.String("component", "SuiSubmitter")),
	}
}

func (s *SuiSubmitter) Destination() vaaLib.ChainID { return vaaLib.ChainIDSui }

// PackLoanID converts a loan id into the packed byte vector the Move module
// expects: every zero byte is dropped.
func PackLoanID(id []byte) []byte {
	out := make([]byte, 0, len(id))
	for _, b := range id {
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// PackLoanIDHex is PackLoanID over a hex string with optional 0x prefix.
func PackLoanIDHex(h string) ([]byte, error) {
	h = strings.TrimPrefix(h, "0x")
	if len(h)%2 != 0 {
		return nil, errors.New("hex string must have an even number of characters")
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, errors.Wrap(err, "decoding loan id")
	}
	return PackLoanID(raw), nil
}

// moveBytes renders a vector<u8> argument for the JSON-RPC move call.
func moveBytes(b []byte) []interface{} {
	out := make([]interface{}, len(b))
	for i, v := range b {
		out[i] = v
	}
	return out
}

// BuildMoveCall resolves the move call for an EVM-originated action. loanObject
// is only used for repay.
func BuildMoveCall(cfg SuiConfig, req Request, loanObject string) (clients.MoveCall, error) {
	call := clients.MoveCall{
		Package:   cfg.Package,
		Module:    cfg.Module,
		GasBudget: cfg.GasBudget,
	}

	switch a := req.Action.(type) {
	case payload.EVMBorrow:
		if a.Value == nil || a.Value.Sign() < 0 || a.Value.BitLen() > 128 {
			return clients.MoveCall{}, errors.Wrap(payload.ErrMalformedPayload, "borrow value does not fit in u128")
		}
		call.Function = "receive_on_borrow"
		call.TypeArguments = []string{cfg.CoinOutType}
		call.Arguments = []interface{}{
			cfg.OwnerCap,
			cfg.StateObject,
			req.Nonce,
			moveBytes(PackLoanID(a.LoanID[:])),
			uint16(vaaLib.ChainIDAvalanche),
			payload.Hex32(a.Receiver),
			a.Value.String(),
			cfg.Clock,
		}
	case payload.EVMRepay:
		call.Function = "receive_on_repay"
		call.TypeArguments = []string{cfg.CoinInType}
		call.Arguments = []interface{}{
			cfg.OwnerCap,
			cfg.StateObject,
			req.Nonce,
			loanObject,
		}
	default:
		return clients.MoveCall{}, errors.Wrapf(ErrNoMatchingHandler, "%T to Sui", req.Action)
	}
	return call, nil
}

func (s *SuiSubmitter) loanObject(ctx context.Context, req Request) string {
	id := loanHex(req.Action)
	if s.loans != nil {
		if obj, ok := s.loans.LoanObject(ctx, id); ok && obj != "" {
			return obj
		}
	}
	return id
}

// Build executes the move call for req and waits for finality.
func (s *SuiSubmitter) Build(ctx context.Context, req Request) (Receipt, error) {
	logger := s.logger.With(
		zap.String("loanId", loanHex(req.Action)),
		zap.String("sourceTxHash", req.SourceTxHash),
		zap.Uint64("sequence", req.Sequence))

	var loanObject string
	if _, ok := req.Action.(payload.EVMRepay); ok {
		loanObject = s.loanObject(ctx, req)
	}

	call, err := BuildMoveCall(s.config, req, loanObject)
	if err != nil {
		return Receipt{}, err
	}

	logger.Info("Submitting move call to Sui",
		zap.String("function", call.Module+"::"+call.Function),
		zap.Strings("typeArguments", call.TypeArguments),
		zap.String("sender", s.client.Address()),
		zap.Uint64("gasBudget", call.GasBudget))

	execCtx := ctx
	if s.config.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.config.ConfirmTimeout)
		defer cancel()
	}

	tx, err := s.client.ExecuteMoveCall(execCtx, call)
	if err != nil {
		logger.Error("Move call failed", zap.String("function", call.Function), zap.Error(err))
		if errors.Is(err, clients.ErrTransactionFailed) {
			return Receipt{}, errors.Wrap(ErrSubmissionFailure, err.Error())
		}
		return Receipt{}, confirmationError(execCtx, err)
	}

	receipt := Receipt{TxID: tx.Digest}
	if shared := tx.SharedObjects(); len(shared) > 0 {
		receipt.LoanObject = shared[0]
		logger.Info("New loan created", zap.String("loanObject", receipt.LoanObject))
	}

	logger.Info("Transaction confirmed on Sui", zap.String("digest", tx.Digest))
	return receipt, nil
}
