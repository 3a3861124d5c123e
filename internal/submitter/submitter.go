package submitter

import (
	"context"

	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/orbital-protocol/relayer/internal/payload"
)

var (
	ErrEstimationFailure   = errors.New("resource estimation failed")
	ErrSubmissionFailure   = errors.New("transaction submission failed")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
	ErrNoMatchingHandler   = errors.New("no transaction builder for route")
)

// Request is one dispatch handed to a TransactionBuilder.
type Request struct {
	Nonce        uint32
	Sequence     uint64
	SourceTxHash string
	Action       payload.Action
}

// Receipt is the result of a confirmed transaction.
type Receipt struct {
	TxID string
	// LoanObject is set when the transaction created a shared loan object.
	LoanObject string
}

// TransactionBuilder turns a decoded action into a confirmed transaction on
// its destination chain. Implementations must be safe for concurrent use and
// must not keep state between calls.
type TransactionBuilder interface {
	Destination() vaaLib.ChainID
	Build(ctx context.Context, req Request) (Receipt, error)
}

func loanHex(a payload.Action) string {
	return payload.Hex32(a.Loan())
}

// confirmationError maps an expired wait onto ErrConfirmationTimeout.
func confirmationError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return errors.Wrap(ErrConfirmationTimeout, err.Error())
	}
	return errors.Wrap(ErrSubmissionFailure, err.Error())
}
