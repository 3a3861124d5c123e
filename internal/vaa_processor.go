package internal

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/payload"
	"github.com/orbital-protocol/relayer/internal/submitter"
)

// Outcome classifies what happened to one attestation.
type Outcome int

const (
	OutcomeEmptyPayload Outcome = iota
	OutcomeIgnored
	OutcomeUnimplementedRoute
	OutcomeSubmitted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmptyPayload:
		return "empty"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnimplementedRoute:
		return "unimplemented_route"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of routing one attestation. Err is set for every
// outcome except OutcomeSubmitted and OutcomeEmptyPayload.
type Result struct {
	Outcome     Outcome
	Method      payload.Method
	Action      payload.Action
	Destination vaaLib.ChainID
	Receipt     submitter.Receipt
	Err         error
}

type routeKey struct {
	method      payload.Method
	destination vaaLib.ChainID
}

// Router decodes attestations and hands them to the builder registered for
// (method, destination chain). Registration happens before dispatch starts;
// Route only reads the table.
type Router struct {
	decoder  *payload.Decoder
	builders map[routeKey]submitter.TransactionBuilder
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger, decoder *payload.Decoder) *Router {
	return &Router{
		decoder:  decoder,
		builders: make(map[routeKey]submitter.TransactionBuilder),
		logger:   logger.With(zap.String("component", "Router")),
	}
}

// Register installs b for method on its destination chain.
func (r *Router) Register(method payload.Method, b submitter.TransactionBuilder) {
	r.builders[routeKey{method, b.Destination()}] = b
}

// Routes lists the registered (method, destination) pairs.
func (r *Router) Routes() []string {
	out := make([]string, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, fmt.Sprintf("%s->%s", k.method, k.destination))
	}
	return out
}

// Recognizes reports whether att's payload starts with a known method
// selector for its emitter chain.
func (r *Router) Recognizes(att Attestation) bool {
	if len(att.Payload) == 0 {
		return false
	}
	_, err := r.decoder.Identify(att.EmitterChain, att.Payload)
	return err == nil
}

// Route runs one attestation through decode and, on a match, one builder.
// It never returns an error to the caller; failures are reported in Result.
func (r *Router) Route(ctx context.Context, att Attestation) (res Result) {
	logger := r.logger.With(
		zap.Stringer("chain", att.EmitterChain),
		zap.Uint64("sequence", att.Sequence),
		zap.String("sourceTxHash", att.SourceTxHash))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Dispatch panicked", zap.Any("panic", p))
			res = Result{Outcome: OutcomeFailed, Method: res.Method, Err: errors.Errorf("panic: %v", p)}
		}
	}()

	if len(att.Payload) == 0 {
		logger.Debug("Attestation has no payload, nothing to dispatch")
		return Result{Outcome: OutcomeEmptyPayload}
	}

	action, err := r.decoder.Decode(att.EmitterChain, att.Payload)
	switch {
	case errors.Is(err, payload.ErrUnknownMethod):
		logger.Debug("No method selector matched, ignoring")
		return Result{Outcome: OutcomeIgnored, Err: err}
	case err != nil:
		logger.Warn("Payload could not be decoded, ignoring", zap.Error(err))
		return Result{Outcome: OutcomeIgnored, Err: err}
	}

	res = Result{Method: action.Method(), Action: action}
	logger = logger.With(
		zap.Stringer("method", action.Method()),
		zap.String("loanId", payload.Hex32(action.Loan())))

	destination, ok := payload.Counterpart(att.EmitterChain)
	if !ok {
		res.Outcome, res.Err = OutcomeIgnored, payload.ErrUnsupportedChain
		return res
	}
	res.Destination = destination

	builder, ok := r.builders[routeKey{action.Method(), destination}]
	if !ok {
		logger.Warn("No transaction builder registered for route",
			zap.Stringer("destination", destination))
		res.Outcome, res.Err = OutcomeUnimplementedRoute, submitter.ErrNoMatchingHandler
		return res
	}

	logger.Info("Dispatching attestation", zap.Stringer("destination", destination))
	receipt, err := builder.Build(ctx, submitter.Request{
		Nonce:        att.Nonce,
		Sequence:     att.Sequence,
		SourceTxHash: att.SourceTxHash,
		Action:       action,
	})
	if err != nil {
		if errors.Is(err, submitter.ErrNoMatchingHandler) {
			res.Outcome, res.Err = OutcomeUnimplementedRoute, err
			return res
		}
		if ctx.Err() != nil {
			logger.Warn("Dispatch interrupted", zap.Error(ctx.Err()))
		}
		logger.Error("Dispatch failed", zap.Error(err))
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	logger.Info("Dispatch completed",
		zap.Stringer("destination", destination),
		zap.String("txHash", receipt.TxID))
	res.Outcome, res.Receipt = OutcomeSubmitted, receipt
	return res
}
