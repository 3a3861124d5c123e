package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/clients"
	"github.com/orbital-protocol/relayer/internal/metrics"
	"github.com/orbital-protocol/relayer/internal/payload"
	"github.com/orbital-protocol/relayer/internal/storage"
)

// ErrStartupFailure is returned by Start once every startup attempt failed.
var ErrStartupFailure = errors.New("relayer startup failed")

const (
	laneBuffer       = 64
	txLookupTimeout  = 5 * time.Second
	defaultRetryWait = 5 * time.Second
)

// State is the supervisor's lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateProbingEndpoint
	StateProbingStorage
	StateSubscribed
	StateListening
	StateDispatching
	StateFailed
	StateAborted
	StateStopped
)

var allStates = []State{
	StateStarting, StateProbingEndpoint, StateProbingStorage, StateSubscribed,
	StateListening, StateDispatching, StateFailed, StateAborted, StateStopped,
}

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateProbingEndpoint:
		return "probing_endpoint"
	case StateProbingStorage:
		return "probing_storage"
	case StateSubscribed:
		return "subscribed"
	case StateListening:
		return "listening"
	case StateDispatching:
		return "dispatching"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source is a connected message bus client.
type Source interface {
	Subscribe(ctx context.Context, emitters map[vaaLib.ChainID]string) (clients.VAAStream, error)
	Close() error
}

// SourceDialer connects to the message bus at endpoint.
type SourceDialer func(ctx context.Context, endpoint string) (Source, error)

// SpyDialer dials the guardian spy with the gRPC client.
func SpyDialer(logger *zap.Logger) SourceDialer {
	return func(_ context.Context, endpoint string) (Source, error) {
		spy, err := clients.NewSpyClient(logger, endpoint)
		if err != nil {
			return nil, err
		}
		return spy, nil
	}
}

// EndpointSelector is implemented by *probe.Prober.
type EndpointSelector interface {
	Select(ctx context.Context, endpoints []string) (string, bool)
}

// TxHashResolver is implemented by *clients.WormholescanClient.
type TxHashResolver interface {
	SourceTxHash(ctx context.Context, chain vaaLib.ChainID, emitter string, sequence uint64) string
}

// Options is the supervisor's read-only configuration.
type Options struct {
	SpyEndpoints     []string
	Emitters         map[vaaLib.ChainID]string
	StartingSequence map[vaaLib.ChainID]uint64
	MaxAttempts      int
	RetryDelay       time.Duration
}

// Dependencies are the collaborators the supervisor drives. TxHashes and
// Metrics are optional.
type Dependencies struct {
	Prober        EndpointSelector
	Dial          SourceDialer
	SelectStorage func(ctx context.Context) storage.Handle
	Router        *Router
	Bookkeeper    *storage.Bookkeeper
	TxHashes      TxHashResolver
	Metrics       *metrics.Metrics
}

// Relayer is the dispatch supervisor. It owns the startup retry loop and the
// steady-state message loop.
type Relayer struct {
	opts     Options
	deps     Dependencies
	emitters map[vaaLib.ChainID]string
	state    atomic.Int32
	inFlight atomic.Int64
	logger   *zap.Logger
}

// NewRelayer creates a new relayer instance
func NewRelayer(logger *zap.Logger, opts Options, deps Dependencies) *Relayer {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = defaultRetryWait
	}
	emitters := make(map[vaaLib.ChainID]string, len(opts.Emitters))
	for chain, addr := range opts.Emitters {
		emitters[chain] = clients.NormalizeEmitter(addr)
	}
	if deps.Bookkeeper == nil {
		deps.Bookkeeper = storage.NewBookkeeper(logger, "orbital-relayer")
	}
	if deps.SelectStorage == nil {
		deps.SelectStorage = func(context.Context) storage.Handle { return storage.Unavailable{} }
	}

	r := &Relayer{
		opts:     opts,
		deps:     deps,
		emitters: emitters,
		logger:   logger.With(zap.String("component", "Relayer")),
	}
	r.setState(StateStarting)
	return r
}

// State reports the current supervisor state. Listening is reported as
// Dispatching while any dispatch is in flight.
func (r *Relayer) State() State {
	s := State(r.state.Load())
	if s == StateListening && r.inFlight.Load() > 0 {
		return StateDispatching
	}
	return s
}

func (r *Relayer) setState(s State) {
	r.state.Store(int32(s))
	r.publishState(s)
}

func (r *Relayer) publishState(s State) {
	if r.deps.Metrics == nil {
		return
	}
	names := make([]string, len(allStates))
	for i, st := range allStates {
		names[i] = st.String()
	}
	r.deps.Metrics.SetState(s.String(), names)
}

// Start runs the supervisor until ctx is cancelled (returns nil) or startup
// fails MaxAttempts times in a row (returns ErrStartupFailure).
func (r *Relayer) Start(ctx context.Context) error {
	defer func() {
		if r.State() != StateAborted {
			r.setState(StateStopped)
		}
		_ = r.deps.Bookkeeper.Use(storage.Unavailable{}).Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		source, stream, err := r.startWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.setState(StateAborted)
			r.logger.Error("Giving up after repeated startup failures; check that the spy is running and reachable, and that the emitter filters are valid",
				zap.Strings("spyEndpoints", r.opts.SpyEndpoints),
				zap.Int("attempts", r.opts.MaxAttempts),
				zap.Error(err))
			return errors.Wrapf(ErrStartupFailure, "after %d attempts: %v", r.opts.MaxAttempts, err)
		}

		err = r.listen(ctx, stream)
		_ = source.Close()
		if ctx.Err() != nil {
			r.logger.Info("Shutdown complete")
			return nil
		}

		r.logger.Warn("VAA stream broken, restarting", zap.Error(err), zap.Duration("retryIn", r.opts.RetryDelay))
		if !sleepCtx(ctx, r.opts.RetryDelay) {
			return nil
		}
	}
}

// startWithRetry runs startup up to MaxAttempts times, RetryDelay apart.
// Every failed attempt is counted, including the last one.
func (r *Relayer) startWithRetry(ctx context.Context) (source Source, stream clients.VAAStream, err error) {
	attempt := 0
	err = retry.Do(
		func() error {
			attempt++
			r.setState(StateStarting)

			var startErr error
			source, stream, startErr = r.startup(ctx)
			if startErr == nil {
				r.countStartup("success")
				return nil
			}
			if ctx.Err() != nil {
				return retry.Unrecoverable(startErr)
			}
			r.countStartup("failure")
			r.setState(StateFailed)
			r.logger.Warn("Startup attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", r.opts.MaxAttempts),
				zap.Error(startErr))
			return startErr
		},
		retry.Attempts(uint(r.opts.MaxAttempts)),
		retry.Delay(r.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, _ error) {
			if int(n)+1 < r.opts.MaxAttempts {
				r.logger.Debug("Retrying startup", zap.Uint("nextAttempt", n+2), zap.Duration("retryIn", r.opts.RetryDelay))
			}
		}),
	)
	return source, stream, err
}

func (r *Relayer) countStartup(result string) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.StartupAttempts.WithLabelValues(result).Inc()
	}
}

// startup walks ProbingEndpoint, ProbingStorage and Subscribed. Only the
// connection and subscription steps can fail.
func (r *Relayer) startup(ctx context.Context) (Source, clients.VAAStream, error) {
	r.setState(StateProbingEndpoint)
	endpoint := ""
	if len(r.opts.SpyEndpoints) > 0 {
		endpoint = r.opts.SpyEndpoints[0]
	}
	if r.deps.Prober != nil {
		if selected, _ := r.deps.Prober.Select(ctx, r.opts.SpyEndpoints); selected != "" {
			endpoint = selected
		}
	}
	if endpoint == "" {
		return nil, nil, errors.New("no spy endpoint configured")
	}

	r.setState(StateProbingStorage)
	handle := r.deps.SelectStorage(ctx)
	if prev := r.deps.Bookkeeper.Use(handle); prev != handle {
		_ = prev.Close()
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.SetBackend(handle.Kind().String(), []string{
			storage.KindUnavailable.String(), storage.KindProtocol.String(), storage.KindRest.String(),
		})
	}
	r.logResumePoints(ctx)

	source, err := r.deps.Dial(ctx, endpoint)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "connect to %s", endpoint)
	}
	stream, err := source.Subscribe(ctx, r.emitters)
	if err != nil {
		_ = source.Close()
		return nil, nil, errors.Wrapf(err, "subscribe at %s", endpoint)
	}

	r.setState(StateSubscribed)
	r.logger.Info("Subscribed to signed VAAs",
		zap.String("endpoint", endpoint),
		zap.Int("emitters", len(r.emitters)))
	return source, stream, nil
}

func (r *Relayer) logResumePoints(ctx context.Context) {
	for chain := range r.emitters {
		if seq, ok := r.deps.Bookkeeper.LastSequence(ctx, chain); ok {
			r.logger.Info("Last dispatched sequence on record",
				zap.Stringer("chain", chain),
				zap.Uint64("sequence", seq),
				zap.Uint64("startingSequence", r.opts.StartingSequence[chain]))
		}
	}
}

// listen receives until the stream breaks or ctx ends. Each source chain gets
// its own lane: dispatch is sequential within a chain and concurrent across
// chains. In-flight dispatches are allowed to finish on shutdown.
func (r *Relayer) listen(ctx context.Context, stream clients.VAAStream) error {
	r.setState(StateListening)
	r.logger.Info("Listening for VAAs")

	dispatchCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	lanes := make(map[vaaLib.ChainID]chan Attestation, len(r.emitters))
	for chain := range r.emitters {
		lane := make(chan Attestation, laneBuffer)
		lanes[chain] = lane
		wg.Add(1)
		go func() {
			defer wg.Done()
			for att := range lane {
				if ctx.Err() != nil {
					continue
				}
				r.dispatch(dispatchCtx, att)
			}
		}()
	}
	closeLanes := func() {
		for _, lane := range lanes {
			close(lane)
		}
		r.logger.Debug("Waiting for in-flight dispatches", zap.Int64("inFlight", r.inFlight.Load()))
		wg.Wait()
	}

	for {
		raw, err := stream.Recv()
		if err != nil {
			closeLanes()
			return errors.Wrap(err, "receive VAA")
		}

		att, err := ParseAttestation(raw)
		if err != nil {
			r.logger.Warn("Failed to parse VAA", zap.Error(err))
			continue
		}
		if !r.accept(att) {
			continue
		}

		select {
		case lanes[att.EmitterChain] <- att:
		case <-ctx.Done():
			closeLanes()
			return ctx.Err()
		}
	}
}

// accept applies the local emitter filter. Live messages are never filtered
// by sequence: the starting sequence only marks where a resume begins.
func (r *Relayer) accept(att Attestation) bool {
	want, ok := r.emitters[att.EmitterChain]
	if !ok || want != att.EmitterHex() {
		r.logger.Debug("Skipping VAA (not from configured emitter)",
			zap.Stringer("chain", att.EmitterChain),
			zap.String("emitter", att.EmitterHex()),
			zap.Uint64("sequence", att.Sequence))
		return false
	}
	return true
}

func (r *Relayer) dispatch(ctx context.Context, att Attestation) Result {
	if r.inFlight.Add(1) == 1 {
		r.publishState(StateDispatching)
	}
	defer func() {
		if r.inFlight.Add(-1) == 0 && State(r.state.Load()) == StateListening {
			r.publishState(StateListening)
		}
	}()
	start := time.Now()

	// Only messages the decoder recognises are worth an explorer round trip.
	if r.deps.TxHashes != nil && r.deps.Router.Recognizes(att) {
		lookupCtx, cancel := context.WithTimeout(ctx, txLookupTimeout)
		att.SourceTxHash = r.deps.TxHashes.SourceTxHash(lookupCtx, att.EmitterChain, att.EmitterHex(), att.Sequence)
		cancel()
	}

	logAttestation(r.logger.With(zap.String("vaaId", vaaID(att))), att)
	res := r.deps.Router.Route(ctx, att)

	if m := r.deps.Metrics; m != nil {
		m.DispatchOutcomes.WithLabelValues(att.EmitterChain.String(), res.Method.String(), res.Outcome.String()).Inc()
		m.DispatchDuration.WithLabelValues(att.EmitterChain.String()).Observe(time.Since(start).Seconds())
		m.LastSequence.WithLabelValues(att.EmitterChain.String()).Set(float64(att.Sequence))
	}

	r.deps.Bookkeeper.RecordSequence(ctx, att.EmitterChain, att.Sequence)
	if res.Outcome == OutcomeSubmitted && res.Method == payload.MethodBorrow {
		r.deps.Bookkeeper.RecordLoan(ctx, storage.LoanRecord{
			LoanID:       payload.Hex32(res.Action.Loan()),
			SourceChain:  uint16(att.EmitterChain),
			Sequence:     att.Sequence,
			SourceTxHash: att.SourceTxHash,
			TxID:         res.Receipt.TxID,
			LoanObject:   res.Receipt.LoanObject,
		})
	}
	return res
}
