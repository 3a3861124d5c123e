package internal

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/payload"
	"github.com/orbital-protocol/relayer/internal/submitter"
)

// recordingBuilder captures every request it is asked to build.
type recordingBuilder struct {
	mu          sync.Mutex
	destination vaaLib.ChainID
	requests    []submitter.Request
	receipt     submitter.Receipt
	err         error
	panicWith   interface{}
}

func (b *recordingBuilder) Destination() vaaLib.ChainID { return b.destination }

func (b *recordingBuilder) Build(_ context.Context, req submitter.Request) (submitter.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.panicWith != nil {
		panic(b.panicWith)
	}
	return b.receipt, b.err
}

func (b *recordingBuilder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func fill(v byte) (out [32]byte) {
	for i := range out {
		out[i] = v
	}
	return out
}

func suiBorrowAction() payload.SuiBorrow {
	return payload.SuiBorrow{
		LoanID:         fill(0x11),
		Receiver:       fill(0x22),
		FromContractID: fill(0x33),
		FromChain:      21,
		CoinInValue:    big.NewInt(1_000_000),
	}
}

func mustEncode(t *testing.T, sel payload.Selector, a payload.Action) []byte {
	t.Helper()
	p, err := payload.Encode(sel, a)
	require.NoError(t, err)
	return p
}

// buildVAA serialises an unsigned v1 VAA.
func buildVAA(chain vaaLib.ChainID, emitter [32]byte, nonce uint32, sequence uint64, body []byte) []byte {
	out := []byte{1, 0, 0, 0, 0, 0}
	out = binary.BigEndian.AppendUint32(out, 1700000000)
	out = binary.BigEndian.AppendUint32(out, nonce)
	out = binary.BigEndian.AppendUint16(out, uint16(chain))
	out = append(out, emitter[:]...)
	out = binary.BigEndian.AppendUint64(out, sequence)
	out = append(out, 1)
	return append(out, body...)
}

type routerFixture struct {
	router *Router
	evm    *recordingBuilder
	sui    *recordingBuilder
}

func newRouterFixture() routerFixture {
	r := NewRouter(zap.NewNop(), payload.NewDecoder(payload.DefaultSelectors()))
	evm := &recordingBuilder{destination: vaaLib.ChainIDAvalanche, receipt: submitter.Receipt{TxID: "0xhash"}}
	sui := &recordingBuilder{destination: vaaLib.ChainIDSui, receipt: submitter.Receipt{TxID: "digest", LoanObject: "0xloan"}}
	r.Register(payload.MethodBorrow, evm)
	r.Register(payload.MethodRepay, evm)
	r.Register(payload.MethodBorrow, sui)
	r.Register(payload.MethodRepay, sui)
	return routerFixture{r, evm, sui}
}

func TestRouter_SuiBorrowRoutesToEVMWithLoanID(t *testing.T) {
	f := newRouterFixture()
	action := suiBorrowAction()
	att := Attestation{
		EmitterChain: vaaLib.ChainIDSui,
		Nonce:        3,
		Sequence:     40,
		Payload:      mustEncode(t, payload.DefaultSelectors().Borrow, action),
		SourceTxHash: "src",
	}

	res := f.router.Route(context.Background(), att)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSubmitted, res.Outcome)
	assert.Equal(t, payload.MethodBorrow, res.Method)
	assert.Equal(t, vaaLib.ChainIDAvalanche, res.Destination)
	assert.Equal(t, "0xhash", res.Receipt.TxID)

	require.Equal(t, 1, f.evm.count())
	assert.Equal(t, 0, f.sui.count())
	req := f.evm.requests[0]
	assert.Equal(t, uint32(3), req.Nonce)
	assert.Equal(t, uint64(40), req.Sequence)
	assert.Equal(t, "src", req.SourceTxHash)
	got, ok := req.Action.(payload.SuiBorrow)
	require.True(t, ok)
	assert.Equal(t, action.LoanID, got.LoanID)
	assert.Equal(t, action.Receiver, got.Receiver)
	assert.Equal(t, action.FromChain, got.FromChain)
	assert.Equal(t, 0, action.CoinInValue.Cmp(got.CoinInValue))
}

func TestRouter_EVMRepayRoutesToSui(t *testing.T) {
	f := newRouterFixture()
	att := Attestation{
		EmitterChain: vaaLib.ChainIDAvalanche,
		Payload: mustEncode(t, payload.DefaultSelectors().Repay, payload.EVMRepay{
			LoanID: fill(0x44), FromChain: 6,
		}),
	}

	res := f.router.Route(context.Background(), att)
	assert.Equal(t, OutcomeSubmitted, res.Outcome)
	assert.Equal(t, vaaLib.ChainIDSui, res.Destination)
	assert.Equal(t, 1, f.sui.count())
	assert.Equal(t, 0, f.evm.count())
}

func TestRouter_CorruptedSelectorIsIgnored(t *testing.T) {
	f := newRouterFixture()
	p := mustEncode(t, payload.DefaultSelectors().Borrow, suiBorrowAction())
	p[15] ^= 0xff

	res := f.router.Route(context.Background(), Attestation{EmitterChain: vaaLib.ChainIDSui, Payload: p})
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.ErrorIs(t, res.Err, payload.ErrUnknownMethod)
	assert.Equal(t, 0, f.evm.count()+f.sui.count())
}

func TestRouter_EmptyPayloadIsNoop(t *testing.T) {
	f := newRouterFixture()
	res := f.router.Route(context.Background(), Attestation{EmitterChain: vaaLib.ChainIDSui})
	assert.Equal(t, OutcomeEmptyPayload, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 0, f.evm.count()+f.sui.count())
}

func TestRouter_MalformedPayloadIsIgnored(t *testing.T) {
	f := newRouterFixture()
	p := mustEncode(t, payload.DefaultSelectors().Borrow, suiBorrowAction())

	res := f.router.Route(context.Background(), Attestation{EmitterChain: vaaLib.ChainIDSui, Payload: p[:100]})
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.ErrorIs(t, res.Err, payload.ErrMalformedPayload)
}

func TestRouter_UnregisteredRoute(t *testing.T) {
	r := NewRouter(zap.NewNop(), payload.NewDecoder(payload.DefaultSelectors()))
	p := mustEncode(t, payload.DefaultSelectors().Borrow, suiBorrowAction())

	res := r.Route(context.Background(), Attestation{EmitterChain: vaaLib.ChainIDSui, Payload: p})
	assert.Equal(t, OutcomeUnimplementedRoute, res.Outcome)
	assert.ErrorIs(t, res.Err, submitter.ErrNoMatchingHandler)
	assert.Equal(t, vaaLib.ChainIDAvalanche, res.Destination)
}

func TestRouter_BuilderFailureIsContained(t *testing.T) {
	f := newRouterFixture()
	f.evm.err = errors.Wrap(submitter.ErrEstimationFailure, "reverted")
	p := mustEncode(t, payload.DefaultSelectors().Borrow, suiBorrowAction())

	res := f.router.Route(context.Background(), Attestation{EmitterChain: vaaLib.ChainIDSui, Payload: p})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, submitter.ErrEstimationFailure)
}

func TestRouter_BuilderPanicIsContained(t *testing.T) {
	f := newRouterFixture()
	f.evm.panicWith = "boom"
	p := mustEncode(t, payload.DefaultSelectors().Borrow, suiBorrowAction())

	res := f.router.Route(context.Background(), Attestation{EmitterChain: vaaLib.ChainIDSui, Payload: p})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Error(t, res.Err)
}

func TestRouter_Recognizes(t *testing.T) {
	f := newRouterFixture()
	borrow := mustEncode(t, payload.DefaultSelectors().Borrow, suiBorrowAction())

	assert.True(t, f.router.Recognizes(Attestation{EmitterChain: vaaLib.ChainIDSui, Payload: borrow}))
	assert.False(t, f.router.Recognizes(Attestation{EmitterChain: vaaLib.ChainIDSui}))
	assert.False(t, f.router.Recognizes(Attestation{EmitterChain: vaaLib.ChainIDSui, Payload: []byte{0xde, 0xad}}))
	assert.False(t, f.router.Recognizes(Attestation{EmitterChain: vaaLib.ChainIDEthereum, Payload: borrow}))
}

func TestParseAttestation(t *testing.T) {
	emitter := fill(0xaa)
	raw := buildVAA(vaaLib.ChainIDSui, emitter, 7, 99, []byte{1, 2, 3})

	att, err := ParseAttestation(raw)
	require.NoError(t, err)
	assert.Equal(t, vaaLib.ChainIDSui, att.EmitterChain)
	assert.Equal(t, uint32(7), att.Nonce)
	assert.Equal(t, uint64(99), att.Sequence)
	assert.Equal(t, []byte{1, 2, 3}, att.Payload)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", att.EmitterHex())

	_, err = ParseAttestation([]byte{9, 9})
	assert.Error(t, err)
}

func TestParseVAAPermissive_AcceptsVersion2(t *testing.T) {
	raw := buildVAA(vaaLib.ChainIDAvalanche, fill(0x01), 1, 5, []byte{0xff})
	raw[0] = 2

	v, err := ParseVAAPermissive(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v.Sequence)
	assert.Equal(t, []byte{0xff}, v.Payload)

	att, err := ParseAttestation(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), att.Sequence)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "unimplemented_route", OutcomeUnimplementedRoute.String())
	assert.Equal(t, "submitted", OutcomeSubmitted.String())
}
