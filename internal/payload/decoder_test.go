package payload

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
)

func fill(b byte) (out [32]byte) {
	for i := range out {
		out[i] = b
	}
	return out
}

func sampleSuiBorrow() SuiBorrow {
	value, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10) // max u128
	return SuiBorrow{
		LoanID:         fill(0x11),
		Receiver:       fill(0x22),
		FromContractID: fill(0x33),
		FromChain:      21,
		CoinInValue:    value,
	}
}

func TestSelector_PaddingLengthDoesNotChangeMatch(t *testing.T) {
	payload, err := Encode(DefaultSelectors().Borrow, sampleSuiBorrow())
	require.NoError(t, err)

	base := MustParseSelector("0x4f4e5f424f52524f575f4d4554484f44")
	for _, width := range []int{16, 31, 32, 34} {
		padded := make(Selector, width)
		copy(padded, base)
		assert.True(t, padded.Matches(payload), "width %d", width)
		assert.Equal(t, base.Trimmed(), padded.Trimmed(), "width %d", width)
	}
}

func TestSelector_DefaultRepayMatchesDespiteShorterPadding(t *testing.T) {
	sel := DefaultSelectors()
	require.Len(t, sel.Repay, 31)

	padded := make(Selector, 32)
	copy(padded, sel.Repay)
	payload, err := Encode(padded, SuiRepay{LoanID: fill(0x44)})
	require.NoError(t, err)

	assert.True(t, sel.Repay.Matches(payload))
	assert.False(t, sel.Borrow.Matches(payload))
}

func TestSelector_ZeroSelectorNeverMatches(t *testing.T) {
	assert.False(t, make(Selector, 32).Matches([]byte{0x00, 0x01}))
	assert.False(t, Selector(nil).Matches(nil))
}

func TestTrimTrailingZeros(t *testing.T) {
	assert.Equal(t, "4f4e", TrimTrailingZeros("0x4F4E0000"))
	assert.Equal(t, "ab", TrimTrailingZeros("ab"))
	assert.Equal(t, "", TrimTrailingZeros("0x0000"))
}

func TestDecoder_SuiBorrowEndToEnd(t *testing.T) {
	d := NewDecoder(DefaultSelectors())
	want := sampleSuiBorrow()

	payload, err := Encode(DefaultSelectors().Borrow, want)
	require.NoError(t, err)
	require.Len(t, payload, SuiBorrowSize)

	action, err := d.Decode(vaaLib.ChainIDSui, payload)
	require.NoError(t, err)

	got, ok := action.(SuiBorrow)
	require.True(t, ok, "got %T", action)
	assert.Equal(t, want.LoanID, got.LoanID)
	assert.Equal(t, want.Receiver, got.Receiver)
	assert.Equal(t, want.FromContractID, got.FromContractID)
	assert.Equal(t, want.FromChain, got.FromChain)
	assert.Equal(t, 0, want.CoinInValue.Cmp(got.CoinInValue))
	assert.Equal(t, MethodBorrow, got.Method())
	assert.Equal(t, vaaLib.ChainIDSui, got.EmitterChain())
}

func TestDecoder_DecodeHexMatchesDecode(t *testing.T) {
	d := NewDecoder(DefaultSelectors())
	payload, err := Encode(DefaultSelectors().Repay, SuiRepay{LoanID: fill(0x55)})
	require.NoError(t, err)

	fromBytes, err := d.Decode(vaaLib.ChainIDSui, payload)
	require.NoError(t, err)
	fromHex, err := d.DecodeHex(vaaLib.ChainIDSui, "0x"+hex.EncodeToString(payload))
	require.NoError(t, err)
	assert.Equal(t, fromBytes, fromHex)
}

func TestDecoder_IsPure(t *testing.T) {
	d := NewDecoder(DefaultSelectors())
	payload, err := Encode(DefaultSelectors().Borrow, sampleSuiBorrow())
	require.NoError(t, err)

	first, err := d.Decode(vaaLib.ChainIDSui, payload)
	require.NoError(t, err)
	second, err := d.Decode(vaaLib.ChainIDSui, payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	corrupt := bytes.Clone(payload)
	corrupt[0] ^= 0xff
	_, err1 := d.Decode(vaaLib.ChainIDSui, corrupt)
	_, err2 := d.Decode(vaaLib.ChainIDSui, corrupt)
	assert.ErrorIs(t, err1, ErrUnknownMethod)
	assert.ErrorIs(t, err2, ErrUnknownMethod)
}

func TestDecoder_CorruptedSelectorIsUnknownMethod(t *testing.T) {
	d := NewDecoder(DefaultSelectors())
	payload, err := Encode(DefaultSelectors().Borrow, sampleSuiBorrow())
	require.NoError(t, err)

	// last non-zero byte of the selector
	payload[15] = 0x45

	_, err = d.Decode(vaaLib.ChainIDSui, payload)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestDecoder_ShortPayloadIsMalformed(t *testing.T) {
	d := NewDecoder(DefaultSelectors())
	payload, err := Encode(DefaultSelectors().Borrow, sampleSuiBorrow())
	require.NoError(t, err)

	_, err = d.Decode(vaaLib.ChainIDSui, payload[:SuiBorrowSize-1])
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = d.Decode(vaaLib.ChainIDAvalanche, payload[:64])
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecoder_UnsupportedChain(t *testing.T) {
	d := NewDecoder(DefaultSelectors())
	_, err := d.Decode(vaaLib.ChainIDEthereum, []byte{0x4f})
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestDecoder_FirstRegisteredSelectorWins(t *testing.T) {
	d := NewDecoder(Selectors{
		Borrow: MustParseSelector("0xaa"),
		Repay:  MustParseSelector("0xaabb"),
	})
	method, err := d.Identify(vaaLib.ChainIDSui, []byte{0xaa, 0xbb, 0x01})
	require.NoError(t, err)
	assert.Equal(t, MethodBorrow, method)
}

func TestDecoder_EVMRoundTrip(t *testing.T) {
	d := NewDecoder(DefaultSelectors())

	borrow := EVMBorrow{
		LoanID:         fill(0x01),
		Sender:         fill(0x02),
		Receiver:       fill(0x03),
		FromChain:      6,
		FromContractID: fill(0x04),
		TokenIn:        fill(0x05),
		TokenOut:       fill(0x06),
		Value:          big.NewInt(1_000_000),
	}
	payload, err := Encode(DefaultSelectors().Borrow, borrow)
	require.NoError(t, err)
	require.Len(t, payload, EVMBorrowSize)

	action, err := d.Decode(vaaLib.ChainIDAvalanche, payload)
	require.NoError(t, err)
	assert.Equal(t, borrow, action)

	repay := EVMRepay{LoanID: fill(0x07), FromChain: 6, Sender: fill(0x08), FromContractID: fill(0x09)}
	payload, err = Encode(DefaultSelectors().Repay, repay)
	require.NoError(t, err)
	require.Len(t, payload, EVMRepaySize)

	action, err = d.Decode(vaaLib.ChainIDAvalanche, payload)
	require.NoError(t, err)
	assert.Equal(t, repay, action)
}

func TestDecoder_EVMRejectsOversizedUint16Slot(t *testing.T) {
	d := NewDecoder(DefaultSelectors())
	payload, err := Encode(DefaultSelectors().Repay, EVMRepay{LoanID: fill(0x07), FromChain: 6})
	require.NoError(t, err)

	// fromChain lives in slot 2; dirty its high bytes
	payload[64] = 0x01

	_, err = d.Decode(vaaLib.ChainIDAvalanche, payload)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestEncode_RejectsOversizedCoinValue(t *testing.T) {
	a := sampleSuiBorrow()
	a.CoinInValue = new(big.Int).Lsh(big.NewInt(1), 128)
	_, err := Encode(DefaultSelectors().Borrow, a)
	assert.Error(t, err)
}

func TestCounterpart(t *testing.T) {
	dst, ok := Counterpart(vaaLib.ChainIDSui)
	assert.True(t, ok)
	assert.Equal(t, vaaLib.ChainIDAvalanche, dst)

	dst, ok = Counterpart(vaaLib.ChainIDAvalanche)
	assert.True(t, ok)
	assert.Equal(t, vaaLib.ChainIDSui, dst)

	_, ok = Counterpart(vaaLib.ChainIDSolana)
	assert.False(t, ok)
}
