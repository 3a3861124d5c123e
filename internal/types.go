package internal

import (
	"encoding/hex"

	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
)

// Attestation is the part of a signed VAA the dispatch pipeline needs. It is
// created per message and never shared between dispatches.
type Attestation struct {
	EmitterChain   vaaLib.ChainID
	EmitterAddress vaaLib.Address
	Nonce          uint32
	Sequence       uint64
	Payload        []byte
	SourceTxHash   string
}

// EmitterHex is the emitter address as 64 lowercase hex characters.
func (a Attestation) EmitterHex() string {
	return hex.EncodeToString(a.EmitterAddress[:])
}

func attestationFromVAA(v *vaaLib.VAA) Attestation {
	return Attestation{
		EmitterChain:   v.EmitterChain,
		EmitterAddress: v.EmitterAddress,
		Nonce:          v.Nonce,
		Sequence:       v.Sequence,
		Payload:        v.Payload,
	}
}
