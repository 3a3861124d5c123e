package payload

import (
	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
)

var (
	// ErrUnknownMethod means no registered selector prefixes the payload.
	// Callers treat it as unrelated traffic, not as a failure.
	ErrUnknownMethod = errors.New("no method selector matched payload")

	// ErrMalformedPayload means a selector matched but the bytes do not fit
	// the layout registered for it.
	ErrMalformedPayload = errors.New("malformed payload")

	ErrUnsupportedChain = errors.New("unsupported emitter chain")
)

func wrapMalformed(err error, msg string) error {
	return errors.Wrapf(ErrMalformedPayload, "%s: %v", msg, err)
}

// Selectors holds the method identifiers the decoder recognises.
type Selectors struct {
	Borrow Selector
	Repay  Selector
}

// DefaultSelectors returns the identifiers used by the deployed contracts.
func DefaultSelectors() Selectors {
	return Selectors{
		Borrow: MustParseSelector(DefaultBorrowSelector),
		Repay:  MustParseSelector(DefaultRepaySelector),
	}
}

type registration struct {
	method   Method
	selector Selector
	decode   func([]byte) (Action, error)
}

// Decoder turns raw payloads into Actions. It holds only read-only tables and
// is safe for concurrent use.
type Decoder struct {
	routes map[vaaLib.ChainID][]registration
}

// NewDecoder registers the borrow and repay layouts for both chains. The
// registration order is the match order.
func NewDecoder(sel Selectors) *Decoder {
	return &Decoder{
		routes: map[vaaLib.ChainID][]registration{
			vaaLib.ChainIDSui: {
				{MethodBorrow, sel.Borrow, decodeSuiBorrow},
				{MethodRepay, sel.Repay, decodeSuiRepay},
			},
			vaaLib.ChainIDAvalanche: {
				{MethodBorrow, sel.Borrow, decodeEVMBorrow},
				{MethodRepay, sel.Repay, decodeEVMRepay},
			},
		},
	}
}

// Identify returns the first registered method whose selector matches.
func (d *Decoder) Identify(chain vaaLib.ChainID, payload []byte) (Method, error) {
	reg, err := d.match(chain, payload)
	if err != nil {
		return MethodUnknown, err
	}
	return reg.method, nil
}

// Decode identifies the method and decodes the payload with the layout
// registered for (chain, method).
func (d *Decoder) Decode(chain vaaLib.ChainID, payload []byte) (Action, error) {
	reg, err := d.match(chain, payload)
	if err != nil {
		return nil, err
	}
	action, err := reg.decode(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s payload from chain %s", reg.method, chain)
	}
	return action, nil
}

// DecodeHex is Decode for a hex-encoded payload.
func (d *Decoder) DecodeHex(chain vaaLib.ChainID, payloadHex string) (Action, error) {
	b, err := decodeHex(payloadHex)
	if err != nil {
		return nil, err
	}
	return d.Decode(chain, b)
}

func (d *Decoder) match(chain vaaLib.ChainID, payload []byte) (registration, error) {
	regs, ok := d.routes[chain]
	if !ok {
		return registration{}, errors.Wrapf(ErrUnsupportedChain, "chain %d", chain)
	}
	for _, reg := range regs {
		if reg.selector.Matches(payload) {
			return reg, nil
		}
	}
	return registration{}, ErrUnknownMethod
}
