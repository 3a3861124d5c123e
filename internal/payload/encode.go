package payload

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
)

// Encode writes an Action back into the layout of its emitting chain, with
// the given selector in the method field. It is the inverse of Decode and is
// used to build fixtures and to verify decoded values.
func Encode(sel Selector, a Action) ([]byte, error) {
	if len(sel) > methodWidth {
		return nil, errors.Errorf("selector is %d bytes, max %d", len(sel), methodWidth)
	}
	var method [32]byte
	copy(method[:], sel)

	switch v := a.(type) {
	case SuiBorrow:
		value, err := fixedWidth(v.CoinInValue, 16)
		if err != nil {
			return nil, errors.Wrap(err, "coin in value")
		}
		out := make([]byte, 0, SuiBorrowSize)
		out = append(out, method[:]...)
		out = append(out, v.LoanID[:]...)
		out = append(out, v.Receiver[:]...)
		out = append(out, v.FromContractID[:]...)
		out = binary.BigEndian.AppendUint16(out, v.FromChain)
		return append(out, value...), nil
	case SuiRepay:
		out := make([]byte, 0, SuiRepaySize)
		out = append(out, method[:]...)
		return append(out, v.LoanID[:]...), nil
	case EVMBorrow:
		value := v.Value
		if value == nil {
			value = new(big.Int)
		}
		return evmBorrowArgs.Pack(method, v.LoanID, v.Sender, v.Receiver, v.FromChain,
			v.FromContractID, v.TokenIn, v.TokenOut, value)
	case EVMRepay:
		return evmRepayArgs.Pack(method, v.LoanID, v.FromChain, v.Sender, v.FromContractID)
	default:
		return nil, errors.Errorf("cannot encode %T", a)
	}
}

func fixedWidth(v *big.Int, width int) ([]byte, error) {
	out := make([]byte, width)
	if v == nil {
		return out, nil
	}
	if v.Sign() < 0 || v.BitLen() > width*8 {
		return nil, errors.Errorf("value %s does not fit in %d bytes", v, width)
	}
	return v.FillBytes(out), nil
}
