package payload

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
)

// Sui payload layouts, all big-endian and fixed width:
//
//	borrow: method[32] loanId[32] receiver[32] fromContractId[32] fromChain u16 coinInValue u128
//	repay:  method[32] loanId[32]
const (
	methodWidth   = 32
	SuiBorrowSize = methodWidth + 32 + 32 + 32 + 2 + 16
	SuiRepaySize  = methodWidth + 32
)

// fieldReader consumes fixed-width fields in declared order.
type fieldReader struct {
	buf []byte
	off int
	err error
}

func (r *fieldReader) take(n int, name string) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = errors.Errorf("field %s needs %d bytes at offset %d, have %d", name, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *fieldReader) bytes32(name string) (out [32]byte) {
	copy(out[:], r.take(32, name))
	return out
}

func (r *fieldReader) uint16(name string) uint16 {
	b := r.take(2, name)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *fieldReader) uint128(name string) *big.Int {
	b := r.take(16, name)
	if b == nil {
		return nil
	}
	return new(big.Int).SetBytes(b)
}

func decodeSuiBorrow(p []byte) (Action, error) {
	r := &fieldReader{buf: p}
	r.take(methodWidth, "method")
	a := SuiBorrow{
		LoanID:         r.bytes32("loanId"),
		Receiver:       r.bytes32("receiver"),
		FromContractID: r.bytes32("fromContractId"),
		FromChain:      r.uint16("fromChain"),
		CoinInValue:    r.uint128("coinInValue"),
	}
	if r.err != nil {
		return nil, wrapMalformed(r.err, "sui borrow")
	}
	return a, nil
}

func decodeSuiRepay(p []byte) (Action, error) {
	r := &fieldReader{buf: p}
	r.take(methodWidth, "method")
	a := SuiRepay{LoanID: r.bytes32("loanId")}
	if r.err != nil {
		return nil, wrapMalformed(r.err, "sui repay")
	}
	return a, nil
}
