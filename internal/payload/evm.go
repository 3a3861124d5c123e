package payload

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

// EVM payloads are head-only ABI encodings: one 32-byte slot per parameter.
var (
	evmBorrowArgs = mustArguments(
		"bytes32", // method
		"bytes32", // loanId
		"bytes32", // sender
		"bytes32", // receiver
		"uint16",  // fromChain
		"bytes32", // fromContractId
		"bytes32", // tokenIn
		"bytes32", // tokenOut
		"uint256", // value
	)
	evmRepayArgs = mustArguments(
		"bytes32", // method
		"bytes32", // loanId
		"uint16",  // fromChain
		"bytes32", // sender
		"bytes32", // fromContractId
	)
)

// EVMBorrowSize and EVMRepaySize are the encoded head lengths.
var (
	EVMBorrowSize = 32 * len(evmBorrowArgs)
	EVMRepaySize  = 32 * len(evmRepayArgs)
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

func unpackSlots(args abi.Arguments, p []byte) ([]interface{}, error) {
	if len(p) < 32*len(args) {
		return nil, errors.Errorf("need %d bytes, have %d", 32*len(args), len(p))
	}
	return args.Unpack(p[:32*len(args)])
}

func decodeEVMBorrow(p []byte) (Action, error) {
	v, err := unpackSlots(evmBorrowArgs, p)
	if err != nil {
		return nil, wrapMalformed(err, "evm borrow")
	}
	return EVMBorrow{
		LoanID:         v[1].([32]byte),
		Sender:         v[2].([32]byte),
		Receiver:       v[3].([32]byte),
		FromChain:      v[4].(uint16),
		FromContractID: v[5].([32]byte),
		TokenIn:        v[6].([32]byte),
		TokenOut:       v[7].([32]byte),
		Value:          v[8].(*big.Int),
	}, nil
}

func decodeEVMRepay(p []byte) (Action, error) {
	v, err := unpackSlots(evmRepayArgs, p)
	if err != nil {
		return nil, wrapMalformed(err, "evm repay")
	}
	return EVMRepay{
		LoanID:         v[1].([32]byte),
		FromChain:      v[2].(uint16),
		Sender:         v[3].([32]byte),
		FromContractID: v[4].([32]byte),
	}, nil
}
