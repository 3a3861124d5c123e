package payload

import (
	"encoding/hex"
	"math/big"

	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
)

// Method is the logical cross-chain action carried by a payload.
type Method int

const (
	MethodUnknown Method = iota
	MethodBorrow
	MethodRepay
)

func (m Method) String() string {
	switch m {
	case MethodBorrow:
		return "borrow"
	case MethodRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// Action is a decoded payload. The concrete type identifies both the
// emitting chain and the method.
type Action interface {
	Method() Method
	EmitterChain() vaaLib.ChainID
	Loan() [32]byte

	isAction()
}

// SuiBorrow is a borrow notification emitted by the Sui Orbital module.
type SuiBorrow struct {
	LoanID         [32]byte
	Receiver       [32]byte
	FromContractID [32]byte
	FromChain      uint16
	CoinInValue    *big.Int // u128
}

// SuiRepay is a repay notification emitted by the Sui Orbital module.
type SuiRepay struct {
	LoanID [32]byte
}

// EVMBorrow is a borrow notification emitted by the EVM Orbital contract.
type EVMBorrow struct {
	LoanID         [32]byte
	Sender         [32]byte
	Receiver       [32]byte
	FromChain      uint16
	FromContractID [32]byte
	TokenIn        [32]byte
	TokenOut       [32]byte
	Value          *big.Int // uint256
}

// EVMRepay is a repay notification emitted by the EVM Orbital contract.
type EVMRepay struct {
	LoanID         [32]byte
	FromChain      uint16
	Sender         [32]byte
	FromContractID [32]byte
}

func (SuiBorrow) Method() Method { return MethodBorrow }
func (SuiRepay) Method() Method  { return MethodRepay }
func (EVMBorrow) Method() Method { return MethodBorrow }
func (EVMRepay) Method() Method  { return MethodRepay }

func (SuiBorrow) EmitterChain() vaaLib.ChainID { return vaaLib.ChainIDSui }
func (SuiRepay) EmitterChain() vaaLib.ChainID  { return vaaLib.ChainIDSui }
func (EVMBorrow) EmitterChain() vaaLib.ChainID { return vaaLib.ChainIDAvalanche }
func (EVMRepay) EmitterChain() vaaLib.ChainID  { return vaaLib.ChainIDAvalanche }

func (a SuiBorrow) Loan() [32]byte { return a.LoanID }
func (a SuiRepay) Loan() [32]byte  { return a.LoanID }
func (a EVMBorrow) Loan() [32]byte { return a.LoanID }
func (a EVMRepay) Loan() [32]byte  { return a.LoanID }

func (SuiBorrow) isAction() {}
func (SuiRepay) isAction()  {}
func (EVMBorrow) isAction() {}
func (EVMRepay) isAction()  {}

// Hex32 renders a 32-byte field as 0x-prefixed lowercase hex.
func Hex32(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}

// Counterpart returns the destination ledger for a message emitted on chain.
func Counterpart(chain vaaLib.ChainID) (vaaLib.ChainID, bool) {
	switch chain {
	case vaaLib.ChainIDSui:
		return vaaLib.ChainIDAvalanche, true
	case vaaLib.ChainIDAvalanche:
		return vaaLib.ChainIDSui, true
	default:
		return vaaLib.ChainIDUnset, false
	}
}
