package payload

import (
	"encoding/hex"
	"strings"
)

// Default cross-chain method identifiers used by the Orbital contracts.
// The repay constant is one byte shorter than the borrow constant on purpose:
// the deployed contracts pad them inconsistently.
const (
	DefaultBorrowSelector = "0x4f4e5f424f52524f575f4d4554484f4400000000000000000000000000000000"
	DefaultRepaySelector  = "0x4f4e5f52455041595f4d4554484f4400000000000000000000000000000000"
)

// Selector is a right-zero-padded method identifier.
type Selector []byte

// ParseSelector decodes a hex selector, with or without 0x prefix.
func ParseSelector(s string) (Selector, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	return Selector(b), nil
}

// MustParseSelector is ParseSelector for constants.
func MustParseSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// Trimmed returns the lowercase hex form of the selector with trailing zero
// nibbles removed.
func (s Selector) Trimmed() string {
	return TrimTrailingZeros(hex.EncodeToString(s))
}

// Matches reports whether the trimmed selector is a prefix of the trimmed
// payload. A selector that trims to nothing matches nothing.
func (s Selector) Matches(payload []byte) bool {
	prefix := s.Trimmed()
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(TrimTrailingZeros(hex.EncodeToString(payload)), prefix)
}

func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s)
}

// TrimTrailingZeros strips a 0x prefix and any trailing '0' characters from a
// hex string.
func TrimTrailingZeros(h string) string {
	h = strings.ToLower(strings.TrimPrefix(h, "0x"))
	return strings.TrimRight(h, "0")
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, wrapMalformed(err, "decoding hex")
	}
	return b, nil
}
