package clients

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/cosmos/go-bip39"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	suiEd25519Flag byte = 0x00
	hardenedOffset      = 0x80000000
)

// SuiDerivationPath is m/44'/784'/0'/0'/0', the default Ed25519 account.
var SuiDerivationPath = []uint32{44, 784, 0, 0, 0}

// transaction data intent: scope 0, version 0, app id 0.
var transactionIntent = []byte{0, 0, 0}

// SuiKeypair is an Ed25519 signing key for Sui transactions.
type SuiKeypair struct {
	priv ed25519.PrivateKey
}

// ParseSuiKey accepts a BIP-39 mnemonic, a hex encoded 32 byte seed, or a
// base64 encoded seed optionally prefixed with the Ed25519 scheme flag.
func ParseSuiKey(s string) (*SuiKeypair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty Sui private key")
	}

	if len(strings.Fields(s)) >= 12 {
		return SuiKeypairFromMnemonic(s, "")
	}

	if raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil {
		if len(raw) != ed25519.SeedSize {
			return nil, errors.Errorf("hex Sui key must be %d bytes, got %d", ed25519.SeedSize, len(raw))
		}
		return SuiKeypairFromSeed(raw), nil
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("Sui key is neither a mnemonic, hex nor base64")
	}
	switch {
	case len(raw) == ed25519.SeedSize+1 && raw[0] == suiEd25519Flag:
		return SuiKeypairFromSeed(raw[1:]), nil
	case len(raw) == ed25519.SeedSize:
		return SuiKeypairFromSeed(raw), nil
	case len(raw) == ed25519.PrivateKeySize:
		return SuiKeypairFromSeed(raw[:ed25519.SeedSize]), nil
	}
	return nil, errors.Errorf("unsupported base64 Sui key length %d", len(raw))
}

func SuiKeypairFromSeed(seed []byte) *SuiKeypair {
	return &SuiKeypair{priv: ed25519.NewKeyFromSeed(seed)}
}

// SuiKeypairFromMnemonic derives the default Sui account key from a mnemonic.
// The mnemonic must use the English wordlist and carry a valid checksum.
func SuiKeypairFromMnemonic(mnemonic, passphrase string) (*SuiKeypair, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "invalid BIP-39 mnemonic")
	}
	key, err := DeriveEd25519(seed, SuiDerivationPath)
	if err != nil {
		return nil, err
	}
	return SuiKeypairFromSeed(key), nil
}

// DeriveEd25519 walks a SLIP-0010 hardened-only path and returns the child
// private key seed.
func DeriveEd25519(seed []byte, path []uint32) ([]byte, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	key, chainCode := slip10Step([]byte("ed25519 seed"), seed)
	for _, index := range path {
		if index >= hardenedOffset {
			return nil, errors.Errorf("path index %d out of range", index)
		}
		data := make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, index+hardenedOffset)
		key, chainCode = slip10Step(chainCode, data)
	}
	return key, nil
}

func slip10Step(key, data []byte) ([]byte, []byte) {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func (k *SuiKeypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Address is blake2b-256(flag || pubkey), hex encoded.
func (k *SuiKeypair) Address() string {
	buf := append([]byte{suiEd25519Flag}, k.PublicKey()...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

// SignTransaction signs BCS transaction bytes under the transaction intent
// and returns the serialized signature (flag || sig || pubkey) in base64.
func (k *SuiKeypair) SignTransaction(txBytes []byte) string {
	digest := TransactionDigestToSign(txBytes)
	sig := ed25519.Sign(k.priv, digest[:])

	out := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	out = append(out, suiEd25519Flag)
	out = append(out, sig...)
	out = append(out, k.PublicKey()...)
	return base64.StdEncoding.EncodeToString(out)
}

// TransactionDigestToSign is blake2b-256(intent || txBytes).
func TransactionDigestToSign(txBytes []byte) [32]byte {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}
