package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// KeyAlgorithm is the one byte tag that precedes a validator public key.
type KeyAlgorithm byte

const (
	AlgorithmEd25519   KeyAlgorithm = 0x01
	AlgorithmSecp256k1 KeyAlgorithm = 0x02
)

const (
	ed25519KeyLength   = 32
	secp256k1KeyLength = 33
)

// ErrInvalidValidatorKey is returned for malformed validator identities.
var ErrInvalidValidatorKey = errors.New("crypto: invalid validator key")

// ValidatorKey is a parsed validator public key.
type ValidatorKey struct {
	Algorithm KeyAlgorithm
	Key       []byte
}

// ParseValidatorKey decodes the textual validator identity: hex encoding of
// the algorithm tag followed by the raw key. An optional 0x prefix is accepted.
func ParseValidatorKey(text string) (ValidatorKey, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ValidatorKey{}, fmt.Errorf("%w: empty", ErrInvalidValidatorKey)
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	raw, err := hexutil.Decode(strings.ToLower(trimmed))
	if err != nil {
		return ValidatorKey{}, fmt.Errorf("%w: %v", ErrInvalidValidatorKey, err)
	}
	if len(raw) < 2 {
		return ValidatorKey{}, fmt.Errorf("%w: too short", ErrInvalidValidatorKey)
	}
	algo := KeyAlgorithm(raw[0])
	key := raw[1:]
	switch algo {
	case AlgorithmEd25519:
		if len(key) != ed25519KeyLength {
			return ValidatorKey{}, fmt.Errorf("%w: ed25519 key must be %d bytes, got %d", ErrInvalidValidatorKey, ed25519KeyLength, len(key))
		}
	case AlgorithmSecp256k1:
		if len(key) != secp256k1KeyLength {
			return ValidatorKey{}, fmt.Errorf("%w: secp256k1 key must be %d bytes, got %d", ErrInvalidValidatorKey, secp256k1KeyLength, len(key))
		}
		if _, err := ethcrypto.DecompressPubkey(key); err != nil {
			return ValidatorKey{}, fmt.Errorf("%w: %v", ErrInvalidValidatorKey, err)
		}
	default:
		return ValidatorKey{}, fmt.Errorf("%w: unknown algorithm tag 0x%02x", ErrInvalidValidatorKey, raw[0])
	}
	return ValidatorKey{Algorithm: algo, Key: append([]byte(nil), key...)}, nil
}

// Bytes returns the tag-prefixed encoding of the key.
func (k ValidatorKey) Bytes() []byte {
	out := make([]byte, 0, len(k.Key)+1)
	out = append(out, byte(k.Algorithm))
	return append(out, k.Key...)
}

// String renders the key in the lower-case hex form ParseValidatorKey accepts,
// without the 0x prefix.
func (k ValidatorKey) String() string {
	if len(k.Key) == 0 {
		return ""
	}
	return strings.TrimPrefix(hexutil.Encode(k.Bytes()), "0x")
}

// Equal reports whether both keys carry the same algorithm and key bytes.
func (k ValidatorKey) Equal(other ValidatorKey) bool {
	return k.Algorithm == other.Algorithm && bytes.Equal(k.Key, other.Key)
}

// IsZero reports whether the key is unset.
func (k ValidatorKey) IsZero() bool { return len(k.Key) == 0 }
