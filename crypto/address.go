package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of an encoded address. The
// prefix also tells which kind of entity the address names.
type AddressPrefix string

const (
	// AccountPrefix names externally owned accounts (vault users, the owner).
	AccountPrefix AddressPrefix = "acct"
	// ContractPrefix names a deployed contract by its entity hash. This is the
	// form a contract presents when it calls another contract directly.
	ContractPrefix AddressPrefix = "contract"
	// PackagePrefix names the package a contract was installed from. Tokens and
	// registries usually record collaborators in this form.
	PackagePrefix AddressPrefix = "package"
)

// AddressLength is the byte length of every address payload.
const AddressLength = 20

// Address represents a 20-byte identity with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// AccountFromSeed derives a deterministic account address from a seed such
// as an operator-chosen name. The derivation is Keccak256(seed)[12:].
func AccountFromSeed(seed string) Address {
	digest := ethcrypto.Keccak256([]byte(strings.TrimSpace(seed)))
	return NewAddress(AccountPrefix, digest[12:])
}

// ContractFromSeed derives the entity address of a contract installed under
// the supplied name. PackageAddress returns the package form of the result.
func ContractFromSeed(seed string) Address {
	digest := ethcrypto.Keccak256([]byte("contract:" + strings.TrimSpace(seed)))
	return NewAddress(ContractPrefix, digest[12:])
}

func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address carries no payload or only zero bytes.
func (a Address) IsZero() bool {
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsContract reports whether the address names a contract in either its
// entity or its package form.
func (a Address) IsContract() bool {
	return a.prefix == ContractPrefix || a.prefix == PackagePrefix
}

// EntityAddress returns the direct-call form of a contract address.
func (a Address) EntityAddress() Address {
	if !a.IsContract() {
		return a
	}
	return NewAddress(ContractPrefix, a.bytes)
}

// PackageAddress returns the package form of a contract address.
func (a Address) PackageAddress() Address {
	if !a.IsContract() {
		return a
	}
	return NewAddress(PackagePrefix, a.bytes)
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(conv))
	}
	switch AddressPrefix(prefix) {
	case AccountPrefix, ContractPrefix, PackagePrefix:
	default:
		return Address{}, fmt.Errorf("unknown address prefix %q", prefix)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// ParseAddress accepts either a bech32 address or a bare 40 character hex
// payload, which is interpreted as an account.
func ParseAddress(value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address must not be empty")
	}
	if strings.Contains(trimmed, "1") && !isHex(trimmed) {
		return DecodeAddress(trimmed)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", value, err)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(raw))
	}
	return NewAddress(AccountPrefix, raw), nil
}

func isHex(value string) bool {
	value = strings.TrimPrefix(value, "0x")
	if len(value) != AddressLength*2 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
