package token

import (
	"github.com/holiman/uint256"

	"stakevault/crypto"
)

const (
	// DefaultName is the display name of the vault debt token.
	DefaultName = "Vault Staked Native"
	// DefaultSymbol is the ticker of the vault debt token.
	DefaultSymbol = "vNAT"
	// DefaultDecimals matches the vault fixed-point scale.
	DefaultDecimals uint8 = 18
)

// Metadata describes the token and its single minter. MinterKey is the
// canonical identity computed when the minter is recorded; authorization
// compares against it and never against the raw address form.
type Metadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	Minter      crypto.Address
	MinterKey   crypto.EntityKey
	TotalSupply *uint256.Int
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := *m
	if m.TotalSupply != nil {
		clone.TotalSupply = new(uint256.Int).Set(m.TotalSupply)
	} else {
		clone.TotalSupply = new(uint256.Int)
	}
	return &clone
}
