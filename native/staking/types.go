package staking

import (
	"time"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// DefaultUnbondingDelay is the time between an undelegation and the release
// of its funds.
const DefaultUnbondingDelay = 14 * time.Hour

// DefaultMinDelegation is the smallest accepted delegation, 500 whole coins.
const DefaultMinDelegation uint64 = 500 * 1_000_000_000

// Params configures the staking ledger.
type Params struct {
	UnbondingDelay time.Duration
	MinDelegation  *uint256.Int
}

// DefaultParams returns the default staking parameters.
func DefaultParams() Params {
	return Params{
		UnbondingDelay: DefaultUnbondingDelay,
		MinDelegation:  uint256.NewInt(DefaultMinDelegation),
	}
}

// Validator is a registered delegation target.
type Validator struct {
	Key     string
	Moniker string
	Active  bool
	Bonded  *uint256.Int
}

// Unbond is a queued undelegation awaiting its release time.
type Unbond struct {
	ID          uint64
	Delegator   crypto.Address
	Validator   string
	Amount      *uint256.Int
	ReleaseTime uint64
}

// Clone returns a deep copy of the entry.
func (u *Unbond) Clone() *Unbond {
	if u == nil {
		return nil
	}
	clone := *u
	if u.Amount != nil {
		clone.Amount = new(uint256.Int).Set(u.Amount)
	} else {
		clone.Amount = new(uint256.Int)
	}
	return &clone
}

// Matured reports whether the entry can be released at now.
func (u *Unbond) Matured(now uint64) bool {
	return u != nil && u.ReleaseTime <= now
}
