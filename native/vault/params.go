package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// BpsDivisor is the basis point denominator.
	BpsDivisor uint64 = 10_000
	// DefaultMaxLTVBps caps debt at 80% of collateral value.
	DefaultMaxLTVBps uint64 = 8_000
	// DefaultInterestRateBps is the 2% simple annual rate.
	DefaultInterestRateBps uint64 = 200
	// SecondsPerYear is the accrual year length.
	SecondsPerYear uint64 = 31_536_000
	// DefaultMinDelegation is the smallest batch handed to the staking
	// subsystem: 500 whole coins.
	DefaultMinDelegation uint64 = 500 * NativePerUnit
)

// Params captures the risk configuration of the vault.
type Params struct {
	MaxLTVBps       uint64
	InterestRateBps uint64
	// MinDelegation is compared against the batched amount in ForceDelegate.
	MinDelegation *uint256.Int
	// MinDeposit rejects smaller deposits when non-zero.
	MinDeposit *uint256.Int
}

// DefaultParams returns the production risk parameters.
func DefaultParams() Params {
	return Params{
		MaxLTVBps:       DefaultMaxLTVBps,
		InterestRateBps: DefaultInterestRateBps,
		MinDelegation:   uint256.NewInt(DefaultMinDelegation),
		MinDeposit:      new(uint256.Int),
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := Params{MaxLTVBps: p.MaxLTVBps, InterestRateBps: p.InterestRateBps}
	clone.MinDelegation = cloneAmount(p.MinDelegation)
	clone.MinDeposit = cloneAmount(p.MinDeposit)
	return clone
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.MaxLTVBps == 0 || p.MaxLTVBps > BpsDivisor {
		return fmt.Errorf("vault params: max ltv must be within (0, %d], got %d", BpsDivisor, p.MaxLTVBps)
	}
	if p.InterestRateBps > BpsDivisor {
		return fmt.Errorf("vault params: interest rate must not exceed %d bps, got %d", BpsDivisor, p.InterestRateBps)
	}
	return nil
}

func (p Params) withDefaults() Params {
	out := p.Clone()
	if out.MaxLTVBps == 0 {
		out.MaxLTVBps = DefaultMaxLTVBps
	}
	if out.MinDelegation == nil {
		out.MinDelegation = uint256.NewInt(DefaultMinDelegation)
	}
	return out
}
