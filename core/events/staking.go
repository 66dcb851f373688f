package events

import (
	"github.com/holiman/uint256"

	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	// TypeStakeDelegated captures funds bonded to a validator.
	TypeStakeDelegated = "stake.delegated"
	// TypeStakeUndelegated captures stake entering the unbonding queue.
	TypeStakeUndelegated = "stake.undelegated"
	// TypeStakeReleased captures matured unbonding entries paid out.
	TypeStakeReleased = "stake.released"
)

// StakeDelegated captures a delegation.
type StakeDelegated struct {
	Delegator crypto.Address
	Validator string
	Amount    *uint256.Int
	Total     *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeDelegated) EventType() string { return TypeStakeDelegated }

// Event converts the structured payload into a broadcastable event.
func (e StakeDelegated) Event() *types.Event {
	return &types.Event{Type: TypeStakeDelegated, Attributes: map[string]string{
		"delegator": formatAddress(e.Delegator),
		"validator": e.Validator,
		"amount":    formatAmount(e.Amount),
		"total":     formatAmount(e.Total),
	}}
}

// StakeUndelegated captures an undelegation and its release schedule.
type StakeUndelegated struct {
	Delegator   crypto.Address
	Validator   string
	Amount      *uint256.Int
	UnbondingID uint64
	ReleaseTime uint64
}

// EventType satisfies the Event interface.
func (StakeUndelegated) EventType() string { return TypeStakeUndelegated }

// Event converts the structured payload into a broadcastable event.
func (e StakeUndelegated) Event() *types.Event {
	attrs := map[string]string{
		"delegator": formatAddress(e.Delegator),
		"validator": e.Validator,
		"amount":    formatAmount(e.Amount),
	}
	if e.UnbondingID > 0 {
		attrs["unbondingId"] = uintToString(e.UnbondingID)
	}
	if e.ReleaseTime > 0 {
		attrs["releaseTime"] = uintToString(e.ReleaseTime)
	}
	return &types.Event{Type: TypeStakeUndelegated, Attributes: attrs}
}

// StakeReleased captures an unbonding entry credited back to the delegator.
type StakeReleased struct {
	Delegator   crypto.Address
	Validator   string
	Amount      *uint256.Int
	UnbondingID uint64
}

// EventType satisfies the Event interface.
func (StakeReleased) EventType() string { return TypeStakeReleased }

// Event converts the structured payload into a broadcastable event.
func (e StakeReleased) Event() *types.Event {
	attrs := map[string]string{
		"delegator": formatAddress(e.Delegator),
		"validator": e.Validator,
		"amount":    formatAmount(e.Amount),
	}
	if e.UnbondingID > 0 {
		attrs["unbondingId"] = uintToString(e.UnbondingID)
	}
	return &types.Event{Type: TypeStakeReleased, Attributes: attrs}
}
