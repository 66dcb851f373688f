package vault

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

// batchDelegate queues deposited collateral for the next ForceDelegate. It
// never talks to the staking subsystem.
func (e *Engine) batchDelegate(globals *Globals, amount *uint256.Int) error {
	pending, err := checkedAdd(globals.PendingToDelegate, amount)
	if err != nil {
		return err
	}
	globals.PendingToDelegate = pending
	return nil
}

// ForceDelegate hands the pending batch, capped at the liquid balance not
// reserved for pending withdrawals, to the configured validator. It is a no-op
// without a validator, with an empty batch, or when the capped amount is below
// the minimum delegation. The delegated amount is returned, zero for a no-op.
func (e *Engine) ForceDelegate(caller crypto.Address) (*uint256.Int, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	if !crypto.SameEntity(caller, globals.Owner) {
		return nil, ErrUnauthorized
	}
	if globals.PendingToDelegate.IsZero() || globals.ValidatorIdentity == "" {
		return new(uint256.Int), nil
	}
	validator, err := crypto.ParseValidatorKey(globals.ValidatorIdentity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValidatorKey, err)
	}
	spendable, err := e.spendableBalance(globals)
	if err != nil {
		return nil, err
	}
	amount := minAmount(globals.PendingToDelegate, spendable)
	if amount.IsZero() || amount.Lt(e.params.MinDelegation) {
		return new(uint256.Int), nil
	}
	if e.staking == nil {
		return nil, fmt.Errorf("vault engine: staking not configured")
	}
	delegated, err := checkedAdd(globals.TotalDelegated, amount)
	if err != nil {
		return nil, err
	}
	globals.TotalDelegated = delegated
	globals.PendingToDelegate = new(uint256.Int)
	if err := e.state.PutGlobals(globals); err != nil {
		return nil, err
	}
	if err := e.staking.Delegate(e.address, validator, amount); err != nil {
		return nil, fmt.Errorf("vault engine: delegate: %w", err)
	}
	e.emit(events.VaultDelegationBatched{Amount: new(uint256.Int).Set(amount), Validator: validator.String()})
	return amount, nil
}
