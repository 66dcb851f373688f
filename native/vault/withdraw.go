package vault

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

// RequestWithdraw starts the two-phase withdrawal of amount native units.
// Collateral leaves the position immediately and is paid out by
// FinalizeWithdraw once the vault holds enough liquid funds.
func (e *Engine) RequestWithdraw(caller crypto.Address, amount *uint256.Int) error {
	pos, globals, err := e.load(caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if err := requireActive(pos); err != nil {
		return err
	}
	if err := e.accrue(pos, globals); err != nil {
		return err
	}
	if amount.Gt(pos.Collateral) {
		return ErrInsufficientCollateral
	}
	remaining := new(uint256.Int).Sub(pos.Collateral, amount)
	if !pos.DebtPrincipal.IsZero() {
		if err := AssertWithinLtv(pos.DebtPrincipal, remaining, e.params.MaxLTVBps); err != nil {
			return err
		}
	}
	return e.beginWithdraw(pos, globals, amount)
}

// WithdrawMax requests the largest withdrawal that keeps the position within
// the loan-to-value ceiling. The requested amount is returned.
func (e *Engine) WithdrawMax(caller crypto.Address) (*uint256.Int, error) {
	pos, globals, err := e.load(caller)
	if err != nil {
		return nil, err
	}
	if err := requireActive(pos); err != nil {
		return nil, err
	}
	if err := e.accrue(pos, globals); err != nil {
		return nil, err
	}
	if pos.Collateral.IsZero() {
		return nil, ErrInsufficientCollateral
	}
	amount := new(uint256.Int).Set(pos.Collateral)
	if !pos.DebtPrincipal.IsZero() {
		fixed, err := ToFixedPoint(pos.Collateral)
		if err != nil {
			return nil, err
		}
		floor, err := CollateralFloor(pos.DebtPrincipal, e.params.MaxLTVBps)
		if err != nil {
			return nil, err
		}
		if !fixed.Gt(floor) {
			return nil, ErrLtvExceeded
		}
		amount = ToNative(new(uint256.Int).Sub(fixed, floor))
	}
	if amount.IsZero() {
		return nil, ErrInsufficientCollateral
	}
	remaining := new(uint256.Int).Sub(pos.Collateral, amount)
	if err := AssertWithinLtv(pos.DebtPrincipal, remaining, e.params.MaxLTVBps); err != nil {
		return nil, err
	}
	if err := e.beginWithdraw(pos, globals, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func requireActive(pos *Position) error {
	switch pos.Status {
	case StatusNone:
		return ErrNoVault
	case StatusWithdrawing:
		return ErrWithdrawPending
	}
	return nil
}

// beginWithdraw moves amount from collateral to pending and reserves it out of
// the liquid balance. When the unreserved liquid funds cannot cover it, stake
// is requested back from the staking subsystem.
func (e *Engine) beginWithdraw(pos *Position, globals *Globals, amount *uint256.Int) error {
	totalCollateral, err := checkedSub(globals.TotalCollateral, amount)
	if err != nil {
		return err
	}
	reserved, err := checkedAdd(globals.TotalPendingWithdraw, amount)
	if err != nil {
		return err
	}
	spendable, err := e.spendableBalance(globals)
	if err != nil {
		return err
	}
	var (
		undelegate *uint256.Int
		validator  crypto.ValidatorKey
	)
	if spendable.Lt(amount) && !globals.TotalDelegated.IsZero() && globals.ValidatorIdentity != "" {
		validator, err = crypto.ParseValidatorKey(globals.ValidatorIdentity)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValidatorKey, err)
		}
		if e.staking == nil {
			return fmt.Errorf("vault engine: staking not configured")
		}
		undelegate = minAmount(amount, globals.TotalDelegated)
	}

	pos.Collateral = new(uint256.Int).Sub(pos.Collateral, amount)
	pos.PendingWithdraw = new(uint256.Int).Set(amount)
	pos.Status = StatusWithdrawing
	globals.TotalCollateral = totalCollateral
	globals.TotalPendingWithdraw = reserved
	if undelegate != nil {
		globals.TotalDelegated = new(uint256.Int).Sub(globals.TotalDelegated, undelegate)
	}
	if err := e.store(pos, globals); err != nil {
		return err
	}
	if undelegate != nil {
		if err := e.staking.Undelegate(e.address, validator, undelegate); err != nil {
			return fmt.Errorf("vault engine: undelegate: %w", err)
		}
		e.emit(events.VaultUndelegationRequested{
			Amount:    new(uint256.Int).Set(undelegate),
			Validator: validator.String(),
		})
	}
	e.emit(events.VaultWithdrawRequested{User: pos.Owner, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// FinalizeWithdraw pays out the pending withdrawal. It fails with
// ErrUnbondingNotComplete while the vault's liquid balance is short, which
// callers retry after the unbonding delay.
func (e *Engine) FinalizeWithdraw(caller crypto.Address) (*uint256.Int, error) {
	pos, globals, err := e.load(caller)
	if err != nil {
		return nil, err
	}
	if pos.Status != StatusWithdrawing || pos.PendingWithdraw.IsZero() {
		return nil, ErrNoWithdrawPending
	}
	liquid, err := e.liquidBalance()
	if err != nil {
		return nil, err
	}
	if liquid.Lt(pos.PendingWithdraw) {
		return nil, ErrUnbondingNotComplete
	}
	if err := e.accrue(pos, globals); err != nil {
		return nil, err
	}
	payout := new(uint256.Int).Set(pos.PendingWithdraw)
	reserved, err := checkedSub(globals.TotalPendingWithdraw, payout)
	if err != nil {
		return nil, err
	}
	globals.TotalPendingWithdraw = reserved
	pos.PendingWithdraw = new(uint256.Int)
	if pos.Collateral.IsZero() && pos.DebtPrincipal.IsZero() {
		pos.Status = StatusNone
		pos.LastAccrual = 0
	} else {
		pos.Status = StatusActive
	}
	if err := e.store(pos, globals); err != nil {
		return nil, err
	}
	if err := e.state.TransferNative(e.address, caller, payout); err != nil {
		return nil, fmt.Errorf("vault engine: pay withdrawal: %w", err)
	}
	e.emit(events.VaultWithdrawFinalized{User: caller, Amount: new(uint256.Int).Set(payout)})
	return payout, nil
}
