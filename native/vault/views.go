package vault

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

func (e *Engine) readPosition(user crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(user)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = NewPosition(user)
	}
	return pos.normalize(), nil
}

// Position returns the interest-current view of the user's position.
func (e *Engine) Position(user crypto.Address) (*PositionView, error) {
	pos, err := e.readPosition(user)
	if err != nil {
		return nil, err
	}
	debt, err := e.debtWithInterest(pos)
	if err != nil {
		return nil, err
	}
	fixed, err := ToFixedPoint(pos.Collateral)
	if err != nil {
		return nil, err
	}
	return &PositionView{
		CollateralNative:      new(uint256.Int).Set(pos.Collateral),
		CollateralFixed:       fixed,
		DebtFixed:             debt,
		LtvBps:                LtvBps(debt, fixed),
		HealthFactorBps:       HealthFactorBps(debt, fixed, e.params.MaxLTVBps),
		PendingWithdrawNative: new(uint256.Int).Set(pos.PendingWithdraw),
		Status:                pos.Status,
	}, nil
}

// CollateralOf returns the locked native collateral.
func (e *Engine) CollateralOf(user crypto.Address) (*uint256.Int, error) {
	pos, err := e.readPosition(user)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(pos.Collateral), nil
}

// DebtOf returns the debt including interest accrued up to now.
func (e *Engine) DebtOf(user crypto.Address) (*uint256.Int, error) {
	pos, err := e.readPosition(user)
	if err != nil {
		return nil, err
	}
	return e.debtWithInterest(pos)
}

// LtvOf returns the current loan-to-value in basis points.
func (e *Engine) LtvOf(user crypto.Address) (uint64, error) {
	view, err := e.Position(user)
	if err != nil {
		return 0, err
	}
	return view.LtvBps, nil
}

// HealthFactorOf returns the health factor in basis points; 10000 is the
// liquidation edge.
func (e *Engine) HealthFactorOf(user crypto.Address) (uint64, error) {
	view, err := e.Position(user)
	if err != nil {
		return 0, err
	}
	return view.HealthFactorBps, nil
}

// PendingWithdrawOf returns the native amount awaiting FinalizeWithdraw.
func (e *Engine) PendingWithdrawOf(user crypto.Address) (*uint256.Int, error) {
	pos, err := e.readPosition(user)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(pos.PendingWithdraw), nil
}

// MaxWithdrawOf returns what WithdrawMax would request right now. It is zero
// unless the position is Active.
func (e *Engine) MaxWithdrawOf(user crypto.Address) (*uint256.Int, error) {
	pos, err := e.readPosition(user)
	if err != nil {
		return nil, err
	}
	if pos.Status != StatusActive {
		return new(uint256.Int), nil
	}
	debt, err := e.debtWithInterest(pos)
	if err != nil {
		return nil, err
	}
	return MaxWithdrawable(pos.Collateral, debt, e.params.MaxLTVBps)
}

// StatusOf returns the lifecycle status of the user's position.
func (e *Engine) StatusOf(user crypto.Address) (Status, error) {
	pos, err := e.readPosition(user)
	if err != nil {
		return StatusNone, err
	}
	return pos.Status, nil
}

// TotalPendingWithdraw is the liquid balance reserved for requested
// withdrawals.
func (e *Engine) TotalPendingWithdraw() (*uint256.Int, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.TotalPendingWithdraw, nil
}

// Globals returns a copy of the vault-wide state.
func (e *Engine) Globals() (*Globals, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.Clone(), nil
}

// LiquidBalance is the native balance immediately spendable by the vault.
func (e *Engine) LiquidBalance() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bal, err := e.liquidBalance()
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(bal), nil
}

// TotalDelegated is the vault's own delegation accounting.
func (e *Engine) TotalDelegated() (*uint256.Int, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.TotalDelegated, nil
}

// DelegatedAmount queries the staking subsystem for the stake currently bonded
// to the configured validator. Without a validator it reports zero.
func (e *Engine) DelegatedAmount() (*uint256.Int, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	if globals.ValidatorIdentity == "" || e.staking == nil {
		return new(uint256.Int), nil
	}
	validator, err := crypto.ParseValidatorKey(globals.ValidatorIdentity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValidatorKey, err)
	}
	amount, err := e.staking.DelegatedAmount(e.address, validator)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return new(uint256.Int), nil
	}
	return amount, nil
}

// PendingToDelegate is the collateral queued for the next ForceDelegate.
func (e *Engine) PendingToDelegate() (*uint256.Int, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.PendingToDelegate, nil
}

// TotalCollateral is the sum of native collateral over all positions.
func (e *Engine) TotalCollateral() (*uint256.Int, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.TotalCollateral, nil
}

// TotalDebt is the recorded principal plus settled interest, in debt units.
func (e *Engine) TotalDebt() (*uint256.Int, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.TotalDebt, nil
}

// DebtTokenAddress returns the token the vault mints and burns.
func (e *Engine) DebtTokenAddress() (crypto.Address, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return crypto.Address{}, err
	}
	return globals.DebtToken, nil
}

// ValidatorIdentity returns the configured validator key, empty if unset.
func (e *Engine) ValidatorIdentity() (string, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return "", err
	}
	return globals.ValidatorIdentity, nil
}

// Owner returns the admin address.
func (e *Engine) Owner() (crypto.Address, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return crypto.Address{}, err
	}
	return globals.Owner, nil
}

// IsPaused reports whether user operations are halted.
func (e *Engine) IsPaused() (bool, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return false, err
	}
	return globals.Paused, nil
}
