package core

import (
	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/native/vault"
)

// Account summarises everything the runtime knows about one address.
type Account struct {
	Address      crypto.Address
	Native       *uint256.Int
	TokenBalance *uint256.Int
	// VaultAllowance is what the vault may pull from the account on repay.
	VaultAllowance *uint256.Int
	Position       *vault.PositionView
	MaxWithdraw    *uint256.Int
}

// VaultSummary is the global view of the vault.
type VaultSummary struct {
	Globals         *vault.Globals
	LiquidBalance   *uint256.Int
	StakingBalance  *uint256.Int
	TokenSupply     *uint256.Int
	Unbonding       []*staking.Unbond
	ClockUnix       int64
	VaultAddress    crypto.Address
	TokenAddress    crypto.Address
	DelegatedOnPool *uint256.Int
}

// Account returns the balances and position of addr.
func (r *Runtime) Account(addr crypto.Address) (*Account, error) {
	out := &Account{Address: addr}
	err := r.view(func(e *engines) error {
		var err error
		if out.Native, err = e.state.NativeBalance(addr); err != nil {
			return err
		}
		if out.TokenBalance, err = e.token.BalanceOf(addr); err != nil {
			return err
		}
		if out.VaultAllowance, err = e.token.Allowance(addr, r.vaultAddr); err != nil {
			return err
		}
		if out.Position, err = e.vault.Position(addr); err != nil {
			return err
		}
		out.MaxWithdraw, err = e.vault.MaxWithdrawOf(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Position returns the interest-current position view of user.
func (r *Runtime) Position(user crypto.Address) (*vault.PositionView, error) {
	var view *vault.PositionView
	err := r.view(func(e *engines) error {
		var err error
		view, err = e.vault.Position(user)
		return err
	})
	return view, err
}

// Summary returns the vault globals together with balances held by the vault
// and the staking pool.
func (r *Runtime) Summary() (*VaultSummary, error) {
	out := &VaultSummary{VaultAddress: r.vaultAddr, TokenAddress: r.tokenAddr}
	err := r.view(func(e *engines) error {
		var err error
		if out.Globals, err = e.vault.Globals(); err != nil {
			return err
		}
		if out.LiquidBalance, err = e.vault.LiquidBalance(); err != nil {
			return err
		}
		if out.StakingBalance, err = e.state.NativeBalance(r.pool); err != nil {
			return err
		}
		if out.TokenSupply, err = e.token.TotalSupply(); err != nil {
			return err
		}
		if out.Unbonding, err = e.staking.Unbonding(r.vaultAddr); err != nil {
			return err
		}
		if out.DelegatedOnPool, err = e.vault.DelegatedAmount(); err != nil {
			return err
		}
		out.ClockUnix = e.now.Unix()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Validators lists the staking registry.
func (r *Runtime) Validators() ([]*staking.Validator, error) {
	var out []*staking.Validator
	err := r.view(func(e *engines) error {
		var err error
		out, err = e.staking.Validators()
		return err
	})
	return out, err
}

// Positions lists every stored position.
func (r *Runtime) Positions() ([]*vault.Position, error) {
	var out []*vault.Position
	err := r.view(func(e *engines) error {
		var err error
		out, err = e.state.Positions()
		return err
	})
	return out, err
}

// Installed reports whether genesis has been written.
func (r *Runtime) Installed() (bool, error) {
	var installed bool
	err := r.view(func(e *engines) error {
		globals, err := e.state.GetGlobals()
		installed = globals != nil
		return err
	})
	return installed, err
}
