package core

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"

	"stakevault/crypto"
	"stakevault/native/vault"
)

func callerAttrs(caller crypto.Address, amount *uint256.Int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("vault.caller", caller.String())}
	if amount != nil {
		attrs = append(attrs, attribute.String("vault.amount", amount.Dec()))
	}
	return attrs
}

// systemAccount reports whether addr is one of the runtime's module accounts.
// Their balances move inside the runtime and never back a position.
func (r *Runtime) systemAccount(addr crypto.Address) bool {
	return crypto.SameEntity(addr, r.vaultAddr) ||
		crypto.SameEntity(addr, r.tokenAddr) ||
		crypto.SameEntity(addr, r.pool)
}

// Deposit locks amount native units from caller as collateral.
func (r *Runtime) Deposit(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return r.execute(ctx, "deposit", callerAttrs(caller, amount), func(e *engines) (*uint256.Int, error) {
		if r.systemAccount(caller) {
			return nil, vault.ErrUnauthorized
		}
		return nil, e.vault.Deposit(caller, amount)
	})
}

// AddCollateral is Deposit under its alternative name.
func (r *Runtime) AddCollateral(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return r.execute(ctx, "add_collateral", callerAttrs(caller, amount), func(e *engines) (*uint256.Int, error) {
		if r.systemAccount(caller) {
			return nil, vault.ErrUnauthorized
		}
		return nil, e.vault.AddCollateral(caller, amount)
	})
}

// Borrow mints amount fixed-point debt tokens to caller.
func (r *Runtime) Borrow(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return r.execute(ctx, "borrow", callerAttrs(caller, amount), func(e *engines) (*uint256.Int, error) {
		if r.systemAccount(caller) {
			return nil, vault.ErrUnauthorized
		}
		return nil, e.vault.Borrow(caller, amount)
	})
}

// Repay burns up to amount of caller's debt. The receipt amount is what was
// actually repaid.
func (r *Runtime) Repay(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return r.execute(ctx, "repay", callerAttrs(caller, amount), func(e *engines) (*uint256.Int, error) {
		return e.vault.Repay(caller, amount)
	})
}

// RepayAll repays the caller's entire debt including accrued interest.
func (r *Runtime) RepayAll(ctx context.Context, caller crypto.Address) (*Receipt, error) {
	return r.execute(ctx, "repay_all", callerAttrs(caller, nil), func(e *engines) (*uint256.Int, error) {
		return e.vault.RepayAll(caller)
	})
}

// RequestWithdraw starts a withdrawal of amount native units.
func (r *Runtime) RequestWithdraw(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return r.execute(ctx, "request_withdraw", callerAttrs(caller, amount), func(e *engines) (*uint256.Int, error) {
		return nil, e.vault.RequestWithdraw(caller, amount)
	})
}

// WithdrawMax requests the largest withdrawal the LTV ceiling allows.
func (r *Runtime) WithdrawMax(ctx context.Context, caller crypto.Address) (*Receipt, error) {
	return r.execute(ctx, "withdraw_max", callerAttrs(caller, nil), func(e *engines) (*uint256.Int, error) {
		return e.vault.WithdrawMax(caller)
	})
}

// FinalizeWithdraw pays out the pending withdrawal once the vault holds
// enough liquid funds.
func (r *Runtime) FinalizeWithdraw(ctx context.Context, caller crypto.Address) (*Receipt, error) {
	return r.execute(ctx, "finalize_withdraw", callerAttrs(caller, nil), func(e *engines) (*uint256.Int, error) {
		return e.vault.FinalizeWithdraw(caller)
	})
}

// ForceDelegate hands the pending batch to the validator. Owner only.
func (r *Runtime) ForceDelegate(ctx context.Context, caller crypto.Address) (*Receipt, error) {
	return r.execute(ctx, "force_delegate", callerAttrs(caller, nil), func(e *engines) (*uint256.Int, error) {
		return e.vault.ForceDelegate(caller)
	})
}

// Pause stops every user entry point. Owner only.
func (r *Runtime) Pause(ctx context.Context, caller crypto.Address) (*Receipt, error) {
	return r.execute(ctx, "pause", callerAttrs(caller, nil), func(e *engines) (*uint256.Int, error) {
		return nil, e.vault.Pause(caller)
	})
}

// Unpause resumes user entry points. Owner only.
func (r *Runtime) Unpause(ctx context.Context, caller crypto.Address) (*Receipt, error) {
	return r.execute(ctx, "unpause", callerAttrs(caller, nil), func(e *engines) (*uint256.Int, error) {
		return nil, e.vault.Unpause(caller)
	})
}

// SetValidatorIdentity selects the delegation target. An empty key clears it.
func (r *Runtime) SetValidatorIdentity(ctx context.Context, caller crypto.Address, key string) (*Receipt, error) {
	attrs := append(callerAttrs(caller, nil), attribute.String("vault.validator", key))
	return r.execute(ctx, "set_validator", attrs, func(e *engines) (*uint256.Int, error) {
		return nil, e.vault.SetValidatorIdentity(caller, key)
	})
}

// Approve sets the debt token allowance of spender over caller's balance.
func (r *Runtime) Approve(ctx context.Context, caller, spender crypto.Address, amount *uint256.Int) (*Receipt, error) {
	attrs := append(callerAttrs(caller, amount), attribute.String("token.spender", spender.String()))
	return r.execute(ctx, "token_approve", attrs, func(e *engines) (*uint256.Int, error) {
		return nil, e.token.Approve(caller, spender, amount)
	})
}

// Transfer moves debt tokens from caller to recipient.
func (r *Runtime) Transfer(ctx context.Context, caller, recipient crypto.Address, amount *uint256.Int) (*Receipt, error) {
	attrs := append(callerAttrs(caller, amount), attribute.String("token.recipient", recipient.String()))
	return r.execute(ctx, "token_transfer", attrs, func(e *engines) (*uint256.Int, error) {
		return nil, e.token.Transfer(caller, recipient, amount)
	})
}

// SetTokenMinter rotates the debt token minter. Only the current minter may
// call it.
func (r *Runtime) SetTokenMinter(ctx context.Context, caller, minter crypto.Address) (*Receipt, error) {
	attrs := append(callerAttrs(caller, nil), attribute.String("token.minter", minter.String()))
	return r.execute(ctx, "token_set_minter", attrs, func(e *engines) (*uint256.Int, error) {
		return nil, e.token.SetMinter(caller, minter)
	})
}

// Settle releases matured unbonding entries back to their delegators. The
// receipt amount is the number of released entries.
func (r *Runtime) Settle(ctx context.Context) (*Receipt, error) {
	return r.execute(ctx, "staking_settle", nil, func(e *engines) (*uint256.Int, error) {
		released, err := e.staking.Settle()
		if err != nil {
			return nil, err
		}
		return uint256.NewInt(uint64(len(released))), nil
	})
}

// AdvanceClock moves the runtime clock forward by d. It lets operators fast
// forward interest accrual and unbonding on a local ledger.
func (r *Runtime) AdvanceClock(ctx context.Context, d time.Duration) (*Receipt, error) {
	attrs := []attribute.KeyValue{attribute.String("clock.advance", d.String())}
	return r.execute(ctx, "advance_clock", attrs, func(e *engines) (*uint256.Int, error) {
		offset, err := e.state.AdvanceClock(d)
		if err != nil {
			return nil, err
		}
		return uint256.NewInt(uint64(offset / time.Second)), nil
	})
}

// Fund credits native units to addr outside of genesis. Only the vault owner
// may mint native funds on the local ledger.
func (r *Runtime) Fund(ctx context.Context, caller, addr crypto.Address, amount *uint256.Int) (*Receipt, error) {
	attrs := append(callerAttrs(caller, amount), attribute.String("fund.recipient", addr.String()))
	return r.execute(ctx, "fund", attrs, func(e *engines) (*uint256.Int, error) {
		owner, err := e.vault.Owner()
		if err != nil {
			return nil, err
		}
		if !crypto.SameEntity(owner, caller) {
			return nil, vault.ErrUnauthorized
		}
		if amount == nil || amount.IsZero() {
			return nil, vault.ErrZeroAmount
		}
		return amount, e.state.CreditNative(addr, amount)
	})
}
