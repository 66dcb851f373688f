package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"

	"stakevault/core/genesis"
	"stakevault/native/token"
)

// Install writes the genesis ledger: native allocations, the debt token with
// the vault as minter, the vault globals and the validator registry. It fails
// with vault.ErrVaultAlreadyExists on an installed database and leaves it
// untouched.
func (r *Runtime) Install(ctx context.Context, spec *genesis.Resolved) (*Receipt, error) {
	if spec == nil {
		return nil, fmt.Errorf("runtime: genesis required")
	}
	if spec.TokenSymbol != "" && !strings.EqualFold(spec.TokenSymbol, r.symbol) {
		return nil, fmt.Errorf("runtime: genesis token %s does not match runtime token %s", spec.TokenSymbol, r.symbol)
	}
	attrs := []attribute.KeyValue{
		attribute.String("vault.owner", spec.Owner.String()),
		attribute.Int("genesis.validators", len(spec.Validators)),
		attribute.Int("genesis.alloc", len(spec.Alloc)),
	}
	return r.execute(ctx, "install", attrs, func(e *engines) (*uint256.Int, error) {
		// The vault check runs first so a second install fails with the vault
		// error code rather than a token one.
		if err := e.vault.Initialize(spec.Owner, r.tokenAddr); err != nil {
			return nil, err
		}
		name := spec.TokenName
		if name == "" {
			name = token.DefaultName
		}
		// The token records its minter in package form; the vault calls in
		// with its entity address.
		if err := e.token.Initialize(name, token.DefaultDecimals, r.vaultAddr.PackageAddress()); err != nil {
			return nil, fmt.Errorf("debt token: %w", err)
		}
		for _, v := range spec.Validators {
			if err := e.staking.RegisterValidator(v.Key, v.Moniker); err != nil {
				return nil, fmt.Errorf("register validator %s: %w", v.Key, err)
			}
		}
		total := new(uint256.Int)
		for _, alloc := range spec.Alloc {
			if err := e.state.CreditNative(alloc.Address, alloc.Amount); err != nil {
				return nil, fmt.Errorf("alloc %s: %w", alloc.Address, err)
			}
			total.Add(total, alloc.Amount)
		}
		if !spec.Delegate.IsZero() {
			if err := e.vault.SetValidatorIdentity(spec.Owner, spec.Delegate.String()); err != nil {
				return nil, err
			}
		}
		return total, nil
	})
}
