package vault

import (
	"fmt"
	"strings"

	"stakevault/core/events"
	"stakevault/crypto"
)

func (e *Engine) loadOwned(caller crypto.Address) (*Globals, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	if !crypto.SameEntity(caller, globals.Owner) {
		return nil, ErrUnauthorized
	}
	return globals, nil
}

// Pause halts every user entry point. Pausing an already paused vault fails.
func (e *Engine) Pause(caller crypto.Address) error {
	globals, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	if globals.Paused {
		return ErrContractPaused
	}
	globals.Paused = true
	if err := e.state.PutGlobals(globals); err != nil {
		return err
	}
	e.emit(events.VaultPaused{By: caller})
	return nil
}

// Unpause resumes the vault. Unpausing a running vault fails.
func (e *Engine) Unpause(caller crypto.Address) error {
	globals, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	if !globals.Paused {
		return ErrContractPaused
	}
	globals.Paused = false
	if err := e.state.PutGlobals(globals); err != nil {
		return err
	}
	e.emit(events.VaultUnpaused{By: caller})
	return nil
}

// SetValidatorIdentity records the delegation target. An empty key clears it;
// any other key must parse as a validator public key and is stored in its
// canonical form.
func (e *Engine) SetValidatorIdentity(caller crypto.Address, key string) error {
	globals, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	canonical := ""
	if trimmed := strings.TrimSpace(key); trimmed != "" {
		parsed, err := crypto.ParseValidatorKey(trimmed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValidatorKey, err)
		}
		canonical = parsed.String()
	}
	globals.ValidatorIdentity = canonical
	if err := e.state.PutGlobals(globals); err != nil {
		return err
	}
	e.emit(events.VaultValidatorSet{By: caller, Validator: canonical})
	return nil
}

// Initialize installs the vault globals. A vault can be installed once.
func (e *Engine) Initialize(owner, debtToken crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.GetGlobals()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrVaultAlreadyExists
	}
	if owner.IsZero() {
		return fmt.Errorf("vault engine: owner must be set")
	}
	return e.state.PutGlobals(NewGlobals(owner, debtToken))
}
