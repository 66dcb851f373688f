package common

import "errors"

// ErrModulePaused is returned by Guard when the module has been halted.
var ErrModulePaused = errors.New("module paused")

// Module names recognised by PauseView implementations.
const (
	ModuleVault   = "vault"
	ModuleToken   = "token"
	ModuleStaking = "staking"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseFlag is a PauseView for a single module toggled by one flag.
type PauseFlag struct {
	Module string
	Paused bool
}

// IsPaused implements PauseView.
func (f PauseFlag) IsPaused(module string) bool {
	return f.Paused && module == f.Module
}
