package vault

import (
	"github.com/holiman/uint256"

	"stakevault/crypto"
	nativecommon "stakevault/native/common"
)

// Status is the lifecycle state of a position.
type Status uint8

const (
	StatusNone Status = iota
	StatusActive
	StatusWithdrawing
)

// String returns the human readable status name.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusActive:
		return "active"
	case StatusWithdrawing:
		return "withdrawing"
	default:
		return "unknown"
	}
}

// Valid reports whether the status is one of the defined values.
func (s Status) Valid() bool { return s <= StatusWithdrawing }

// Position is the per-user ledger entry. Collateral and PendingWithdraw are
// native units, DebtPrincipal is fixed-point and excludes interest accrued
// since LastAccrual.
type Position struct {
	Owner           crypto.Address
	Collateral      *uint256.Int
	DebtPrincipal   *uint256.Int
	LastAccrual     uint64
	Status          Status
	PendingWithdraw *uint256.Int
}

// NewPosition returns the empty position for owner.
func NewPosition(owner crypto.Address) *Position {
	return &Position{
		Owner:           owner,
		Collateral:      new(uint256.Int),
		DebtPrincipal:   new(uint256.Int),
		PendingWithdraw: new(uint256.Int),
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{
		Owner:           p.Owner,
		Collateral:      cloneAmount(p.Collateral),
		DebtPrincipal:   cloneAmount(p.DebtPrincipal),
		LastAccrual:     p.LastAccrual,
		Status:          p.Status,
		PendingWithdraw: cloneAmount(p.PendingWithdraw),
	}
}

func (p *Position) normalize() *Position {
	if p.Collateral == nil {
		p.Collateral = new(uint256.Int)
	}
	if p.DebtPrincipal == nil {
		p.DebtPrincipal = new(uint256.Int)
	}
	if p.PendingWithdraw == nil {
		p.PendingWithdraw = new(uint256.Int)
	}
	return p
}

// Globals is the vault-wide singleton.
//
// TotalDelegated is the vault's own accounting of what it handed to the
// staking subsystem. It can lag the subsystem; DelegatedAmount queries the
// authoritative value.
//
// TotalPendingWithdraw is the liquid balance reserved for requested but not
// yet finalized withdrawals. It is never delegated.
type Globals struct {
	TotalCollateral      *uint256.Int
	TotalDebt            *uint256.Int
	PendingToDelegate    *uint256.Int
	TotalDelegated       *uint256.Int
	TotalPendingWithdraw *uint256.Int
	ValidatorIdentity    string
	DebtToken            crypto.Address
	Owner                crypto.Address
	Paused               bool
}

// NewGlobals returns zeroed globals owned by owner.
func NewGlobals(owner, debtToken crypto.Address) *Globals {
	return &Globals{
		TotalCollateral:      new(uint256.Int),
		TotalDebt:            new(uint256.Int),
		PendingToDelegate:    new(uint256.Int),
		TotalDelegated:       new(uint256.Int),
		TotalPendingWithdraw: new(uint256.Int),
		DebtToken:            debtToken,
		Owner:                owner,
	}
}

// Clone returns a deep copy of the globals.
func (g *Globals) Clone() *Globals {
	if g == nil {
		return nil
	}
	clone := *g
	clone.TotalCollateral = cloneAmount(g.TotalCollateral)
	clone.TotalDebt = cloneAmount(g.TotalDebt)
	clone.PendingToDelegate = cloneAmount(g.PendingToDelegate)
	clone.TotalDelegated = cloneAmount(g.TotalDelegated)
	clone.TotalPendingWithdraw = cloneAmount(g.TotalPendingWithdraw)
	return &clone
}

// IsPaused implements nativecommon.PauseView.
func (g *Globals) IsPaused(module string) bool {
	if g == nil {
		return false
	}
	return g.Paused && module == nativecommon.ModuleVault
}

func (g *Globals) normalize() *Globals {
	if g.TotalCollateral == nil {
		g.TotalCollateral = new(uint256.Int)
	}
	if g.TotalDebt == nil {
		g.TotalDebt = new(uint256.Int)
	}
	if g.PendingToDelegate == nil {
		g.PendingToDelegate = new(uint256.Int)
	}
	if g.TotalDelegated == nil {
		g.TotalDelegated = new(uint256.Int)
	}
	if g.TotalPendingWithdraw == nil {
		g.TotalPendingWithdraw = new(uint256.Int)
	}
	return g
}

// PositionView is the interest-current read model of a position.
type PositionView struct {
	CollateralNative      *uint256.Int
	CollateralFixed       *uint256.Int
	DebtFixed             *uint256.Int
	LtvBps                uint64
	HealthFactorBps       uint64
	PendingWithdrawNative *uint256.Int
	Status                Status
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
