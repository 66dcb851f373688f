package events

import (
	"github.com/holiman/uint256"

	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	// TypeVaultDeposited is emitted when collateral is locked in a position.
	TypeVaultDeposited = "vault.deposited"
	// TypeVaultBorrowed is emitted when debt tokens are minted against a position.
	TypeVaultBorrowed = "vault.borrowed"
	// TypeVaultRepaid is emitted when debt tokens are burned to reduce debt.
	TypeVaultRepaid = "vault.repaid"
	// TypeVaultWithdrawRequested marks the first phase of a withdrawal.
	TypeVaultWithdrawRequested = "vault.withdrawRequested"
	// TypeVaultWithdrawFinalized marks the payout of a pending withdrawal.
	TypeVaultWithdrawFinalized = "vault.withdrawFinalized"
	// TypeVaultDelegationBatched is emitted when pending collateral is delegated.
	TypeVaultDelegationBatched = "vault.delegationBatched"
	// TypeVaultUndelegationRequested is emitted when a withdrawal needs stake back.
	TypeVaultUndelegationRequested = "vault.undelegationRequested"
	// TypeVaultInterestAccrued is emitted when interest is folded into principal.
	TypeVaultInterestAccrued = "vault.interestAccrued"
	// TypeVaultPaused is emitted when the owner pauses the vault.
	TypeVaultPaused = "vault.paused"
	// TypeVaultUnpaused is emitted when the owner resumes the vault.
	TypeVaultUnpaused = "vault.unpaused"
	// TypeVaultValidatorSet is emitted when the staking target changes.
	TypeVaultValidatorSet = "vault.validatorSet"
)

// VaultDeposited captures a collateral deposit.
type VaultDeposited struct {
	User          crypto.Address
	Amount        *uint256.Int
	NewCollateral *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultDeposited) EventType() string { return TypeVaultDeposited }

// Event converts the structured payload into a broadcastable event.
func (e VaultDeposited) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeposited, Attributes: map[string]string{
		"user":          formatAddress(e.User),
		"amount":        formatAmount(e.Amount),
		"newCollateral": formatAmount(e.NewCollateral),
	}}
}

// VaultBorrowed captures a borrow against collateral.
type VaultBorrowed struct {
	User    crypto.Address
	Amount  *uint256.Int
	NewDebt *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultBorrowed) EventType() string { return TypeVaultBorrowed }

// Event converts the structured payload into a broadcastable event.
func (e VaultBorrowed) Event() *types.Event {
	return &types.Event{Type: TypeVaultBorrowed, Attributes: map[string]string{
		"user":    formatAddress(e.User),
		"amount":  formatAmount(e.Amount),
		"newDebt": formatAmount(e.NewDebt),
	}}
}

// VaultRepaid captures a debt repayment. Amount is the amount actually
// consumed, which never exceeds the debt outstanding before the call.
type VaultRepaid struct {
	User    crypto.Address
	Amount  *uint256.Int
	NewDebt *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultRepaid) EventType() string { return TypeVaultRepaid }

// Event converts the structured payload into a broadcastable event.
func (e VaultRepaid) Event() *types.Event {
	return &types.Event{Type: TypeVaultRepaid, Attributes: map[string]string{
		"user":    formatAddress(e.User),
		"amount":  formatAmount(e.Amount),
		"newDebt": formatAmount(e.NewDebt),
	}}
}

// VaultWithdrawRequested captures the collateral earmarked for withdrawal.
type VaultWithdrawRequested struct {
	User   crypto.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultWithdrawRequested) EventType() string { return TypeVaultWithdrawRequested }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawRequested) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdrawRequested, Attributes: map[string]string{
		"user":   formatAddress(e.User),
		"amount": formatAmount(e.Amount),
	}}
}

// VaultWithdrawFinalized captures the payout of a pending withdrawal.
type VaultWithdrawFinalized struct {
	User   crypto.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultWithdrawFinalized) EventType() string { return TypeVaultWithdrawFinalized }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawFinalized) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdrawFinalized, Attributes: map[string]string{
		"user":   formatAddress(e.User),
		"amount": formatAmount(e.Amount),
	}}
}

// VaultDelegationBatched captures a batched delegation to the validator.
type VaultDelegationBatched struct {
	Amount    *uint256.Int
	Validator string
}

// EventType satisfies the Event interface.
func (VaultDelegationBatched) EventType() string { return TypeVaultDelegationBatched }

// Event converts the structured payload into a broadcastable event.
func (e VaultDelegationBatched) Event() *types.Event {
	attrs := map[string]string{"amount": formatAmount(e.Amount)}
	if e.Validator != "" {
		attrs["validator"] = e.Validator
	}
	return &types.Event{Type: TypeVaultDelegationBatched, Attributes: attrs}
}

// VaultUndelegationRequested captures stake pulled back to fund a withdrawal.
type VaultUndelegationRequested struct {
	Amount    *uint256.Int
	Validator string
}

// EventType satisfies the Event interface.
func (VaultUndelegationRequested) EventType() string { return TypeVaultUndelegationRequested }

// Event converts the structured payload into a broadcastable event.
func (e VaultUndelegationRequested) Event() *types.Event {
	attrs := map[string]string{"amount": formatAmount(e.Amount)}
	if e.Validator != "" {
		attrs["validator"] = e.Validator
	}
	return &types.Event{Type: TypeVaultUndelegationRequested, Attributes: attrs}
}

// VaultInterestAccrued captures interest folded into a position's principal.
type VaultInterestAccrued struct {
	User     crypto.Address
	Interest *uint256.Int
	NewDebt  *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultInterestAccrued) EventType() string { return TypeVaultInterestAccrued }

// Event converts the structured payload into a broadcastable event.
func (e VaultInterestAccrued) Event() *types.Event {
	return &types.Event{Type: TypeVaultInterestAccrued, Attributes: map[string]string{
		"user":     formatAddress(e.User),
		"interest": formatAmount(e.Interest),
		"newDebt":  formatAmount(e.NewDebt),
	}}
}

// VaultPaused records the owner pausing the vault.
type VaultPaused struct {
	By crypto.Address
}

// EventType satisfies the Event interface.
func (VaultPaused) EventType() string { return TypeVaultPaused }

// Event converts the structured payload into a broadcastable event.
func (e VaultPaused) Event() *types.Event {
	return &types.Event{Type: TypeVaultPaused, Attributes: map[string]string{"by": formatAddress(e.By)}}
}

// VaultUnpaused records the owner resuming the vault.
type VaultUnpaused struct {
	By crypto.Address
}

// EventType satisfies the Event interface.
func (VaultUnpaused) EventType() string { return TypeVaultUnpaused }

// Event converts the structured payload into a broadcastable event.
func (e VaultUnpaused) Event() *types.Event {
	return &types.Event{Type: TypeVaultUnpaused, Attributes: map[string]string{"by": formatAddress(e.By)}}
}

// VaultValidatorSet records a change of the delegation target. An empty
// validator means the target was cleared.
type VaultValidatorSet struct {
	By        crypto.Address
	Validator string
}

// EventType satisfies the Event interface.
func (VaultValidatorSet) EventType() string { return TypeVaultValidatorSet }

// Event converts the structured payload into a broadcastable event.
func (e VaultValidatorSet) Event() *types.Event {
	return &types.Event{Type: TypeVaultValidatorSet, Attributes: map[string]string{
		"by":        formatAddress(e.By),
		"validator": e.Validator,
	}}
}
