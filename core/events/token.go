package events

import (
	"github.com/holiman/uint256"

	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	// TypeTokenMint is emitted when the minter creates debt tokens.
	TypeTokenMint = "token.mint"
	// TypeTokenBurn is emitted when the minter destroys debt tokens.
	TypeTokenBurn = "token.burn"
	// TypeTokenTransfer is emitted for balance moves between holders.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval is emitted whenever an allowance changes.
	TypeTokenApproval = "token.approval"
	// TypeTokenMinterSet is emitted when the minter is rotated.
	TypeTokenMinterSet = "token.minterSet"
)

// TokenMint captures newly created supply.
type TokenMint struct {
	Symbol string
	To     crypto.Address
	Amount *uint256.Int
	Supply *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenMint) EventType() string { return TypeTokenMint }

// Event converts the structured payload into a broadcastable event.
func (e TokenMint) Event() *types.Event {
	return &types.Event{Type: TypeTokenMint, Attributes: map[string]string{
		"token":  normalizeAsset(e.Symbol),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
		"supply": formatAmount(e.Supply),
	}}
}

// TokenBurn captures destroyed supply.
type TokenBurn struct {
	Symbol string
	From   crypto.Address
	Amount *uint256.Int
	Supply *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenBurn) EventType() string { return TypeTokenBurn }

// Event converts the structured payload into a broadcastable event.
func (e TokenBurn) Event() *types.Event {
	return &types.Event{Type: TypeTokenBurn, Attributes: map[string]string{
		"token":  normalizeAsset(e.Symbol),
		"from":   formatAddress(e.From),
		"amount": formatAmount(e.Amount),
		"supply": formatAmount(e.Supply),
	}}
}

// TokenTransfer captures a balance move. Spender is set when the move was
// made through an allowance.
type TokenTransfer struct {
	Symbol  string
	From    crypto.Address
	To      crypto.Address
	Spender crypto.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenTransfer) EventType() string { return TypeTokenTransfer }

// Event converts the structured payload into a broadcastable event.
func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"token":  normalizeAsset(e.Symbol),
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if spender := formatAddress(e.Spender); spender != "" {
		attrs["spender"] = spender
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

// TokenApproval captures the allowance now in force between owner and spender.
type TokenApproval struct {
	Symbol    string
	Owner     crypto.Address
	Spender   crypto.Address
	Allowance *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenApproval) EventType() string { return TypeTokenApproval }

// Event converts the structured payload into a broadcastable event.
func (e TokenApproval) Event() *types.Event {
	return &types.Event{Type: TypeTokenApproval, Attributes: map[string]string{
		"token":     normalizeAsset(e.Symbol),
		"owner":     formatAddress(e.Owner),
		"spender":   formatAddress(e.Spender),
		"allowance": formatAmount(e.Allowance),
	}}
}

// TokenMinterSet captures a minter rotation.
type TokenMinterSet struct {
	Symbol   string
	Previous crypto.Address
	Minter   crypto.Address
}

// EventType satisfies the Event interface.
func (TokenMinterSet) EventType() string { return TypeTokenMinterSet }

// Event converts the structured payload into a broadcastable event.
func (e TokenMinterSet) Event() *types.Event {
	attrs := map[string]string{
		"token":  normalizeAsset(e.Symbol),
		"minter": formatAddress(e.Minter),
	}
	if prev := formatAddress(e.Previous); prev != "" {
		attrs["previous"] = prev
	}
	return &types.Event{Type: TypeTokenMinterSet, Attributes: attrs}
}
