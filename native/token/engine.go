package token

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

var (
	ErrNotInitialised      = errors.New("token: not initialised")
	ErrAlreadyInitialised  = errors.New("token: already initialised")
	ErrNotMinter           = errors.New("token: caller is not the minter")
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrInvalidAddress      = errors.New("token: address must be set")
	ErrSelfTarget          = errors.New("token: owner and counterparty must differ")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrAllowanceExceeded   = errors.New("token: allowance exceeded")
	ErrOverflow            = errors.New("token: arithmetic overflow")
	errNilState            = errors.New("token engine: state not configured")
)

type engineState interface {
	TokenMetadata(symbol string) (*Metadata, error)
	PutTokenMetadata(meta *Metadata) error
	TokenBalance(symbol string, holder crypto.EntityKey) (*uint256.Int, error)
	SetTokenBalance(symbol string, holder crypto.EntityKey, amount *uint256.Int) error
	TokenAllowance(symbol string, owner, spender crypto.EntityKey) (*uint256.Int, error)
	SetTokenAllowance(symbol string, owner, spender crypto.EntityKey, amount *uint256.Int) error
}

// Engine implements a fungible token whose supply is controlled by a single
// minter. Holders are keyed by canonical entity identity, so a contract is
// the same holder whether it is addressed directly or through its package.
type Engine struct {
	state   engineState
	symbol  string
	emitter events.Emitter
}

// NewEngine constructs the engine for the token with the given symbol.
func NewEngine(symbol string) *Engine {
	return &Engine{symbol: strings.TrimSpace(symbol), emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Symbol returns the token ticker.
func (e *Engine) Symbol() string { return e.symbol }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil && evt != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) metadata() (*Metadata, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	meta, err := e.state.TokenMetadata(e.symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrNotInitialised
	}
	return meta.Clone(), nil
}

// Initialize registers the token and records its first minter.
func (e *Engine) Initialize(name string, decimals uint8, minter crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.TokenMetadata(e.symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialised
	}
	key := minter.Canonical()
	if key.IsEmpty() {
		return ErrInvalidAddress
	}
	meta := &Metadata{
		Name:        strings.TrimSpace(name),
		Symbol:      e.symbol,
		Decimals:    decimals,
		Minter:      minter,
		MinterKey:   key,
		TotalSupply: new(uint256.Int),
	}
	if err := e.state.PutTokenMetadata(meta); err != nil {
		return err
	}
	e.emit(events.TokenMinterSet{Symbol: e.symbol, Minter: minter})
	return nil
}

// Metadata returns a copy of the token metadata.
func (e *Engine) Metadata() (*Metadata, error) { return e.metadata() }

// Minter returns the recorded minter address.
func (e *Engine) Minter() (crypto.Address, error) {
	meta, err := e.metadata()
	if err != nil {
		return crypto.Address{}, err
	}
	return meta.Minter, nil
}

// TotalSupply returns the outstanding supply.
func (e *Engine) TotalSupply() (*uint256.Int, error) {
	meta, err := e.metadata()
	if err != nil {
		return nil, err
	}
	return meta.TotalSupply, nil
}

func (e *Engine) requireMinter(caller crypto.Address) (*Metadata, error) {
	meta, err := e.metadata()
	if err != nil {
		return nil, err
	}
	if !meta.MinterKey.Matches(caller) {
		return nil, ErrNotMinter
	}
	return meta, nil
}

// SetMinter rotates the minter. Only the current minter may do so.
func (e *Engine) SetMinter(caller, minter crypto.Address) error {
	meta, err := e.requireMinter(caller)
	if err != nil {
		return err
	}
	key := minter.Canonical()
	if key.IsEmpty() {
		return ErrInvalidAddress
	}
	previous := meta.Minter
	meta.Minter = minter
	meta.MinterKey = key
	if err := e.state.PutTokenMetadata(meta); err != nil {
		return err
	}
	e.emit(events.TokenMinterSet{Symbol: e.symbol, Previous: previous, Minter: minter})
	return nil
}

// BalanceOf returns the holder's balance.
func (e *Engine) BalanceOf(holder crypto.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.balance(holder.Canonical())
}

func (e *Engine) balance(key crypto.EntityKey) (*uint256.Int, error) {
	bal, err := e.state.TokenBalance(e.symbol, key)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return new(uint256.Int), nil
	}
	return bal, nil
}

// Allowance returns what spender may move on behalf of owner.
func (e *Engine) Allowance(owner, spender crypto.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.allowance(owner.Canonical(), spender.Canonical())
}

func (e *Engine) allowance(owner, spender crypto.EntityKey) (*uint256.Int, error) {
	amount, err := e.state.TokenAllowance(e.symbol, owner, spender)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return new(uint256.Int), nil
	}
	return amount, nil
}

func validAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// Mint creates amount tokens for to.
func (e *Engine) Mint(caller, to crypto.Address, amount *uint256.Int) error {
	meta, err := e.requireMinter(caller)
	if err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	toKey := to.Canonical()
	if toKey.IsEmpty() {
		return ErrInvalidAddress
	}
	supply, overflow := new(uint256.Int).AddOverflow(meta.TotalSupply, amount)
	if overflow {
		return ErrOverflow
	}
	bal, err := e.balance(toKey)
	if err != nil {
		return err
	}
	newBal, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return ErrOverflow
	}
	meta.TotalSupply = supply
	if err := e.state.SetTokenBalance(e.symbol, toKey, newBal); err != nil {
		return err
	}
	if err := e.state.PutTokenMetadata(meta); err != nil {
		return err
	}
	e.emit(events.TokenMint{Symbol: e.symbol, To: to, Amount: new(uint256.Int).Set(amount), Supply: new(uint256.Int).Set(supply)})
	return nil
}

// Burn destroys amount tokens held by from.
func (e *Engine) Burn(caller, from crypto.Address, amount *uint256.Int) error {
	meta, err := e.requireMinter(caller)
	if err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	fromKey := from.Canonical()
	bal, err := e.balance(fromKey)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return ErrInsufficientBalance
	}
	if meta.TotalSupply.Lt(amount) {
		return ErrOverflow
	}
	meta.TotalSupply = new(uint256.Int).Sub(meta.TotalSupply, amount)
	if err := e.state.SetTokenBalance(e.symbol, fromKey, new(uint256.Int).Sub(bal, amount)); err != nil {
		return err
	}
	if err := e.state.PutTokenMetadata(meta); err != nil {
		return err
	}
	e.emit(events.TokenBurn{Symbol: e.symbol, From: from, Amount: new(uint256.Int).Set(amount), Supply: new(uint256.Int).Set(meta.TotalSupply)})
	return nil
}

// Transfer moves amount from caller to recipient.
func (e *Engine) Transfer(caller, recipient crypto.Address, amount *uint256.Int) error {
	if _, err := e.metadata(); err != nil {
		return err
	}
	if err := e.move(caller, recipient, amount); err != nil {
		return err
	}
	e.emit(events.TokenTransfer{Symbol: e.symbol, From: caller, To: recipient, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// TransferFrom moves amount from owner to recipient, consuming the spender's
// allowance.
func (e *Engine) TransferFrom(spender, owner, recipient crypto.Address, amount *uint256.Int) error {
	if _, err := e.metadata(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	ownerKey, spenderKey := owner.Canonical(), spender.Canonical()
	allowance, err := e.allowance(ownerKey, spenderKey)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return ErrAllowanceExceeded
	}
	if err := e.move(owner, recipient, amount); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(allowance, amount)
	if err := e.state.SetTokenAllowance(e.symbol, ownerKey, spenderKey, remaining); err != nil {
		return err
	}
	e.emit(events.TokenTransfer{Symbol: e.symbol, From: owner, To: recipient, Spender: spender, Amount: new(uint256.Int).Set(amount)})
	return nil
}

func (e *Engine) move(from, to crypto.Address, amount *uint256.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	fromKey, toKey := from.Canonical(), to.Canonical()
	if fromKey.IsEmpty() || toKey.IsEmpty() {
		return ErrInvalidAddress
	}
	if fromKey == toKey {
		return ErrSelfTarget
	}
	fromBal, err := e.balance(fromKey)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	toBal, err := e.balance(toKey)
	if err != nil {
		return err
	}
	newTo, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrOverflow
	}
	if err := e.state.SetTokenBalance(e.symbol, fromKey, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return e.state.SetTokenBalance(e.symbol, toKey, newTo)
}

// Approve sets the allowance of spender over the caller's tokens.
func (e *Engine) Approve(caller, spender crypto.Address, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	return e.setAllowance(caller, spender, func(*uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Set(amount), nil
	})
}

// IncreaseAllowance raises the allowance by delta.
func (e *Engine) IncreaseAllowance(caller, spender crypto.Address, delta *uint256.Int) error {
	if err := validAmount(delta); err != nil {
		return err
	}
	return e.setAllowance(caller, spender, func(current *uint256.Int) (*uint256.Int, error) {
		next, overflow := new(uint256.Int).AddOverflow(current, delta)
		if overflow {
			return nil, ErrOverflow
		}
		return next, nil
	})
}

// DecreaseAllowance lowers the allowance by delta, stopping at zero.
func (e *Engine) DecreaseAllowance(caller, spender crypto.Address, delta *uint256.Int) error {
	if err := validAmount(delta); err != nil {
		return err
	}
	return e.setAllowance(caller, spender, func(current *uint256.Int) (*uint256.Int, error) {
		if current.Lt(delta) {
			return new(uint256.Int), nil
		}
		return new(uint256.Int).Sub(current, delta), nil
	})
}

func (e *Engine) setAllowance(owner, spender crypto.Address, update func(*uint256.Int) (*uint256.Int, error)) error {
	if _, err := e.metadata(); err != nil {
		return err
	}
	ownerKey, spenderKey := owner.Canonical(), spender.Canonical()
	if ownerKey.IsEmpty() || spenderKey.IsEmpty() {
		return ErrInvalidAddress
	}
	if ownerKey == spenderKey {
		return ErrSelfTarget
	}
	current, err := e.allowance(ownerKey, spenderKey)
	if err != nil {
		return err
	}
	next, err := update(current)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenAllowance(e.symbol, ownerKey, spenderKey, next); err != nil {
		return err
	}
	e.emit(events.TokenApproval{Symbol: e.symbol, Owner: owner, Spender: spender, Allowance: new(uint256.Int).Set(next)})
	return nil
}
