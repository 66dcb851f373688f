package staking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

var (
	ErrUnknownValidator        = errors.New("staking: unknown validator")
	ErrValidatorExists         = errors.New("staking: validator already registered")
	ErrDelegationTooSmall      = errors.New("staking: delegation below minimum")
	ErrInsufficientDelegation  = errors.New("staking: undelegation exceeds delegation")
	ErrInsufficientBalance     = errors.New("staking: insufficient balance")
	ErrInvalidAmount           = errors.New("staking: amount must be positive")
	errNilState                = errors.New("staking engine: state not configured")
	errPoolBalanceInconsistent = errors.New("staking engine: bonded pool cannot cover release")
)

type engineState interface {
	StakingValidator(key string) (*Validator, error)
	PutStakingValidator(v *Validator) error
	StakingValidators() ([]*Validator, error)
	Delegation(delegator crypto.EntityKey, validator string) (*uint256.Int, error)
	SetDelegation(delegator crypto.EntityKey, validator string, amount *uint256.Int) error
	UnbondQueue() ([]*Unbond, error)
	PutUnbondQueue(queue []*Unbond) error
	NextUnbondID() (uint64, error)
	NativeBalance(addr crypto.Address) (*uint256.Int, error)
	TransferNative(from, to crypto.Address, amount *uint256.Int) error
}

// Engine is a local staking ledger. Delegated funds move into the bonded
// pool account, undelegations wait in a queue until their release time and
// Settle pays matured entries back to the delegator's liquid balance.
type Engine struct {
	state   engineState
	pool    crypto.Address
	params  Params
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a staking engine that holds bonded funds at pool.
func NewEngine(pool crypto.Address, params Params) *Engine {
	if params.MinDelegation == nil {
		params.MinDelegation = new(uint256.Int)
	}
	return &Engine{
		pool:    pool,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
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

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Pool returns the bonded pool address.
func (e *Engine) Pool() crypto.Address { return e.pool }

func (e *Engine) now() uint64 {
	now := e.nowFn()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil && evt != nil {
		e.emitter.Emit(evt)
	}
}

// RegisterValidator adds an active validator to the registry.
func (e *Engine) RegisterValidator(key crypto.ValidatorKey, moniker string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if key.IsZero() {
		return fmt.Errorf("%w: empty key", crypto.ErrInvalidValidatorKey)
	}
	existing, err := e.state.StakingValidator(key.String())
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrValidatorExists
	}
	return e.state.PutStakingValidator(&Validator{
		Key:     key.String(),
		Moniker: strings.TrimSpace(moniker),
		Active:  true,
		Bonded:  new(uint256.Int),
	})
}

// Validators lists the registry ordered by key.
func (e *Engine) Validators() ([]*Validator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	list, err := e.state.StakingValidators()
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list, nil
}

func (e *Engine) activeValidator(key crypto.ValidatorKey) (*Validator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, err := e.state.StakingValidator(key.String())
	if err != nil {
		return nil, err
	}
	if v == nil || !v.Active {
		return nil, ErrUnknownValidator
	}
	if v.Bonded == nil {
		v.Bonded = new(uint256.Int)
	}
	return v, nil
}

// Delegate bonds amount of the delegator's liquid funds to validator.
func (e *Engine) Delegate(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) error {
	v, err := e.activeValidator(validator)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if amount.Lt(e.params.MinDelegation) {
		return ErrDelegationTooSmall
	}
	balance, err := e.state.NativeBalance(delegator)
	if err != nil {
		return err
	}
	if balance == nil || balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	key := delegator.Canonical()
	current, err := e.delegation(key, v.Key)
	if err != nil {
		return err
	}
	total, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return fmt.Errorf("staking engine: delegation overflow")
	}
	v.Bonded = new(uint256.Int).Add(v.Bonded, amount)
	if err := e.state.SetDelegation(key, v.Key, total); err != nil {
		return err
	}
	if err := e.state.PutStakingValidator(v); err != nil {
		return err
	}
	if err := e.state.TransferNative(delegator, e.pool, amount); err != nil {
		return err
	}
	e.emit(events.StakeDelegated{Delegator: delegator, Validator: v.Key, Amount: new(uint256.Int).Set(amount), Total: total})
	return nil
}

// Undelegate removes amount from the delegation and queues it for release
// after the unbonding delay.
func (e *Engine) Undelegate(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) error {
	_, err := e.undelegate(delegator, validator, amount)
	return err
}

// UndelegateWithReceipt is Undelegate returning the queued entry.
func (e *Engine) UndelegateWithReceipt(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) (*Unbond, error) {
	return e.undelegate(delegator, validator, amount)
}

func (e *Engine) undelegate(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) (*Unbond, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	v, err := e.state.StakingValidator(validator.String())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrUnknownValidator
	}
	key := delegator.Canonical()
	current, err := e.delegation(key, v.Key)
	if err != nil {
		return nil, err
	}
	if current.Lt(amount) {
		return nil, ErrInsufficientDelegation
	}
	id, err := e.state.NextUnbondID()
	if err != nil {
		return nil, err
	}
	queue, err := e.state.UnbondQueue()
	if err != nil {
		return nil, err
	}
	entry := &Unbond{
		ID:          id,
		Delegator:   delegator,
		Validator:   v.Key,
		Amount:      new(uint256.Int).Set(amount),
		ReleaseTime: e.now() + uint64(e.params.UnbondingDelay/time.Second),
	}
	if v.Bonded == nil || v.Bonded.Lt(amount) {
		v.Bonded = new(uint256.Int)
	} else {
		v.Bonded = new(uint256.Int).Sub(v.Bonded, amount)
	}
	if err := e.state.SetDelegation(key, v.Key, new(uint256.Int).Sub(current, amount)); err != nil {
		return nil, err
	}
	if err := e.state.PutStakingValidator(v); err != nil {
		return nil, err
	}
	if err := e.state.PutUnbondQueue(append(queue, entry)); err != nil {
		return nil, err
	}
	e.emit(events.StakeUndelegated{
		Delegator:   delegator,
		Validator:   v.Key,
		Amount:      new(uint256.Int).Set(amount),
		UnbondingID: entry.ID,
		ReleaseTime: entry.ReleaseTime,
	})
	return entry.Clone(), nil
}

// DelegatedAmount returns the stake the delegator has bonded to validator.
func (e *Engine) DelegatedAmount(delegator crypto.Address, validator crypto.ValidatorKey) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.delegation(delegator.Canonical(), validator.String())
}

func (e *Engine) delegation(delegator crypto.EntityKey, validator string) (*uint256.Int, error) {
	amount, err := e.state.Delegation(delegator, validator)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return new(uint256.Int), nil
	}
	return amount, nil
}

// Unbonding lists the delegator's queued entries, oldest first.
func (e *Engine) Unbonding(delegator crypto.Address) ([]*Unbond, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	queue, err := e.state.UnbondQueue()
	if err != nil {
		return nil, err
	}
	var out []*Unbond
	for _, entry := range queue {
		if crypto.SameEntity(entry.Delegator, delegator) {
			out = append(out, entry.Clone())
		}
	}
	return out, nil
}

// Settle releases every matured entry to its delegator and returns them.
func (e *Engine) Settle() ([]*Unbond, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	queue, err := e.state.UnbondQueue()
	if err != nil {
		return nil, err
	}
	now := e.now()
	var released, pending []*Unbond
	total := new(uint256.Int)
	for _, entry := range queue {
		if entry.Matured(now) {
			released = append(released, entry)
			total.Add(total, entry.Amount)
			continue
		}
		pending = append(pending, entry)
	}
	if len(released) == 0 {
		return nil, nil
	}
	poolBalance, err := e.state.NativeBalance(e.pool)
	if err != nil {
		return nil, err
	}
	if poolBalance == nil || poolBalance.Lt(total) {
		return nil, errPoolBalanceInconsistent
	}
	if err := e.state.PutUnbondQueue(pending); err != nil {
		return nil, err
	}
	for _, entry := range released {
		if err := e.state.TransferNative(e.pool, entry.Delegator, entry.Amount); err != nil {
			return nil, err
		}
		e.emit(events.StakeReleased{
			Delegator:   entry.Delegator,
			Validator:   entry.Validator,
			Amount:      new(uint256.Int).Set(entry.Amount),
			UnbondingID: entry.ID,
		})
	}
	return released, nil
}
