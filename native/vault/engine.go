package vault

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
)

const moduleName = nativecommon.ModuleVault

type engineState interface {
	// GetPosition returns the stored position or the empty position when the
	// user never deposited.
	GetPosition(user crypto.Address) (*Position, error)
	PutPosition(pos *Position) error
	GetGlobals() (*Globals, error)
	PutGlobals(globals *Globals) error
	NativeBalance(addr crypto.Address) (*uint256.Int, error)
	TransferNative(from, to crypto.Address, amount *uint256.Int) error
}

// DebtToken is the subset of the debt token the vault calls into. The vault
// identifies itself with its own address as caller and spender.
type DebtToken interface {
	Mint(caller, to crypto.Address, amount *uint256.Int) error
	Burn(caller, from crypto.Address, amount *uint256.Int) error
	TransferFrom(spender, owner, recipient crypto.Address, amount *uint256.Int) error
	Allowance(owner, spender crypto.Address) (*uint256.Int, error)
	BalanceOf(owner crypto.Address) (*uint256.Int, error)
}

// Staking is the delegation surface of the staking subsystem. Undelegated
// funds return to the delegator's liquid balance after the unbonding delay,
// outside of any vault call.
type Staking interface {
	Delegate(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) error
	Undelegate(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) error
	DelegatedAmount(delegator crypto.Address, validator crypto.ValidatorKey) (*uint256.Int, error)
}

// Engine implements the collateral vault state machine.
type Engine struct {
	state   engineState
	token   DebtToken
	staking Staking
	address crypto.Address
	params  Params
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a vault engine operating under the vault's contract
// address.
func NewEngine(address crypto.Address, params Params) *Engine {
	return &Engine{
		address: address,
		params:  params.withDefaults(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the debt token collaborator.
func (e *Engine) SetToken(token DebtToken) { e.token = token }

// SetStaking configures the staking collaborator.
func (e *Engine) SetStaking(staking Staking) { e.staking = staking }

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

// Address returns the vault contract address.
func (e *Engine) Address() crypto.Address { return e.address }

// Params returns a copy of the risk parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) nowUnix() uint64 {
	var now int64
	if e.nowFn != nil {
		now = e.nowFn()
	} else {
		now = time.Now().Unix()
	}
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// load fetches the caller's position and the globals, and applies the pause
// guard.
func (e *Engine) load(user crypto.Address) (*Position, *Globals, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(globals, moduleName); err != nil {
		return nil, nil, ErrContractPaused
	}
	pos, err := e.state.GetPosition(user)
	if err != nil {
		return nil, nil, err
	}
	if pos == nil {
		pos = NewPosition(user)
	}
	pos.Owner = user
	return pos.normalize(), globals, nil
}

func (e *Engine) loadGlobals() (*Globals, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	globals, err := e.state.GetGlobals()
	if err != nil {
		return nil, err
	}
	if globals == nil {
		return nil, fmt.Errorf("vault engine: globals not initialised")
	}
	return globals.normalize(), nil
}

func (e *Engine) store(pos *Position, globals *Globals) error {
	if pos != nil {
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
	}
	return e.state.PutGlobals(globals)
}

func (e *Engine) liquidBalance() (*uint256.Int, error) {
	bal, err := e.state.NativeBalance(e.address)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return new(uint256.Int), nil
	}
	return bal, nil
}

// spendableBalance is the liquid balance minus what pending withdrawals have
// reserved, floored at zero.
func (e *Engine) spendableBalance(globals *Globals) (*uint256.Int, error) {
	liquid, err := e.liquidBalance()
	if err != nil {
		return nil, err
	}
	if !liquid.Gt(globals.TotalPendingWithdraw) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(liquid, globals.TotalPendingWithdraw), nil
}

func (e *Engine) requireToken() error {
	if e.token == nil {
		return fmt.Errorf("vault engine: debt token not configured")
	}
	return nil
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// Deposit locks amount native units from caller as collateral and queues them
// for delegation. The vault cannot deposit into itself.
func (e *Engine) Deposit(caller crypto.Address, amount *uint256.Int) error {
	pos, globals, err := e.load(caller)
	if err != nil {
		return err
	}
	if crypto.SameEntity(caller, e.address) {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if e.params.MinDeposit != nil && !e.params.MinDeposit.IsZero() && amount.Lt(e.params.MinDeposit) {
		return ErrBelowMinDeposit
	}
	if pos.Status == StatusWithdrawing {
		return ErrWithdrawPending
	}
	balance, err := e.state.NativeBalance(caller)
	if err != nil {
		return err
	}
	if balance == nil || balance.Lt(amount) {
		return ErrInsufficientLiquidBalance
	}
	if err := e.accrue(pos, globals); err != nil {
		return err
	}

	collateral, err := checkedAdd(pos.Collateral, amount)
	if err != nil {
		return err
	}
	if _, err := ToFixedPoint(collateral); err != nil {
		return err
	}
	totalCollateral, err := checkedAdd(globals.TotalCollateral, amount)
	if err != nil {
		return err
	}
	if err := e.batchDelegate(globals, amount); err != nil {
		return err
	}
	pos.Collateral = collateral
	pos.Status = StatusActive
	globals.TotalCollateral = totalCollateral
	if err := e.store(pos, globals); err != nil {
		return err
	}
	if err := e.state.TransferNative(caller, e.address, amount); err != nil {
		return fmt.Errorf("vault engine: collect deposit: %w", err)
	}
	e.emit(events.VaultDeposited{
		User:          caller,
		Amount:        new(uint256.Int).Set(amount),
		NewCollateral: new(uint256.Int).Set(collateral),
	})
	return nil
}

// AddCollateral is an alias of Deposit.
func (e *Engine) AddCollateral(caller crypto.Address, amount *uint256.Int) error {
	return e.Deposit(caller, amount)
}

// Borrow mints amount fixed-point debt tokens to caller against their
// collateral.
func (e *Engine) Borrow(caller crypto.Address, amount *uint256.Int) error {
	pos, globals, err := e.load(caller)
	if err != nil {
		return err
	}
	if crypto.SameEntity(caller, e.address) {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	switch pos.Status {
	case StatusNone:
		return ErrNoVault
	case StatusWithdrawing:
		return ErrWithdrawPending
	}
	if err := e.requireToken(); err != nil {
		return err
	}
	if err := e.accrue(pos, globals); err != nil {
		return err
	}
	debt, err := checkedAdd(pos.DebtPrincipal, amount)
	if err != nil {
		return err
	}
	if err := AssertWithinLtv(debt, pos.Collateral, e.params.MaxLTVBps); err != nil {
		return err
	}
	totalDebt, err := checkedAdd(globals.TotalDebt, amount)
	if err != nil {
		return err
	}
	pos.DebtPrincipal = debt
	globals.TotalDebt = totalDebt
	if err := e.store(pos, globals); err != nil {
		return err
	}
	if err := e.token.Mint(e.address, caller, amount); err != nil {
		return fmt.Errorf("vault engine: mint debt: %w", err)
	}
	e.emit(events.VaultBorrowed{
		User:    caller,
		Amount:  new(uint256.Int).Set(amount),
		NewDebt: new(uint256.Int).Set(debt),
	})
	return nil
}

// Repay burns up to amount of the caller's debt tokens. Over-payment is capped
// at the outstanding debt. The consumed amount is returned.
func (e *Engine) Repay(caller crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		if _, _, err := e.load(caller); err != nil {
			return nil, err
		}
		return nil, ErrZeroAmount
	}
	return e.repay(caller, amount)
}

// RepayAll burns the caller's full interest-current debt.
func (e *Engine) RepayAll(caller crypto.Address) (*uint256.Int, error) {
	return e.repay(caller, nil)
}

func (e *Engine) repay(caller crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	pos, globals, err := e.load(caller)
	if err != nil {
		return nil, err
	}
	if pos.Status == StatusNone {
		return nil, ErrNoVault
	}
	if err := e.requireToken(); err != nil {
		return nil, err
	}
	if err := e.accrue(pos, globals); err != nil {
		return nil, err
	}
	if pos.DebtPrincipal.IsZero() {
		return nil, ErrInsufficientDebt
	}
	payment := new(uint256.Int).Set(pos.DebtPrincipal)
	if amount != nil && amount.Lt(payment) {
		payment.Set(amount)
	}
	allowance, err := e.token.Allowance(caller, e.address)
	if err != nil {
		return nil, fmt.Errorf("vault engine: read allowance: %w", err)
	}
	if allowance == nil || allowance.Lt(payment) {
		return nil, ErrInsufficientAllowance
	}
	debt, err := checkedSub(pos.DebtPrincipal, payment)
	if err != nil {
		return nil, err
	}
	totalDebt, err := checkedSub(globals.TotalDebt, payment)
	if err != nil {
		return nil, err
	}
	pos.DebtPrincipal = debt
	globals.TotalDebt = totalDebt
	if err := e.store(pos, globals); err != nil {
		return nil, err
	}
	if err := e.token.TransferFrom(e.address, caller, e.address, payment); err != nil {
		return nil, fmt.Errorf("vault engine: collect repayment: %w", err)
	}
	if err := e.token.Burn(e.address, e.address, payment); err != nil {
		return nil, fmt.Errorf("vault engine: burn repayment: %w", err)
	}
	e.emit(events.VaultRepaid{
		User:    caller,
		Amount:  new(uint256.Int).Set(payment),
		NewDebt: new(uint256.Int).Set(debt),
	})
	return payment, nil
}
