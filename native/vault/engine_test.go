package vault

import (
	"errors"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

type mockEngineState struct {
	positions map[crypto.EntityKey]*Position
	globals   *Globals
	balances  map[crypto.EntityKey]*uint256.Int
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		positions: make(map[crypto.EntityKey]*Position),
		balances:  make(map[crypto.EntityKey]*uint256.Int),
	}
}

func (m *mockEngineState) GetPosition(user crypto.Address) (*Position, error) {
	if pos, ok := m.positions[user.Canonical()]; ok {
		return pos.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) PutPosition(pos *Position) error {
	m.positions[pos.Owner.Canonical()] = pos.Clone()
	return nil
}

func (m *mockEngineState) GetGlobals() (*Globals, error) {
	return m.globals.Clone(), nil
}

func (m *mockEngineState) PutGlobals(globals *Globals) error {
	m.globals = globals.Clone()
	return nil
}

func (m *mockEngineState) NativeBalance(addr crypto.Address) (*uint256.Int, error) {
	if bal, ok := m.balances[addr.Canonical()]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

func (m *mockEngineState) credit(addr crypto.Address, amount *uint256.Int) {
	bal, _ := m.NativeBalance(addr)
	m.balances[addr.Canonical()] = bal.Add(bal, amount)
}

func (m *mockEngineState) TransferNative(from, to crypto.Address, amount *uint256.Int) error {
	bal, _ := m.NativeBalance(from)
	if bal.Lt(amount) {
		return errors.New("insufficient native balance")
	}
	m.balances[from.Canonical()] = bal.Sub(bal, amount)
	m.credit(to, amount)
	return nil
}

type mockToken struct {
	minter     crypto.Address
	balances   map[crypto.EntityKey]*uint256.Int
	allowances map[string]*uint256.Int
	failMint   bool
}

func newMockToken(minter crypto.Address) *mockToken {
	return &mockToken{
		minter:     minter,
		balances:   make(map[crypto.EntityKey]*uint256.Int),
		allowances: make(map[string]*uint256.Int),
	}
}

func allowanceKey(owner, spender crypto.Address) string {
	return string(owner.Canonical()) + "|" + string(spender.Canonical())
}

func (m *mockToken) balance(addr crypto.Address) *uint256.Int {
	if bal, ok := m.balances[addr.Canonical()]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (m *mockToken) Mint(caller, to crypto.Address, amount *uint256.Int) error {
	if m.failMint || !crypto.SameEntity(caller, m.minter) {
		return errors.New("token: caller is not the minter")
	}
	m.balances[to.Canonical()] = new(uint256.Int).Add(m.balance(to), amount)
	return nil
}

func (m *mockToken) Burn(caller, from crypto.Address, amount *uint256.Int) error {
	if !crypto.SameEntity(caller, m.minter) {
		return errors.New("token: caller is not the minter")
	}
	bal := m.balance(from)
	if bal.Lt(amount) {
		return errors.New("token: burn exceeds balance")
	}
	m.balances[from.Canonical()] = new(uint256.Int).Sub(bal, amount)
	return nil
}

func (m *mockToken) TransferFrom(spender, owner, recipient crypto.Address, amount *uint256.Int) error {
	allowance, _ := m.Allowance(owner, spender)
	if allowance.Lt(amount) {
		return errors.New("token: allowance exceeded")
	}
	bal := m.balance(owner)
	if bal.Lt(amount) {
		return errors.New("token: insufficient balance")
	}
	m.allowances[allowanceKey(owner, spender)] = new(uint256.Int).Sub(allowance, amount)
	m.balances[owner.Canonical()] = new(uint256.Int).Sub(bal, amount)
	m.balances[recipient.Canonical()] = new(uint256.Int).Add(m.balance(recipient), amount)
	return nil
}

func (m *mockToken) Allowance(owner, spender crypto.Address) (*uint256.Int, error) {
	if a, ok := m.allowances[allowanceKey(owner, spender)]; ok {
		return new(uint256.Int).Set(a), nil
	}
	return new(uint256.Int), nil
}

func (m *mockToken) BalanceOf(owner crypto.Address) (*uint256.Int, error) {
	return new(uint256.Int).Set(m.balance(owner)), nil
}

func (m *mockToken) approve(owner, spender crypto.Address, amount *uint256.Int) {
	m.allowances[allowanceKey(owner, spender)] = new(uint256.Int).Set(amount)
}

type mockStaking struct {
	state       *mockEngineState
	pool        crypto.Address
	delegated   map[string]*uint256.Int
	undelegated []*uint256.Int
	failUnbond  bool
}

func newMockStaking(state *mockEngineState) *mockStaking {
	return &mockStaking{
		state:     state,
		pool:      crypto.ContractFromSeed("staking-pool"),
		delegated: make(map[string]*uint256.Int),
	}
}

func (m *mockStaking) key(delegator crypto.Address, validator crypto.ValidatorKey) string {
	return string(delegator.Canonical()) + "|" + validator.String()
}

func (m *mockStaking) Delegate(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) error {
	if err := m.state.TransferNative(delegator, m.pool, amount); err != nil {
		return err
	}
	current, _ := m.DelegatedAmount(delegator, validator)
	m.delegated[m.key(delegator, validator)] = current.Add(current, amount)
	return nil
}

func (m *mockStaking) Undelegate(delegator crypto.Address, validator crypto.ValidatorKey, amount *uint256.Int) error {
	if m.failUnbond {
		return errors.New("staking: undelegate rejected")
	}
	current, _ := m.DelegatedAmount(delegator, validator)
	if current.Lt(amount) {
		return errors.New("staking: undelegate exceeds delegation")
	}
	m.delegated[m.key(delegator, validator)] = current.Sub(current, amount)
	m.undelegated = append(m.undelegated, new(uint256.Int).Set(amount))
	return nil
}

func (m *mockStaking) DelegatedAmount(delegator crypto.Address, validator crypto.ValidatorKey) (*uint256.Int, error) {
	if v, ok := m.delegated[m.key(delegator, validator)]; ok {
		return new(uint256.Int).Set(v), nil
	}
	return new(uint256.Int), nil
}

// release completes every pending unbond.
func (m *mockStaking) release(delegator crypto.Address) {
	for _, amount := range m.undelegated {
		_ = m.state.TransferNative(m.pool, delegator, amount)
	}
	m.undelegated = nil
}

type fixture struct {
	engine  *Engine
	state   *mockEngineState
	token   *mockToken
	staking *mockStaking
	events  *events.Buffer
	owner   crypto.Address
	vault   crypto.Address
	now     int64
}

var testValidator = "01" + strings.Repeat("ab", 32)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		owner: crypto.AccountFromSeed("owner"),
		vault: crypto.ContractFromSeed("vault"),
		now:   1_700_000_000,
	}
	f.state = newMockEngineState()
	f.token = newMockToken(f.vault.PackageAddress())
	f.staking = newMockStaking(f.state)
	f.events = &events.Buffer{}
	f.engine = NewEngine(f.vault, DefaultParams())
	f.engine.SetState(f.state)
	f.engine.SetToken(f.token)
	f.engine.SetStaking(f.staking)
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() int64 { return f.now })
	if err := f.engine.Initialize(f.owner, crypto.ContractFromSeed("token")); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

func (f *fixture) user(t *testing.T, seed string, native uint64) crypto.Address {
	t.Helper()
	addr := crypto.AccountFromSeed(seed)
	f.state.credit(addr, uint256.NewInt(native))
	return addr
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, evt := range f.events.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func coins(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(NativePerUnit))
}

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(FixedPointOne))
}

func expectCode(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	expectCode(t, f.engine.Deposit(alice, uint256.NewInt(0)), ErrZeroAmount)
	expectCode(t, f.engine.Deposit(alice, nil), ErrZeroAmount)
	if status, _ := f.engine.StatusOf(alice); status != StatusNone {
		t.Fatalf("expected no position, got %s", status)
	}
}

func TestDepositRequiresFunds(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 10)
	expectCode(t, f.engine.Deposit(alice, uint256.NewInt(11)), ErrInsufficientLiquidBalance)
}

func TestVaultCannotHoldPosition(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	if err := f.engine.Deposit(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for _, self := range []crypto.Address{f.vault, f.vault.PackageAddress()} {
		expectCode(t, f.engine.Deposit(self, uint256.NewInt(1000)), ErrUnauthorized)
		expectCode(t, f.engine.AddCollateral(self, uint256.NewInt(1)), ErrUnauthorized)
		expectCode(t, f.engine.Borrow(self, uint256.NewInt(800_000_000_000)), ErrUnauthorized)
		if status, _ := f.engine.StatusOf(self); status != StatusNone {
			t.Fatalf("vault must not own a position, got %s", status)
		}
	}
	total, _ := f.engine.TotalCollateral()
	if total.Uint64() != 1000 {
		t.Fatalf("total collateral must only count alice, got %s", total)
	}
	if supply := f.token.balance(f.vault); !supply.IsZero() {
		t.Fatalf("no debt may be minted to the vault, got %s", supply)
	}
}

func TestDepositQueuesDelegation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	if err := f.engine.Deposit(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pending, _ := f.engine.PendingToDelegate()
	if pending.Uint64() != 1000 {
		t.Fatalf("expected 1000 pending, got %s", pending)
	}
	liquid, _ := f.engine.LiquidBalance()
	if liquid.Uint64() != 1000 {
		t.Fatalf("expected vault to hold the deposit, got %s", liquid)
	}
	if len(f.staking.delegated) != 0 {
		t.Fatalf("deposit must not delegate")
	}
	if got := f.eventTypes(); len(got) != 1 || got[0] != events.TypeVaultDeposited {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestBorrowExactlyMaxLtv(t *testing.T) {
	// 1000 native units convert to 1000e9 fixed-point units.
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	if err := f.engine.Deposit(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	max, err := MaxBorrowable(uint256.NewInt(1000), DefaultMaxLTVBps)
	if err != nil {
		t.Fatalf("max borrowable: %v", err)
	}
	if max.Uint64() != 800_000_000_000 {
		t.Fatalf("unexpected max borrowable %s", max)
	}
	if err := f.engine.Borrow(alice, max); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	ltv, _ := f.engine.LtvOf(alice)
	if ltv != 8000 {
		t.Fatalf("expected ltv 8000, got %d", ltv)
	}
	if bal := f.token.balance(alice); !bal.Eq(max) {
		t.Fatalf("expected minted %s, got %s", max, bal)
	}
	expectCode(t, f.engine.Borrow(alice, uint256.NewInt(1)), ErrLtvExceeded)
}

func TestBorrowAboveMaxLtvFails(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	if err := f.engine.Deposit(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	expectCode(t, f.engine.Borrow(alice, uint256.NewInt(800_000_000_001)), ErrLtvExceeded)
	debt, _ := f.engine.DebtOf(alice)
	if !debt.IsZero() {
		t.Fatalf("failed borrow must not record debt, got %s", debt)
	}
}

func TestBorrowWithoutVault(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 0)
	expectCode(t, f.engine.Borrow(alice, uint256.NewInt(1)), ErrNoVault)
}

func TestDepositAndAddCollateralAccumulate(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 200)
	if err := f.engine.Deposit(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.AddCollateral(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	collateral, _ := f.engine.CollateralOf(alice)
	if collateral.Uint64() != 200 {
		t.Fatalf("expected collateral 200, got %s", collateral)
	}
	total, _ := f.engine.TotalCollateral()
	if total.Uint64() != 200 {
		t.Fatalf("expected total collateral 200, got %s", total)
	}
}

func TestInterestAccruesOverOneYear(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000*NativePerUnit)
	if err := f.engine.Deposit(alice, coins(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Borrow(alice, tokens(100)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	before, _ := f.engine.DebtOf(alice)
	f.now += int64(SecondsPerYear)
	after, _ := f.engine.DebtOf(alice)
	if !after.Gt(before) {
		t.Fatalf("debt must grow, before=%s after=%s", before, after)
	}
	if !after.Eq(tokens(102)) {
		t.Fatalf("expected 102 tokens of debt, got %s", FormatFixedPoint(after))
	}
	// Views do not mutate state.
	stored := f.state.positions[alice.Canonical()]
	if !stored.DebtPrincipal.Eq(tokens(100)) {
		t.Fatalf("view must not accrue, principal %s", stored.DebtPrincipal)
	}

	f.events.Reset()
	if err := f.engine.Borrow(alice, tokens(1)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	got := f.eventTypes()
	if len(got) != 2 || got[0] != events.TypeVaultInterestAccrued || got[1] != events.TypeVaultBorrowed {
		t.Fatalf("unexpected events %v", got)
	}
	total, _ := f.engine.TotalDebt()
	if !total.Eq(tokens(103)) {
		t.Fatalf("expected total debt 103, got %s", FormatFixedPoint(total))
	}
}

func TestRepayCapsAtDebt(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	if err := f.engine.Deposit(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Borrow(alice, uint256.NewInt(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Extra tokens from elsewhere so the over-payment is affordable.
	f.token.balances[alice.Canonical()] = uint256.NewInt(2000)
	f.token.approve(alice, f.vault.PackageAddress(), uint256.NewInt(2000))

	paid, err := f.engine.Repay(alice, uint256.NewInt(1500))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if paid.Uint64() != 500 {
		t.Fatalf("expected to consume 500, got %s", paid)
	}
	debt, _ := f.engine.DebtOf(alice)
	if !debt.IsZero() {
		t.Fatalf("expected zero debt, got %s", debt)
	}
	if bal := f.token.balance(alice); bal.Uint64() != 1500 {
		t.Fatalf("expected 1500 tokens left, got %s", bal)
	}
	if bal := f.token.balance(f.vault); !bal.IsZero() {
		t.Fatalf("collected tokens must be burned, got %s", bal)
	}
	_, err = f.engine.Repay(alice, uint256.NewInt(1))
	expectCode(t, err, ErrInsufficientDebt)
}

func TestRepayRequiresAllowance(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	_ = f.engine.Borrow(alice, uint256.NewInt(500))
	f.token.approve(alice, f.vault, uint256.NewInt(499))
	_, err := f.engine.RepayAll(alice)
	expectCode(t, err, ErrInsufficientAllowance)
	f.token.approve(alice, f.vault, uint256.NewInt(500))
	paid, err := f.engine.RepayAll(alice)
	if err != nil {
		t.Fatalf("repay all: %v", err)
	}
	if paid.Uint64() != 500 {
		t.Fatalf("expected 500 repaid, got %s", paid)
	}
}

func TestWithdrawRoundTripResetsPosition(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	if err := f.engine.Deposit(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.RequestWithdraw(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("request: %v", err)
	}
	if status, _ := f.engine.StatusOf(alice); status != StatusWithdrawing {
		t.Fatalf("expected withdrawing, got %s", status)
	}
	total, _ := f.engine.TotalCollateral()
	if !total.IsZero() {
		t.Fatalf("requested collateral must leave the total, got %s", total)
	}
	paid, err := f.engine.FinalizeWithdraw(alice)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if paid.Uint64() != 1000 {
		t.Fatalf("unexpected payout %s", paid)
	}
	view, _ := f.engine.Position(alice)
	if view.Status != StatusNone || !view.CollateralNative.IsZero() || !view.PendingWithdrawNative.IsZero() {
		t.Fatalf("unexpected position %+v", view)
	}
	if bal, _ := f.state.NativeBalance(alice); bal.Uint64() != 1000 {
		t.Fatalf("expected funds back, got %s", bal)
	}
}

func TestRequestWithdrawTwiceIsPending(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	if err := f.engine.RequestWithdraw(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("request: %v", err)
	}
	err := f.engine.RequestWithdraw(alice, uint256.NewInt(100))
	expectCode(t, err, ErrWithdrawPending)
	if !Retryable(err) {
		t.Fatalf("withdraw pending should be retryable")
	}
	expectCode(t, f.engine.Deposit(alice, uint256.NewInt(1)), ErrWithdrawPending)
	expectCode(t, f.engine.Borrow(alice, uint256.NewInt(1)), ErrWithdrawPending)
	_, err = f.engine.WithdrawMax(alice)
	expectCode(t, err, ErrWithdrawPending)
}

func TestRequestWithdrawChecks(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	expectCode(t, f.engine.RequestWithdraw(alice, uint256.NewInt(1)), ErrNoVault)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	expectCode(t, f.engine.RequestWithdraw(alice, uint256.NewInt(0)), ErrZeroAmount)
	expectCode(t, f.engine.RequestWithdraw(alice, uint256.NewInt(1001)), ErrInsufficientCollateral)
	_ = f.engine.Borrow(alice, uint256.NewInt(400_000_000_000))
	// 500 native units back exactly 400e9 of debt.
	expectCode(t, f.engine.RequestWithdraw(alice, uint256.NewInt(501)), ErrLtvExceeded)
	if err := f.engine.RequestWithdraw(alice, uint256.NewInt(500)); err != nil {
		t.Fatalf("withdraw to the ceiling should pass: %v", err)
	}
}

func TestFinalizeWaitsForLiquidity(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	_, err := f.engine.FinalizeWithdraw(alice)
	expectCode(t, err, ErrNoWithdrawPending)
	if err := f.engine.RequestWithdraw(alice, uint256.NewInt(600)); err != nil {
		t.Fatalf("request: %v", err)
	}
	// Move liquid funds out from under the vault.
	drain := crypto.AccountFromSeed("elsewhere")
	if err := f.state.TransferNative(f.vault, drain, uint256.NewInt(500)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	_, err = f.engine.FinalizeWithdraw(alice)
	expectCode(t, err, ErrUnbondingNotComplete)
	if !Retryable(err) {
		t.Fatalf("unbonding should be retryable")
	}
	f.state.credit(f.vault, uint256.NewInt(100))
	if _, err := f.engine.FinalizeWithdraw(alice); err != nil {
		t.Fatalf("finalize after top up: %v", err)
	}
	if status, _ := f.engine.StatusOf(alice); status != StatusActive {
		t.Fatalf("residual collateral keeps the position active, got %s", status)
	}
}

func TestWithdrawMax(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	_, err := f.engine.WithdrawMax(alice)
	expectCode(t, err, ErrNoVault)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	_ = f.engine.Borrow(alice, uint256.NewInt(400_000_000_000))
	max, _ := f.engine.MaxWithdrawOf(alice)
	if max.Uint64() != 500 {
		t.Fatalf("expected 500 withdrawable, got %s", max)
	}
	amount, err := f.engine.WithdrawMax(alice)
	if err != nil {
		t.Fatalf("withdraw max: %v", err)
	}
	if !amount.Eq(max) {
		t.Fatalf("expected %s, got %s", max, amount)
	}
	ltv, _ := f.engine.LtvOf(alice)
	if ltv > DefaultMaxLTVBps {
		t.Fatalf("post-withdraw ltv %d above ceiling", ltv)
	}
}

func TestMaxWithdrawZeroWhileWithdrawing(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	if err := f.engine.RequestWithdraw(alice, uint256.NewInt(300)); err != nil {
		t.Fatalf("request: %v", err)
	}
	max, _ := f.engine.MaxWithdrawOf(alice)
	if !max.IsZero() {
		t.Fatalf("expected nothing withdrawable while withdrawing, got %s", max)
	}
	_, err := f.engine.WithdrawMax(alice)
	expectCode(t, err, ErrWithdrawPending)
	if pending, _ := f.engine.PendingWithdrawOf(alice); pending.Uint64() != 300 {
		t.Fatalf("expected 300 pending, got %s", pending)
	}
}

func TestWithdrawMaxAtCeiling(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	_ = f.engine.Borrow(alice, uint256.NewInt(800_000_000_000))
	_, err := f.engine.WithdrawMax(alice)
	expectCode(t, err, ErrLtvExceeded)
}

func TestWithdrawMaxNeverBreachesCeilingOnRounding(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 10)
	_ = f.engine.Deposit(alice, uint256.NewInt(10))
	// A debt that does not divide evenly by the ceiling.
	if err := f.engine.Borrow(alice, uint256.NewInt(3_333_333_333)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.engine.WithdrawMax(alice); err != nil {
		t.Fatalf("withdraw max: %v", err)
	}
	pos := f.state.positions[alice.Canonical()]
	if err := AssertWithinLtv(pos.DebtPrincipal, pos.Collateral, DefaultMaxLTVBps); err != nil {
		t.Fatalf("position left above the ceiling: %v", err)
	}
}

func TestForceDelegateBatches(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000*NativePerUnit)
	_, err := f.engine.ForceDelegate(alice)
	expectCode(t, err, ErrUnauthorized)

	if err := f.engine.Deposit(alice, coins(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	amount, err := f.engine.ForceDelegate(f.owner)
	if err != nil || !amount.IsZero() {
		t.Fatalf("no validator should be a no-op, got %v %v", amount, err)
	}
	if err := f.engine.SetValidatorIdentity(f.owner, testValidator); err != nil {
		t.Fatalf("set validator: %v", err)
	}
	amount, err = f.engine.ForceDelegate(f.owner)
	if err != nil || !amount.IsZero() {
		t.Fatalf("below minimum should be a no-op, got %v %v", amount, err)
	}
	pending, _ := f.engine.PendingToDelegate()
	if !pending.Eq(coins(100)) {
		t.Fatalf("pending must be kept, got %s", pending)
	}

	if err := f.engine.Deposit(alice, coins(400)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	amount, err = f.engine.ForceDelegate(f.owner)
	if err != nil {
		t.Fatalf("force delegate: %v", err)
	}
	if !amount.Eq(coins(500)) {
		t.Fatalf("expected 500 coins delegated, got %s", FormatNative(amount))
	}
	pending, _ = f.engine.PendingToDelegate()
	delegated, _ := f.engine.TotalDelegated()
	if !pending.IsZero() || !delegated.Eq(coins(500)) {
		t.Fatalf("unexpected batch state pending=%s delegated=%s", pending, delegated)
	}
	onChain, _ := f.engine.DelegatedAmount()
	if !onChain.Eq(coins(500)) {
		t.Fatalf("staking should report the delegation, got %s", onChain)
	}
}

func TestWithdrawTriggersUndelegation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000*NativePerUnit)
	_ = f.engine.SetValidatorIdentity(f.owner, testValidator)
	_ = f.engine.Deposit(alice, coins(1000))
	if _, err := f.engine.ForceDelegate(f.owner); err != nil {
		t.Fatalf("force delegate: %v", err)
	}
	f.events.Reset()
	if err := f.engine.RequestWithdraw(alice, coins(400)); err != nil {
		t.Fatalf("request: %v", err)
	}
	got := f.eventTypes()
	if len(got) != 2 || got[0] != events.TypeVaultUndelegationRequested || got[1] != events.TypeVaultWithdrawRequested {
		t.Fatalf("unexpected events %v", got)
	}
	delegated, _ := f.engine.TotalDelegated()
	if !delegated.Eq(coins(600)) {
		t.Fatalf("expected 600 coins still delegated, got %s", FormatNative(delegated))
	}
	_, err := f.engine.FinalizeWithdraw(alice)
	expectCode(t, err, ErrUnbondingNotComplete)

	f.staking.release(f.vault)
	if _, err := f.engine.FinalizeWithdraw(alice); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if bal, _ := f.state.NativeBalance(alice); !bal.Eq(coins(400)) {
		t.Fatalf("expected 400 coins paid, got %s", FormatNative(bal))
	}
}

func TestForceDelegateKeepsWithdrawReserve(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000*NativePerUnit)
	_ = f.engine.SetValidatorIdentity(f.owner, testValidator)
	if err := f.engine.Deposit(alice, coins(600)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Liquid funds cover the request, so nothing is undelegated.
	if err := f.engine.RequestWithdraw(alice, coins(100)); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(f.staking.undelegated) != 0 {
		t.Fatalf("liquid request must not undelegate")
	}
	reserved, _ := f.engine.TotalPendingWithdraw()
	if !reserved.Eq(coins(100)) {
		t.Fatalf("expected 100 coins reserved, got %s", FormatNative(reserved))
	}
	amount, err := f.engine.ForceDelegate(f.owner)
	if err != nil {
		t.Fatalf("force delegate: %v", err)
	}
	if !amount.Eq(coins(500)) {
		t.Fatalf("expected the reserve to stay liquid, delegated %s", FormatNative(amount))
	}
	liquid, _ := f.engine.LiquidBalance()
	if !liquid.Eq(coins(100)) {
		t.Fatalf("expected 100 coins liquid, got %s", FormatNative(liquid))
	}
	payout, err := f.engine.FinalizeWithdraw(alice)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !payout.Eq(coins(100)) {
		t.Fatalf("expected 100 coins paid, got %s", FormatNative(payout))
	}
	reserved, _ = f.engine.TotalPendingWithdraw()
	if !reserved.IsZero() {
		t.Fatalf("reserve must be released, got %s", reserved)
	}
	checkInvariants(t, f, []crypto.Address{alice})
}

func TestWithdrawShortfallIgnoresReservedFunds(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000*NativePerUnit)
	bob := f.user(t, "bob", 1000*NativePerUnit)
	_ = f.engine.SetValidatorIdentity(f.owner, testValidator)
	_ = f.engine.Deposit(alice, coins(600))
	if _, err := f.engine.ForceDelegate(f.owner); err != nil {
		t.Fatalf("force delegate: %v", err)
	}
	_ = f.engine.Deposit(bob, coins(100))
	if err := f.engine.RequestWithdraw(bob, coins(100)); err != nil {
		t.Fatalf("bob request: %v", err)
	}
	// The 100 liquid coins belong to bob, so alice's request must unbond.
	if err := f.engine.RequestWithdraw(alice, coins(50)); err != nil {
		t.Fatalf("alice request: %v", err)
	}
	delegated, _ := f.engine.TotalDelegated()
	if !delegated.Eq(coins(550)) {
		t.Fatalf("expected 550 coins still delegated, got %s", FormatNative(delegated))
	}
	if _, err := f.engine.FinalizeWithdraw(bob); err != nil {
		t.Fatalf("bob finalize: %v", err)
	}
	_, err := f.engine.FinalizeWithdraw(alice)
	expectCode(t, err, ErrUnbondingNotComplete)
	f.staking.release(f.vault)
	if _, err := f.engine.FinalizeWithdraw(alice); err != nil {
		t.Fatalf("alice finalize: %v", err)
	}
	checkInvariants(t, f, []crypto.Address{alice, bob})
}

func TestWithdrawRejectsCorruptValidator(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000*NativePerUnit)
	_ = f.engine.SetValidatorIdentity(f.owner, testValidator)
	_ = f.engine.Deposit(alice, coins(1000))
	_, _ = f.engine.ForceDelegate(f.owner)
	g := f.state.globals
	g.ValidatorIdentity = "05zz"
	f.state.globals = g
	expectCode(t, f.engine.RequestWithdraw(alice, coins(10)), ErrInvalidValidatorKey)
}

func TestPauseGate(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	expectCode(t, f.engine.Pause(alice), ErrUnauthorized)
	expectCode(t, f.engine.Unpause(f.owner), ErrContractPaused)
	if err := f.engine.Pause(f.owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	expectCode(t, f.engine.Pause(f.owner), ErrContractPaused)
	expectCode(t, f.engine.Deposit(alice, uint256.NewInt(0)), ErrContractPaused)
	expectCode(t, f.engine.Borrow(alice, uint256.NewInt(1)), ErrContractPaused)
	_, err := f.engine.Repay(alice, uint256.NewInt(1))
	expectCode(t, err, ErrContractPaused)
	_, err = f.engine.RepayAll(alice)
	expectCode(t, err, ErrContractPaused)
	expectCode(t, f.engine.RequestWithdraw(alice, uint256.NewInt(1)), ErrContractPaused)
	_, err = f.engine.WithdrawMax(alice)
	expectCode(t, err, ErrContractPaused)
	_, err = f.engine.FinalizeWithdraw(alice)
	expectCode(t, err, ErrContractPaused)
	if paused, _ := f.engine.IsPaused(); !paused {
		t.Fatalf("expected paused")
	}
	if err := f.engine.Unpause(f.owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := f.engine.Deposit(alice, uint256.NewInt(10)); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestSetValidatorIdentity(t *testing.T) {
	f := newFixture(t)
	expectCode(t, f.engine.SetValidatorIdentity(crypto.AccountFromSeed("mallory"), testValidator), ErrUnauthorized)
	err := f.engine.SetValidatorIdentity(f.owner, "03"+strings.Repeat("00", 32))
	expectCode(t, err, ErrInvalidValidatorKey)
	if Code(err) != CodeInvalidValidatorKey {
		t.Fatalf("expected code 13, got %d", Code(err))
	}
	if err := f.engine.SetValidatorIdentity(f.owner, "0x"+strings.ToUpper(testValidator)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := f.engine.ValidatorIdentity(); got != testValidator {
		t.Fatalf("expected canonical key, got %s", got)
	}
	if err := f.engine.SetValidatorIdentity(f.owner, ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := f.engine.ValidatorIdentity(); got != "" {
		t.Fatalf("expected cleared key, got %s", got)
	}
}

func TestMinDeposit(t *testing.T) {
	f := newFixture(t)
	params := DefaultParams()
	params.MinDeposit = uint256.NewInt(100)
	f.engine.params = params
	alice := f.user(t, "alice", 1000)
	expectCode(t, f.engine.Deposit(alice, uint256.NewInt(99)), ErrBelowMinDeposit)
	if err := f.engine.Deposit(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("deposit at minimum: %v", err)
	}
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	expectCode(t, f.engine.Initialize(f.owner, crypto.ContractFromSeed("token")), ErrVaultAlreadyExists)
}

func TestHealthFactorWithoutDebt(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 1000)
	_ = f.engine.Deposit(alice, uint256.NewInt(1000))
	hf, _ := f.engine.HealthFactorOf(alice)
	if hf != ^uint64(0) {
		t.Fatalf("expected max health factor, got %d", hf)
	}
	_ = f.engine.Borrow(alice, uint256.NewInt(400_000_000_000))
	hf, _ = f.engine.HealthFactorOf(alice)
	if hf != 20_000 {
		t.Fatalf("expected health factor 20000, got %d", hf)
	}
}
