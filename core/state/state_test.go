package state

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/native/token"
	"stakevault/native/vault"
	"stakevault/storage"
)

func TestPositionRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	user := crypto.AccountFromSeed("alice")

	got, err := m.GetPosition(user)
	require.NoError(t, err)
	require.Nil(t, got)

	pos := vault.NewPosition(user)
	pos.Collateral = uint256.NewInt(100_000_000_000)
	pos.DebtPrincipal = uint256.NewInt(7)
	pos.PendingWithdraw = uint256.NewInt(3)
	pos.Status = vault.StatusWithdrawing
	pos.LastAccrual = 1_700_000_000
	require.NoError(t, m.PutPosition(pos))

	got, err = m.GetPosition(user)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, crypto.SameEntity(user, got.Owner))
	require.Equal(t, "100000000000", got.Collateral.Dec())
	require.Equal(t, "7", got.DebtPrincipal.Dec())
	require.Equal(t, "3", got.PendingWithdraw.Dec())
	require.Equal(t, vault.StatusWithdrawing, got.Status)
	require.Equal(t, uint64(1_700_000_000), got.LastAccrual)

	all, err := m.Positions()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPositionKeyedByEntity(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	contract := crypto.ContractFromSeed("router")
	pos := vault.NewPosition(contract)
	pos.Collateral = uint256.NewInt(5)
	require.NoError(t, m.PutPosition(pos))

	got, err := m.GetPosition(contract.PackageAddress())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "5", got.Collateral.Dec())
}

func TestGlobalsRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	g, err := m.GetGlobals()
	require.NoError(t, err)
	require.Nil(t, g)

	owner := crypto.AccountFromSeed("owner")
	debt := crypto.ContractFromSeed("token")
	g = vault.NewGlobals(owner, debt)
	g.TotalCollateral = uint256.NewInt(10)
	g.TotalDebt = uint256.NewInt(20)
	g.PendingToDelegate = uint256.NewInt(30)
	g.TotalDelegated = uint256.NewInt(40)
	g.TotalPendingWithdraw = uint256.NewInt(50)
	g.ValidatorIdentity = "01abcd"
	g.Paused = true
	require.NoError(t, m.PutGlobals(g))

	got, err := m.GetGlobals()
	require.NoError(t, err)
	require.True(t, crypto.SameEntity(owner, got.Owner))
	require.True(t, crypto.SameEntity(debt, got.DebtToken))
	require.Equal(t, "10", got.TotalCollateral.Dec())
	require.Equal(t, "20", got.TotalDebt.Dec())
	require.Equal(t, "30", got.PendingToDelegate.Dec())
	require.Equal(t, "40", got.TotalDelegated.Dec())
	require.Equal(t, "50", got.TotalPendingWithdraw.Dec())
	require.Equal(t, "01abcd", got.ValidatorIdentity)
	require.True(t, got.Paused)
}

func TestTransferNative(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	alice := crypto.AccountFromSeed("alice")
	vaultAddr := crypto.ContractFromSeed("vault")
	require.NoError(t, m.CreditNative(alice, uint256.NewInt(100)))

	require.NoError(t, m.TransferNative(alice, vaultAddr.PackageAddress(), uint256.NewInt(60)))
	bal, err := m.NativeBalance(vaultAddr)
	require.NoError(t, err)
	require.Equal(t, "60", bal.Dec())

	err = m.TransferNative(alice, vaultAddr, uint256.NewInt(41))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Self transfers and zero amounts leave balances alone.
	require.NoError(t, m.TransferNative(vaultAddr, vaultAddr.PackageAddress(), uint256.NewInt(60)))
	require.NoError(t, m.TransferNative(alice, vaultAddr, new(uint256.Int)))
	bal, err = m.NativeBalance(alice)
	require.NoError(t, err)
	require.Equal(t, "40", bal.Dec())
}

func TestTokenRecords(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	meta, err := m.TokenMetadata("vnat")
	require.NoError(t, err)
	require.Nil(t, meta)

	minter := crypto.ContractFromSeed("vault").PackageAddress()
	require.NoError(t, m.PutTokenMetadata(&token.Metadata{
		Name:        "Vault Staked Native",
		Symbol:      "vNAT",
		Decimals:    18,
		Minter:      minter,
		MinterKey:   minter.Canonical(),
		TotalSupply: uint256.NewInt(99),
	}))
	meta, err = m.TokenMetadata("VNAT")
	require.NoError(t, err)
	require.Equal(t, "vNAT", meta.Symbol)
	require.Equal(t, uint8(18), meta.Decimals)
	require.Equal(t, crypto.PackagePrefix, meta.Minter.Prefix())
	require.Equal(t, minter.Canonical(), meta.MinterKey)
	require.Equal(t, "99", meta.TotalSupply.Dec())

	alice := crypto.AccountFromSeed("alice").Canonical()
	bob := crypto.AccountFromSeed("bob").Canonical()
	require.NoError(t, m.SetTokenBalance("vNAT", alice, uint256.NewInt(12)))
	bal, err := m.TokenBalance("VNAT", alice)
	require.NoError(t, err)
	require.Equal(t, "12", bal.Dec())
	bal, err = m.TokenBalance("VNAT", bob)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	require.NoError(t, m.SetTokenAllowance("vNAT", alice, bob, uint256.NewInt(5)))
	allowance, err := m.TokenAllowance("vNAT", alice, bob)
	require.NoError(t, err)
	require.Equal(t, "5", allowance.Dec())
	allowance, err = m.TokenAllowance("vNAT", bob, alice)
	require.NoError(t, err)
	require.True(t, allowance.IsZero())
}

func TestStakingRecords(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.PutStakingValidator(&staking.Validator{Key: "02bb", Moniker: "b", Active: true, Bonded: uint256.NewInt(1)}))
	require.NoError(t, m.PutStakingValidator(&staking.Validator{Key: "01aa", Moniker: "a", Active: false}))

	vals, err := m.StakingValidators()
	require.NoError(t, err)
	require.Len(t, vals, 2)
	require.Equal(t, "01aa", vals[0].Key)
	require.Equal(t, "02bb", vals[1].Key)
	require.True(t, vals[1].Active)

	pool := crypto.ContractFromSeed("vault")
	require.NoError(t, m.SetDelegation(pool.Canonical(), "01aa", uint256.NewInt(700)))
	amt, err := m.Delegation(pool.PackageAddress().Canonical(), "01aa")
	require.NoError(t, err)
	require.Equal(t, "700", amt.Dec())

	first, err := m.NextUnbondID()
	require.NoError(t, err)
	second, err := m.NextUnbondID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)
	require.Equal(t, uint64(2), second)

	require.NoError(t, m.PutUnbondQueue([]*staking.Unbond{
		{ID: first, Delegator: pool, Validator: "01aa", Amount: uint256.NewInt(50), ReleaseTime: 10},
		nil,
		{ID: second, Delegator: pool, Validator: "01aa", Amount: uint256.NewInt(60), ReleaseTime: 20},
	}))
	queue, err := m.UnbondQueue()
	require.NoError(t, err)
	require.Len(t, queue, 2)
	require.Equal(t, "60", queue[1].Amount.Dec())
	require.True(t, crypto.SameEntity(pool, queue[0].Delegator))
}

func TestClockOffset(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	offset, err := m.ClockOffset()
	require.NoError(t, err)
	require.Zero(t, offset)

	offset, err = m.AdvanceClock(14 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 14*time.Hour, offset)

	offset, err = m.AdvanceClock(-time.Hour)
	require.NoError(t, err)
	require.Equal(t, 14*time.Hour, offset)
}

func TestTxIsolationAndCommit(t *testing.T) {
	db := storage.NewMemDB()
	base := NewManager(db)
	alice := crypto.AccountFromSeed("alice")
	require.NoError(t, base.CreditNative(alice, uint256.NewInt(10)))

	tx := Begin(db)
	m := tx.Manager()
	require.NoError(t, m.CreditNative(alice, uint256.NewInt(5)))

	inTx, err := m.NativeBalance(alice)
	require.NoError(t, err)
	require.Equal(t, "15", inTx.Dec())
	outside, err := base.NativeBalance(alice)
	require.NoError(t, err)
	require.Equal(t, "10", outside.Dec())
	require.Equal(t, 1, tx.Pending())

	require.NoError(t, tx.Commit())
	outside, err = base.NativeBalance(alice)
	require.NoError(t, err)
	require.Equal(t, "15", outside.Dec())

	require.ErrorIs(t, tx.Commit(), ErrTxClosed)
	_, err = tx.Get([]byte("x"))
	require.ErrorIs(t, err, ErrTxClosed)
}

func TestTxDiscard(t *testing.T) {
	db := storage.NewMemDB()
	tx := Begin(db)
	m := tx.Manager()
	require.NoError(t, m.PutGlobals(vault.NewGlobals(crypto.AccountFromSeed("owner"), crypto.ContractFromSeed("token"))))
	tx.Discard()

	g, err := NewManager(db).GetGlobals()
	require.NoError(t, err)
	require.Nil(t, g)
}

func TestTxIterateMergesOverlay(t *testing.T) {
	db := storage.NewMemDB()
	base := NewManager(db)
	for _, seed := range []string{"a", "b"} {
		pos := vault.NewPosition(crypto.AccountFromSeed(seed))
		pos.Collateral = uint256.NewInt(1)
		require.NoError(t, base.PutPosition(pos))
	}

	tx := Begin(db)
	m := tx.Manager()
	pos := vault.NewPosition(crypto.AccountFromSeed("c"))
	pos.Collateral = uint256.NewInt(2)
	require.NoError(t, m.PutPosition(pos))
	require.NoError(t, m.KVDelete(vaultPositionKey(crypto.AccountFromSeed("a"))))

	all, err := m.Positions()
	require.NoError(t, err)
	require.Len(t, all, 2)

	all, err = base.Positions()
	require.NoError(t, err)
	require.Len(t, all, 2)
	tx.Discard()
}
