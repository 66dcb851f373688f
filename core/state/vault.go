package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/native/vault"
)

const (
	vaultPositionPrefix = "vault/position/"
	nativeBalancePrefix = "balance/native/"
)

var vaultGlobalsKey = []byte("vault/globals")

func vaultPositionKey(user crypto.Address) []byte {
	return joinKey(vaultPositionPrefix, string(user.Canonical()))
}

func nativeBalanceKey(addr crypto.Address) []byte {
	return joinKey(nativeBalancePrefix, string(addr.Canonical()))
}

type storedPosition struct {
	Owner           storedAddress
	Collateral      *big.Int
	DebtPrincipal   *big.Int
	LastAccrual     uint64
	Status          uint8
	PendingWithdraw *big.Int
}

func newStoredPosition(pos *vault.Position) *storedPosition {
	return &storedPosition{
		Owner:           newStoredAddress(pos.Owner),
		Collateral:      toBig(pos.Collateral),
		DebtPrincipal:   toBig(pos.DebtPrincipal),
		LastAccrual:     pos.LastAccrual,
		Status:          uint8(pos.Status),
		PendingWithdraw: toBig(pos.PendingWithdraw),
	}
}

func (s *storedPosition) toPosition() (*vault.Position, error) {
	owner, err := s.Owner.address()
	if err != nil {
		return nil, err
	}
	status := vault.Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("state: invalid position status %d", s.Status)
	}
	pos := vault.NewPosition(owner)
	pos.LastAccrual = s.LastAccrual
	pos.Status = status
	if pos.Collateral, err = fromBig(s.Collateral); err != nil {
		return nil, err
	}
	if pos.DebtPrincipal, err = fromBig(s.DebtPrincipal); err != nil {
		return nil, err
	}
	if pos.PendingWithdraw, err = fromBig(s.PendingWithdraw); err != nil {
		return nil, err
	}
	return pos, nil
}

type storedGlobals struct {
	TotalCollateral   *big.Int
	TotalDebt         *big.Int
	PendingToDelegate *big.Int
	TotalDelegated    *big.Int
	ValidatorIdentity string
	DebtToken         storedAddress
	Owner             storedAddress
	Paused            bool
	PendingWithdraw   *big.Int `rlp:"optional"`
}

// GetPosition returns the stored position or nil when the user has none.
func (m *Manager) GetPosition(user crypto.Address) (*vault.Position, error) {
	record := new(storedPosition)
	ok, err := m.KVGet(vaultPositionKey(user), record)
	if err != nil || !ok {
		return nil, err
	}
	return record.toPosition()
}

// PutPosition stores the position under its owner's canonical identity.
func (m *Manager) PutPosition(pos *vault.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	if pos.Owner.Canonical().IsEmpty() {
		return fmt.Errorf("state: position owner must be set")
	}
	return m.KVPut(vaultPositionKey(pos.Owner), newStoredPosition(pos))
}

// Positions lists every stored position ordered by owner identity.
func (m *Manager) Positions() ([]*vault.Position, error) {
	var (
		out     []*vault.Position
		iterErr error
	)
	err := m.kv.Iterate([]byte(vaultPositionPrefix), func(_, value []byte) bool {
		record := new(storedPosition)
		if iterErr = decodeRLP(value, record); iterErr != nil {
			return false
		}
		pos, err := record.toPosition()
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, pos)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// GetGlobals returns the vault globals or nil before the vault is installed.
func (m *Manager) GetGlobals() (*vault.Globals, error) {
	record := new(storedGlobals)
	ok, err := m.KVGet(vaultGlobalsKey, record)
	if err != nil || !ok {
		return nil, err
	}
	owner, err := record.Owner.address()
	if err != nil {
		return nil, err
	}
	token, err := record.DebtToken.address()
	if err != nil {
		return nil, err
	}
	g := vault.NewGlobals(owner, token)
	g.ValidatorIdentity = record.ValidatorIdentity
	g.Paused = record.Paused
	if g.TotalCollateral, err = fromBig(record.TotalCollateral); err != nil {
		return nil, err
	}
	if g.TotalDebt, err = fromBig(record.TotalDebt); err != nil {
		return nil, err
	}
	if g.PendingToDelegate, err = fromBig(record.PendingToDelegate); err != nil {
		return nil, err
	}
	if g.TotalDelegated, err = fromBig(record.TotalDelegated); err != nil {
		return nil, err
	}
	if g.TotalPendingWithdraw, err = fromBig(record.PendingWithdraw); err != nil {
		return nil, err
	}
	return g, nil
}

// PutGlobals stores the vault globals.
func (m *Manager) PutGlobals(g *vault.Globals) error {
	if g == nil {
		return fmt.Errorf("state: nil globals")
	}
	return m.KVPut(vaultGlobalsKey, &storedGlobals{
		TotalCollateral:   toBig(g.TotalCollateral),
		TotalDebt:         toBig(g.TotalDebt),
		PendingToDelegate: toBig(g.PendingToDelegate),
		TotalDelegated:    toBig(g.TotalDelegated),
		ValidatorIdentity: g.ValidatorIdentity,
		DebtToken:         newStoredAddress(g.DebtToken),
		Owner:             newStoredAddress(g.Owner),
		Paused:            g.Paused,
		PendingWithdraw:   toBig(g.TotalPendingWithdraw),
	})
}

// NativeBalance returns the liquid native balance of addr.
func (m *Manager) NativeBalance(addr crypto.Address) (*uint256.Int, error) {
	if addr.Canonical().IsEmpty() {
		return new(uint256.Int), nil
	}
	return m.loadAmount(nativeBalanceKey(addr))
}

// SetNativeBalance overwrites the liquid native balance of addr.
func (m *Manager) SetNativeBalance(addr crypto.Address, amount *uint256.Int) error {
	if addr.Canonical().IsEmpty() {
		return fmt.Errorf("state: address must be set")
	}
	return m.writeAmount(nativeBalanceKey(addr), amount)
}

// CreditNative adds amount to the balance of addr. Used for genesis funding.
func (m *Manager) CreditNative(addr crypto.Address, amount *uint256.Int) error {
	bal, err := m.NativeBalance(addr)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("state: native balance overflow")
	}
	return m.SetNativeBalance(addr, next)
}

// TransferNative moves native funds between two entities.
func (m *Manager) TransferNative(from, to crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if crypto.SameEntity(from, to) {
		return nil
	}
	fromBal, err := m.NativeBalance(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBal.Dec(), amount.Dec())
	}
	toBal, err := m.NativeBalance(to)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return fmt.Errorf("state: native balance overflow")
	}
	if err := m.SetNativeBalance(from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.SetNativeBalance(to, next)
}
