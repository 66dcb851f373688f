package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

// kvStore is the key-value surface shared by the database and a Tx overlay.
type kvStore interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// Manager reads and writes typed records. A Manager obtained from Tx.Manager
// buffers every write until the transaction commits.
type Manager struct {
	kv kvStore
}

// NewManager creates a state manager that writes straight to db.
func NewManager(db storage.Database) *Manager {
	return &Manager{kv: db}
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if m == nil || m.kv == nil {
		return nil, false, fmt.Errorf("state manager unavailable")
	}
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, len(data) > 0, nil
}

// KVPut stores value RLP-encoded under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key.
func (m *Manager) KVDelete(key []byte) error {
	return m.kv.Delete(key)
}

func (m *Manager) loadAmount(key []byte) (*uint256.Int, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return fromBig(value)
}

func (m *Manager) writeAmount(key []byte, amount *uint256.Int) error {
	return m.KVPut(key, toBig(amount))
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("state: negative amount %s", v)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("state: amount %s exceeds 256 bits", v)
	}
	return out, nil
}

type storedAddress struct {
	Prefix string
	Bytes  []byte
}

func newStoredAddress(addr crypto.Address) storedAddress {
	if len(addr.Bytes()) == 0 {
		return storedAddress{}
	}
	return storedAddress{Prefix: string(addr.Prefix()), Bytes: append([]byte(nil), addr.Bytes()...)}
}

func (s storedAddress) address() (crypto.Address, error) {
	if len(s.Bytes) == 0 {
		return crypto.Address{}, nil
	}
	if len(s.Bytes) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("state: invalid stored address length %d", len(s.Bytes))
	}
	return crypto.NewAddress(crypto.AddressPrefix(s.Prefix), s.Bytes), nil
}

func joinKey(prefix string, parts ...string) []byte {
	return []byte(prefix + strings.Join(parts, "/"))
}

// Tx is an all-or-nothing overlay over a database. Reads see the overlay
// first; Commit writes every buffered change in one batch.
type Tx struct {
	mu      sync.Mutex
	db      storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

// Begin opens a transaction over the database.
func Begin(db storage.Database) *Tx {
	return &Tx{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Manager returns a state manager whose writes stay within the transaction.
func (tx *Tx) Manager() *Manager { return &Manager{kv: tx} }

// Get implements kvStore.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return nil, ErrTxClosed
	}
	k := string(key)
	if _, deleted := tx.deletes[k]; deleted {
		return nil, storage.ErrNotFound
	}
	if value, ok := tx.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return tx.db.Get(key)
}

// Put implements kvStore.
func (tx *Tx) Put(key []byte, value []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	k := string(key)
	delete(tx.deletes, k)
	tx.writes[k] = append([]byte(nil), value...)
	return nil
}

// Delete implements kvStore.
func (tx *Tx) Delete(key []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	k := string(key)
	delete(tx.writes, k)
	tx.deletes[k] = struct{}{}
	return nil
}

// Iterate implements kvStore, merging buffered writes over the database.
func (tx *Tx) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return ErrTxClosed
	}
	merged := make(map[string][]byte)
	err := tx.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	if err != nil {
		tx.mu.Unlock()
		return err
	}
	p := string(prefix)
	for k, v := range tx.writes {
		if strings.HasPrefix(k, p) {
			merged[k] = append([]byte(nil), v...)
		}
	}
	for k := range tx.deletes {
		delete(merged, k)
	}
	tx.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), merged[k]) {
			break
		}
	}
	return nil
}

// Pending returns the number of buffered writes and deletes.
func (tx *Tx) Pending() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.writes) + len(tx.deletes)
}

// Commit atomically applies the buffered changes and closes the transaction.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	batch := tx.db.NewBatch()
	for k, v := range tx.writes {
		batch.Put([]byte(k), v)
	}
	for k := range tx.deletes {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	tx.closed = true
	tx.writes = nil
	tx.deletes = nil
	return nil
}

// Discard drops the buffered changes and closes the transaction.
func (tx *Tx) Discard() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	tx.writes = nil
	tx.deletes = nil
}
