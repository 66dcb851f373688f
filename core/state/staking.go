package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/native/staking"
)

const stakingValidatorPrefix = "staking/validator/"

var (
	stakingDelegationPrefix = []byte("staking/delegation:")
	stakingUnbondQueueKey   = []byte("staking/unbonds")
	stakingUnbondSeqKey     = []byte("staking/unbond-seq")
)

func stakingValidatorKey(key string) []byte {
	return joinKey(stakingValidatorPrefix, key)
}

func stakingDelegationKey(delegator crypto.EntityKey, validator string) []byte {
	buf := make([]byte, 0, len(stakingDelegationPrefix)+len(delegator)+1+len(validator))
	buf = append(buf, stakingDelegationPrefix...)
	buf = append(buf, delegator...)
	buf = append(buf, '|')
	buf = append(buf, validator...)
	return ethcrypto.Keccak256(buf)
}

type storedValidator struct {
	Key     string
	Moniker string
	Active  bool
	Bonded  *big.Int
}

func (s *storedValidator) toValidator() (*staking.Validator, error) {
	bonded, err := fromBig(s.Bonded)
	if err != nil {
		return nil, err
	}
	return &staking.Validator{Key: s.Key, Moniker: s.Moniker, Active: s.Active, Bonded: bonded}, nil
}

type storedUnbond struct {
	ID          uint64
	Delegator   storedAddress
	Validator   string
	Amount      *big.Int
	ReleaseTime uint64
}

// StakingValidator returns the registered validator or nil.
func (m *Manager) StakingValidator(key string) (*staking.Validator, error) {
	record := new(storedValidator)
	ok, err := m.KVGet(stakingValidatorKey(key), record)
	if err != nil || !ok {
		return nil, err
	}
	return record.toValidator()
}

// PutStakingValidator stores a validator registry entry.
func (m *Manager) PutStakingValidator(v *staking.Validator) error {
	if v == nil || v.Key == "" {
		return fmt.Errorf("state: validator key required")
	}
	return m.KVPut(stakingValidatorKey(v.Key), &storedValidator{
		Key:     v.Key,
		Moniker: v.Moniker,
		Active:  v.Active,
		Bonded:  toBig(v.Bonded),
	})
}

// StakingValidators lists the registry in key order.
func (m *Manager) StakingValidators() ([]*staking.Validator, error) {
	var (
		out     []*staking.Validator
		iterErr error
	)
	err := m.kv.Iterate([]byte(stakingValidatorPrefix), func(_, value []byte) bool {
		record := new(storedValidator)
		if iterErr = decodeRLP(value, record); iterErr != nil {
			return false
		}
		v, err := record.toValidator()
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// Delegation returns the stake delegator has bonded to validator.
func (m *Manager) Delegation(delegator crypto.EntityKey, validator string) (*uint256.Int, error) {
	return m.loadAmount(stakingDelegationKey(delegator, validator))
}

// SetDelegation overwrites a delegation amount.
func (m *Manager) SetDelegation(delegator crypto.EntityKey, validator string, amount *uint256.Int) error {
	if delegator.IsEmpty() {
		return fmt.Errorf("state: delegator required")
	}
	return m.writeAmount(stakingDelegationKey(delegator, validator), amount)
}

// UnbondQueue returns every queued undelegation in insertion order.
func (m *Manager) UnbondQueue() ([]*staking.Unbond, error) {
	var records []storedUnbond
	ok, err := m.KVGet(stakingUnbondQueueKey, &records)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]*staking.Unbond, 0, len(records))
	for _, record := range records {
		delegator, err := record.Delegator.address()
		if err != nil {
			return nil, err
		}
		amount, err := fromBig(record.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, &staking.Unbond{
			ID:          record.ID,
			Delegator:   delegator,
			Validator:   record.Validator,
			Amount:      amount,
			ReleaseTime: record.ReleaseTime,
		})
	}
	return out, nil
}

// PutUnbondQueue replaces the queue.
func (m *Manager) PutUnbondQueue(queue []*staking.Unbond) error {
	records := make([]storedUnbond, 0, len(queue))
	for _, entry := range queue {
		if entry == nil {
			continue
		}
		records = append(records, storedUnbond{
			ID:          entry.ID,
			Delegator:   newStoredAddress(entry.Delegator),
			Validator:   entry.Validator,
			Amount:      toBig(entry.Amount),
			ReleaseTime: entry.ReleaseTime,
		})
	}
	return m.KVPut(stakingUnbondQueueKey, records)
}

// NextUnbondID allocates the next unbonding identifier, starting at 1.
func (m *Manager) NextUnbondID() (uint64, error) {
	var current uint64
	if _, err := m.KVGet(stakingUnbondSeqKey, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := m.KVPut(stakingUnbondSeqKey, next); err != nil {
		return 0, err
	}
	return next, nil
}
