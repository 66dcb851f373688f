package crypto

import "encoding/hex"

// EntityKey is the canonical, representation-independent identity of an
// address. A contract reached through its entity hash and the same contract
// recorded by its package hash share one key; accounts never collide with
// contracts.
type EntityKey string

const (
	accountClass  = "account:"
	contractClass = "contract:"
)

// Canonical computes the entity key for the address. The zero Address maps
// to the empty key.
func (a Address) Canonical() EntityKey {
	if len(a.bytes) == 0 {
		return ""
	}
	class := accountClass
	if a.IsContract() {
		class = contractClass
	}
	return EntityKey(class + hex.EncodeToString(a.bytes))
}

// IsEmpty reports whether the key was derived from the zero Address.
func (k EntityKey) IsEmpty() bool { return k == "" }

// Matches reports whether the address resolves to this entity key.
func (k EntityKey) Matches(a Address) bool {
	return !k.IsEmpty() && k == a.Canonical()
}

// SameEntity reports whether two addresses refer to the same account or
// contract. It is the only identity comparison authorization checks use.
func SameEntity(a, b Address) bool {
	ka := a.Canonical()
	if ka.IsEmpty() {
		return false
	}
	return ka == b.Canonical()
}
