package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/native/token"
	"stakevault/native/vault"
)

// Spec is the operator-facing description of the initial ledger. It is read
// from JSON files or embedded in the node TOML configuration.
type Spec struct {
	Owner      string            `json:"owner" toml:"owner"`
	Token      TokenSpec         `json:"token" toml:"token"`
	Validators []ValidatorSpec   `json:"validators" toml:"validators"`
	Delegate   string            `json:"delegate,omitempty" toml:"delegate"`
	Alloc      map[string]string `json:"alloc" toml:"alloc"` // address -> whole native coins
}

type TokenSpec struct {
	Name   string `json:"name" toml:"name"`
	Symbol string `json:"symbol" toml:"symbol"`
}

type ValidatorSpec struct {
	PubKey  string `json:"pubKey" toml:"pub_key"`
	Moniker string `json:"moniker,omitempty" toml:"moniker"`
}

// Allocation is a resolved native balance credited at genesis.
type Allocation struct {
	Address crypto.Address
	Amount  *uint256.Int
}

// Validator is a resolved registry entry.
type Validator struct {
	Key     crypto.ValidatorKey
	Moniker string
}

// Resolved is a validated Spec with typed values.
type Resolved struct {
	Owner       crypto.Address
	TokenName   string
	TokenSymbol string
	Validators  []Validator
	Delegate    crypto.ValidatorKey
	Alloc       []Allocation
}

// Load reads a JSON genesis file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	spec := new(Spec)
	if err := json.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return spec, nil
}

// Resolve parses addresses, keys and amounts. Allocations are returned sorted
// by address so installation is deterministic.
func (s *Spec) Resolve() (*Resolved, error) {
	if s == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	ownerText := strings.TrimSpace(s.Owner)
	if ownerText == "" {
		return nil, fmt.Errorf("genesis: owner required")
	}
	owner, err := resolveAddress(ownerText)
	if err != nil {
		return nil, fmt.Errorf("genesis: owner: %w", err)
	}
	out := &Resolved{
		Owner:       owner,
		TokenName:   strings.TrimSpace(s.Token.Name),
		TokenSymbol: strings.TrimSpace(s.Token.Symbol),
	}
	if out.TokenName == "" {
		out.TokenName = token.DefaultName
	}
	if out.TokenSymbol == "" {
		out.TokenSymbol = token.DefaultSymbol
	}

	seen := make(map[string]struct{}, len(s.Validators))
	for i, spec := range s.Validators {
		key, err := crypto.ParseValidatorKey(spec.PubKey)
		if err != nil {
			return nil, fmt.Errorf("genesis: validator %d: %w", i, err)
		}
		if _, dup := seen[key.String()]; dup {
			return nil, fmt.Errorf("genesis: duplicate validator %s", key.String())
		}
		seen[key.String()] = struct{}{}
		out.Validators = append(out.Validators, Validator{Key: key, Moniker: strings.TrimSpace(spec.Moniker)})
	}

	if delegate := strings.TrimSpace(s.Delegate); delegate != "" {
		key, err := crypto.ParseValidatorKey(delegate)
		if err != nil {
			return nil, fmt.Errorf("genesis: delegate: %w", err)
		}
		if _, ok := seen[key.String()]; !ok {
			return nil, fmt.Errorf("genesis: delegate %s is not a listed validator", key.String())
		}
		out.Delegate = key
	}

	for addrText, amountText := range s.Alloc {
		addr, err := resolveAddress(addrText)
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %q: %w", addrText, err)
		}
		amount, err := vault.ParseNative(amountText)
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %q: %w", addrText, err)
		}
		out.Alloc = append(out.Alloc, Allocation{Address: addr, Amount: amount})
	}
	sort.Slice(out.Alloc, func(i, j int) bool {
		return out.Alloc[i].Address.Canonical() < out.Alloc[j].Address.Canonical()
	})
	for i := 1; i < len(out.Alloc); i++ {
		if out.Alloc[i].Address.Canonical() == out.Alloc[i-1].Address.Canonical() {
			return nil, fmt.Errorf("genesis: duplicate allocation for %s", out.Alloc[i].Address)
		}
	}
	return out, nil
}

// resolveAddress accepts bech32 or hex addresses, and otherwise treats the
// value as a seed name for a deterministic account (handy for local demos).
func resolveAddress(value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("address must not be empty")
	}
	if addr, err := crypto.ParseAddress(trimmed); err == nil {
		return addr, nil
	}
	if strings.HasPrefix(trimmed, "seed:") {
		return crypto.AccountFromSeed(strings.TrimPrefix(trimmed, "seed:")), nil
	}
	return crypto.ParseAddress(trimmed)
}

// ResolveAddress exposes the genesis address syntax to the CLI.
func ResolveAddress(value string) (crypto.Address, error) {
	return resolveAddress(value)
}
