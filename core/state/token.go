package state

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/native/token"
)

const tokenMetaPrefix = "token/meta/"

var (
	tokenBalancePrefix   = []byte("token/balance:")
	tokenAllowancePrefix = []byte("token/allowance:")
)

func tokenMetaKey(symbol string) []byte {
	return joinKey(tokenMetaPrefix, strings.ToUpper(strings.TrimSpace(symbol)))
}

func tokenBalanceKey(symbol string, holder crypto.EntityKey) []byte {
	buf := make([]byte, 0, len(tokenBalancePrefix)+len(symbol)+1+len(holder))
	buf = append(buf, tokenBalancePrefix...)
	buf = append(buf, strings.ToUpper(symbol)...)
	buf = append(buf, ':')
	buf = append(buf, holder...)
	return ethcrypto.Keccak256(buf)
}

func tokenAllowanceKey(symbol string, owner, spender crypto.EntityKey) []byte {
	buf := make([]byte, 0, len(tokenAllowancePrefix)+len(symbol)+2+len(owner)+len(spender))
	buf = append(buf, tokenAllowancePrefix...)
	buf = append(buf, strings.ToUpper(symbol)...)
	buf = append(buf, ':')
	buf = append(buf, owner...)
	buf = append(buf, '|')
	buf = append(buf, spender...)
	return ethcrypto.Keccak256(buf)
}

type storedTokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	Minter      storedAddress
	MinterKey   string
	TotalSupply *big.Int
}

// TokenMetadata returns the token metadata or nil when it is not registered.
func (m *Manager) TokenMetadata(symbol string) (*token.Metadata, error) {
	record := new(storedTokenMetadata)
	ok, err := m.KVGet(tokenMetaKey(symbol), record)
	if err != nil || !ok {
		return nil, err
	}
	minter, err := record.Minter.address()
	if err != nil {
		return nil, err
	}
	supply, err := fromBig(record.TotalSupply)
	if err != nil {
		return nil, err
	}
	return &token.Metadata{
		Name:        record.Name,
		Symbol:      record.Symbol,
		Decimals:    record.Decimals,
		Minter:      minter,
		MinterKey:   crypto.EntityKey(record.MinterKey),
		TotalSupply: supply,
	}, nil
}

// PutTokenMetadata stores the token metadata.
func (m *Manager) PutTokenMetadata(meta *token.Metadata) error {
	if meta == nil || strings.TrimSpace(meta.Symbol) == "" {
		return fmt.Errorf("state: token symbol required")
	}
	return m.KVPut(tokenMetaKey(meta.Symbol), &storedTokenMetadata{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		Minter:      newStoredAddress(meta.Minter),
		MinterKey:   string(meta.MinterKey),
		TotalSupply: toBig(meta.TotalSupply),
	})
}

// TokenBalance returns the holder's token balance.
func (m *Manager) TokenBalance(symbol string, holder crypto.EntityKey) (*uint256.Int, error) {
	return m.loadAmount(tokenBalanceKey(symbol, holder))
}

// SetTokenBalance overwrites the holder's token balance.
func (m *Manager) SetTokenBalance(symbol string, holder crypto.EntityKey, amount *uint256.Int) error {
	if holder.IsEmpty() {
		return fmt.Errorf("state: token holder required")
	}
	return m.writeAmount(tokenBalanceKey(symbol, holder), amount)
}

// TokenAllowance returns the allowance of spender over owner's tokens.
func (m *Manager) TokenAllowance(symbol string, owner, spender crypto.EntityKey) (*uint256.Int, error) {
	return m.loadAmount(tokenAllowanceKey(symbol, owner, spender))
}

// SetTokenAllowance overwrites an allowance.
func (m *Manager) SetTokenAllowance(symbol string, owner, spender crypto.EntityKey, amount *uint256.Int) error {
	return m.writeAmount(tokenAllowanceKey(symbol, owner, spender), amount)
}
