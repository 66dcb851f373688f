package state

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
)

// ErrInsufficientFunds is returned when a native transfer exceeds the balance.
var ErrInsufficientFunds = errors.New("state: insufficient funds")

func decodeRLP(data []byte, out interface{}) error {
	return rlp.DecodeBytes(data, out)
}
