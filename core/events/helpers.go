package events

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatAddress(addr crypto.Address) string {
	if len(addr.Bytes()) == 0 {
		return ""
	}
	return addr.String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}
