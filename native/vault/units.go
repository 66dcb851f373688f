package vault

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// NativeDecimals is the precision of the collateral asset.
	NativeDecimals = 9
	// FixedPointDecimals is the precision of the debt token.
	FixedPointDecimals = 18

	// NativePerUnit is the number of native units in one whole collateral coin.
	NativePerUnit uint64 = 1_000_000_000
	// NativeToFixedFactor scales a native amount to the fixed-point domain.
	NativeToFixedFactor uint64 = 1_000_000_000
	// FixedPointOne is one whole debt token.
	FixedPointOne uint64 = 1_000_000_000_000_000_000
)

var nativeToFixed = uint256.NewInt(NativeToFixedFactor)

// ToFixedPoint converts a native amount to the debt token scale.
func ToFixedPoint(native *uint256.Int) (*uint256.Int, error) {
	if native == nil {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulOverflow(native, nativeToFixed)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// ToNative converts a fixed-point amount to native units, truncating toward
// zero.
func ToNative(fixed *uint256.Int) *uint256.Int {
	if fixed == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(fixed, nativeToFixed)
}

// FormatNative renders a native amount as whole coins, e.g. "1.5".
func FormatNative(amount *uint256.Int) string {
	return formatScaled(amount, NativeDecimals)
}

// FormatFixedPoint renders a fixed-point amount as whole tokens.
func FormatFixedPoint(amount *uint256.Int) string {
	return formatScaled(amount, FixedPointDecimals)
}

func formatScaled(amount *uint256.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -decimals).String()
}

// ParseNative parses a whole-coin decimal string ("12.5") into native units.
func ParseNative(text string) (*uint256.Int, error) {
	return parseScaled(text, NativeDecimals)
}

// ParseFixedPoint parses a whole-token decimal string into fixed-point units.
func ParseFixedPoint(text string) (*uint256.Int, error) {
	return parseScaled(text, FixedPointDecimals)
}

func parseScaled(text string, decimals int32) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must not be empty")
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", text)
	}
	scaled := value.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", text, decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}
