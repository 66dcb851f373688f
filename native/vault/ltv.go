package vault

import (
	"math"

	"github.com/holiman/uint256"
)

var bpsDivisor = uint256.NewInt(BpsDivisor)

// MaxBorrowable is the largest fixed-point debt the collateral supports at
// ltvBps.
func MaxBorrowable(collateralNative *uint256.Int, ltvBps uint64) (*uint256.Int, error) {
	fixed, err := ToFixedPoint(collateralNative)
	if err != nil {
		return nil, err
	}
	scaled, overflow := new(uint256.Int).MulOverflow(fixed, uint256.NewInt(ltvBps))
	if overflow {
		return nil, ErrOverflow
	}
	return scaled.Div(scaled, bpsDivisor), nil
}

// AssertWithinLtv fails with ErrLtvExceeded when debt is above MaxBorrowable.
func AssertWithinLtv(debt, collateralNative *uint256.Int, ltvBps uint64) error {
	limit, err := MaxBorrowable(collateralNative, ltvBps)
	if err != nil {
		return err
	}
	if debt != nil && debt.Gt(limit) {
		return ErrLtvExceeded
	}
	return nil
}

// CollateralFloor is the fixed-point collateral that must remain locked to
// back debt at ltvBps. The division rounds up so that withdrawing down to the
// floor never leaves the position above the ceiling.
func CollateralFloor(debt *uint256.Int, ltvBps uint64) (*uint256.Int, error) {
	if debt == nil || debt.IsZero() {
		return new(uint256.Int), nil
	}
	if ltvBps == 0 {
		return nil, ErrLtvExceeded
	}
	scaled, overflow := new(uint256.Int).MulOverflow(debt, bpsDivisor)
	if overflow {
		return nil, ErrOverflow
	}
	divisor := uint256.NewInt(ltvBps)
	floor, rem := new(uint256.Int).DivMod(scaled, divisor, new(uint256.Int))
	if !rem.IsZero() {
		floor.AddUint64(floor, 1)
	}
	return floor, nil
}

// MaxWithdrawable returns the native collateral that can leave the position
// while keeping debt within the ceiling. It is all collateral when there is no
// debt and zero when the collateral is at or below the floor.
func MaxWithdrawable(collateralNative, debt *uint256.Int, ltvBps uint64) (*uint256.Int, error) {
	if collateralNative == nil || collateralNative.IsZero() {
		return new(uint256.Int), nil
	}
	if debt == nil || debt.IsZero() {
		return new(uint256.Int).Set(collateralNative), nil
	}
	fixed, err := ToFixedPoint(collateralNative)
	if err != nil {
		return nil, err
	}
	floor, err := CollateralFloor(debt, ltvBps)
	if err != nil {
		return nil, err
	}
	if !fixed.Gt(floor) {
		return new(uint256.Int), nil
	}
	return ToNative(new(uint256.Int).Sub(fixed, floor)), nil
}

// LtvBps is debt / collateral in basis points, zero without collateral.
func LtvBps(debt, collateralFixed *uint256.Int) uint64 {
	if collateralFixed == nil || collateralFixed.IsZero() || debt == nil || debt.IsZero() {
		return 0
	}
	scaled, overflow := new(uint256.Int).MulOverflow(debt, bpsDivisor)
	if overflow {
		return math.MaxUint64
	}
	return saturateUint64(scaled.Div(scaled, collateralFixed))
}

// HealthFactorBps is the maximum allowed debt over the actual debt in basis
// points. A position without debt reports math.MaxUint64.
func HealthFactorBps(debt, collateralFixed *uint256.Int, ltvBps uint64) uint64 {
	if debt == nil || debt.IsZero() {
		return math.MaxUint64
	}
	if collateralFixed == nil || collateralFixed.IsZero() {
		return 0
	}
	allowed, overflow := new(uint256.Int).MulOverflow(collateralFixed, uint256.NewInt(ltvBps))
	if overflow {
		return math.MaxUint64
	}
	allowed.Div(allowed, bpsDivisor)
	scaled, overflow := new(uint256.Int).MulOverflow(allowed, bpsDivisor)
	if overflow {
		return math.MaxUint64
	}
	return saturateUint64(scaled.Div(scaled, debt))
}

func saturateUint64(v *uint256.Int) uint64 {
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}
