package lpstake

import (
	"math"

	"github.com/holiman/uint256"
)

// Rounding selects how MulDiv resolves a non-zero remainder.
type Rounding uint8

const (
	RoundDown Rounding = iota
	RoundUp
)

const (
	// RewardScale is the fixed-point scale of accRewardPerShare.
	RewardScale uint64 = 1_000_000_000_000
	// BasisPoints is the denominator for decay factors.
	BasisPoints uint64 = 10_000
)

var rewardScale = uint256.NewInt(RewardScale)

// MulDiv returns a*b/d computed at 256-bit precision. The product is checked
// for overflow and d must be non-zero.
func MulDiv(a, b, d *uint256.Int, rounding Rounding) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrArithmeticOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	quo, rem := new(uint256.Int).DivMod(product, d, new(uint256.Int))
	if rounding == RoundUp && !rem.IsZero() {
		if _, overflow := quo.AddOverflow(quo, uint256.NewInt(1)); overflow {
			return nil, ErrArithmeticOverflow
		}
	}
	return quo, nil
}

// MulDiv64 is MulDiv over u64 operands whose result must fit in a u64.
func MulDiv64(a, b, d uint64, rounding Rounding) (uint64, error) {
	out, err := MulDiv(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d), rounding)
	if err != nil {
		return 0, err
	}
	return toU64(out)
}

func toU64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return v.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrArithmeticOverflow
	}
	return a * b, nil
}

func addU256(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

func subU256(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrArithmeticOverflow
	}
	return diff, nil
}

func cloneU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
