// Package fixedpoint implements deterministic fixed-point arithmetic at the
// canonical 1e18 scale used for every asset/share conversion in the vault.
// Products are computed at 512-bit width before the division step so the
// intermediate value can never overflow, and both operations truncate toward
// zero. Truncation is deliberate: the vault rounds in its own favour by at
// most one unit per operation and therefore never over-issues shares
// relative to deposited reserve.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Decimals is the precision of the canonical fixed-point scale.
const Decimals = 18

// Scale returns the canonical fixed-point scale (10^18) as a fresh big
// integer so callers cannot mutate shared state.
func Scale() *big.Int {
	return new(big.Int).Set(scale)
}

var (
	scale     = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	scaleWord = uint256.MustFromBig(scale)
)

var (
	// ErrDivisionByZero indicates a zero divisor reached the arithmetic
	// layer. A correctly validated oracle rate can never trigger this, so it
	// is treated as a fatal invariant violation by callers.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrValueRange indicates an operand or result fell outside the unsigned
	// 256-bit range the arithmetic operates on.
	ErrValueRange = errors.New("fixedpoint: value outside unsigned 256-bit range")
)

// Mul returns a*b/Scale truncated toward zero.
func Mul(a, b *big.Int) (*big.Int, error) {
	x, err := word(a)
	if err != nil {
		return nil, err
	}
	y, err := word(b)
	if err != nil {
		return nil, err
	}
	result, overflow := new(uint256.Int).MulDivOverflow(x, y, scaleWord)
	if overflow {
		return nil, ErrValueRange
	}
	return result.ToBig(), nil
}

// Div returns a*Scale/b truncated toward zero.
func Div(a, b *big.Int) (*big.Int, error) {
	x, err := word(a)
	if err != nil {
		return nil, err
	}
	y, err := word(b)
	if err != nil {
		return nil, err
	}
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	result, overflow := new(uint256.Int).MulDivOverflow(x, scaleWord, y)
	if overflow {
		return nil, ErrValueRange
	}
	return result.ToBig(), nil
}

func word(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	converted, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, ErrValueRange
	}
	return converted, nil
}
