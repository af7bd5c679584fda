// Package kernel holds the unaudited arithmetic primitives behind the
// certified engine. Operands and results are raw magnitudes scaled by 10^18
// and bounded by fixedpoint.MaxRaw. Nothing in this package logs.
package kernel

import (
	"github.com/holiman/uint256"

	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
)

const maxSqrtSteps = 256

var (
	unit  = fixedpoint.Scale()
	bound = fixedpoint.MaxRaw()
)

func overflow(rule, msg string) error { return faults.New(faults.KindOverflow, rule, msg) }

func inBound(z *uint256.Int) bool { return !z.Gt(bound) }

// Add returns a+b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, carry := new(uint256.Int).AddOverflow(a, b)
	if carry || !inBound(z) {
		return nil, overflow("ARITH-ADD-001", "sum exceeds the 128-bit envelope")
	}
	return z, nil
}

// Sub returns a-b. Values are non-negative, so b > a is a Range error.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, faults.New(faults.KindRange, "ARITH-SUB-001", "difference would be negative")
	}
	return new(uint256.Int).Sub(a, b), nil
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Sub(b, a)
	}
	return new(uint256.Int).Sub(a, b)
}

// Mul returns floor(a*b / 10^18).
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).MulDivOverflow(a, b, unit)
	if over || !inBound(z) {
		return nil, overflow("ARITH-MUL-001", "product exceeds the 128-bit envelope")
	}
	return z, nil
}

// Div returns floor(a*10^18 / b).
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, faults.New(faults.KindDomain, "ARITH-DIV-001", "division by zero")
	}
	z, over := new(uint256.Int).MulDivOverflow(a, unit, b)
	if over || !inBound(z) {
		return nil, overflow("ARITH-DIV-002", "quotient exceeds the 128-bit envelope")
	}
	return z, nil
}

// Sqrt returns floor(sqrt(a * 10^18)), the square root truncated to 18
// decimals.
func Sqrt(a *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() {
		return new(uint256.Int), nil
	}
	// a < 2^128 and 10^18 < 2^60, so the product fits in 256 bits.
	n := new(uint256.Int).Mul(a, unit)
	x := new(uint256.Int).Lsh(uint256.NewInt(1), uint((n.BitLen()+1)/2))
	for i := 0; i < maxSqrtSteps; i++ {
		y := new(uint256.Int).Div(n, x)
		y.Add(y, x)
		y.Rsh(y, 1)
		if !y.Lt(x) {
			return x, nil
		}
		x = y
	}
	return nil, faults.New(faults.KindConvergence, "ARITH-SQRT-001", "square root did not converge")
}
