package kernel

import (
	"math/big"

	"github.com/holiman/uint256"

	"xdao.co/ledgercore/faults"
)

// Series work in signed integers scaled by 10^45. The 27 guard digits keep
// results within one unit of the 18th decimal across the whole envelope.
const (
	MaxLnIterations   = 512
	MaxExpIterations  = 256
	MaxAtanIterations = 1024
	maxReduceSteps    = 256

	// MaxExpInput bounds the argument of Exp; e^48 does not fit the
	// envelope.
	MaxExpInput = 47
)

var (
	wide      = pow10(45)
	guard     = pow10(27)
	halfGuard = new(big.Int).Quo(guard, big.NewInt(2))
	halfWide  = new(big.Int).Quo(wide, big.NewInt(2))

	ln2W      = mustBig("693147180559945309417232121458176568075500134")
	sqrt2W    = mustBig("1414213562373095048801688724209698078569671875")
	invSqrt2W = mustBig("707106781186547524400844362104849039284835938")

	maxExpW = new(big.Int).Mul(big.NewInt(MaxExpInput), wide)
)

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("kernel: bad constant " + s)
	}
	return v
}

func toWide(raw *uint256.Int) *big.Int {
	return new(big.Int).Mul(raw.ToBig(), guard)
}

// fromWide rounds half up to 18 decimals.
func fromWide(v *big.Int, rule string) (*uint256.Int, error) {
	if v.Sign() < 0 {
		return nil, faults.New(faults.KindRange, rule, "result is negative")
	}
	r := new(big.Int).Add(v, halfGuard)
	r.Quo(r, guard)
	z, over := uint256.FromBig(r)
	if over || !inBound(z) {
		return nil, overflow(rule, "result exceeds the 128-bit envelope")
	}
	return z, nil
}

// lnWide returns ln(x) for x > 0, both scaled by 10^45.
func lnWide(x *big.Int) (*big.Int, error) {
	// x = m * 2^k with m in [1/sqrt2, sqrt2).
	m := new(big.Int).Set(x)
	k := int64(0)
	for steps := 0; m.Cmp(sqrt2W) >= 0 || m.Cmp(invSqrt2W) < 0; steps++ {
		if steps == maxReduceSteps {
			return nil, faults.New(faults.KindConvergence, "ARITH-LN-003", "ln range reduction did not settle")
		}
		if m.Cmp(sqrt2W) >= 0 {
			m.Rsh(m, 1)
			k++
		} else {
			m.Lsh(m, 1)
			k--
		}
	}

	// ln(1+u) = u - u^2/2 + u^3/3 - ...
	u := new(big.Int).Sub(m, wide)
	power := new(big.Int).Set(u)
	sum := new(big.Int)
	term := new(big.Int)
	converged := false
	for n := int64(1); n <= MaxLnIterations; n++ {
		term.Quo(power, big.NewInt(n))
		if term.Sign() == 0 {
			converged = true
			break
		}
		if n%2 == 1 {
			sum.Add(sum, term)
		} else {
			sum.Sub(sum, term)
		}
		power.Mul(power, u)
		power.Quo(power, wide)
	}
	if !converged {
		return nil, faults.New(faults.KindConvergence, "ARITH-LN-002", "ln series did not converge")
	}
	return sum.Add(sum, new(big.Int).Mul(big.NewInt(k), ln2W)), nil
}

// expWide returns e^y scaled by 10^45 for a signed y scaled by 10^45.
func expWide(y *big.Int) (*big.Int, error) {
	if y.Sign() < 0 {
		neg := new(big.Int).Neg(y)
		if neg.Cmp(maxExpW) > 0 {
			// e^-47 is far below one unit of the 18th decimal.
			return new(big.Int), nil
		}
		e, err := expWide(neg)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Quo(new(big.Int).Mul(wide, wide), e), nil
	}
	if y.Cmp(maxExpW) > 0 {
		return nil, overflow("ARITH-EXP-001", "exponent exceeds the representable range")
	}

	// y = k*ln2 + r with r in [0, ln2).
	k, r := new(big.Int).QuoRem(y, ln2W, new(big.Int))

	sum := new(big.Int).Set(wide)
	term := new(big.Int).Set(wide)
	converged := false
	for n := int64(1); n <= MaxExpIterations; n++ {
		term.Mul(term, r)
		term.Quo(term, new(big.Int).Mul(big.NewInt(n), wide))
		if term.Sign() == 0 {
			converged = true
			break
		}
		sum.Add(sum, term)
	}
	if !converged {
		return nil, faults.New(faults.KindConvergence, "ARITH-EXP-002", "exp series did not converge")
	}
	return sum.Lsh(sum, uint(k.Uint64())), nil
}

// Ln returns the natural logarithm of x. x must be positive; x < 1 has a
// negative logarithm, which is outside the unsigned envelope.
func Ln(x *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() {
		return nil, faults.New(faults.KindDomain, "ARITH-LN-001", "ln is undefined at zero")
	}
	if x.Lt(unit) {
		return nil, faults.New(faults.KindRange, "ARITH-LN-004", "ln of a value below one is negative")
	}
	l, err := lnWide(toWide(x))
	if err != nil {
		return nil, err
	}
	return fromWide(l, "ARITH-LN-004")
}

// Exp returns e^x.
func Exp(x *uint256.Int) (*uint256.Int, error) {
	y := toWide(x)
	if y.Cmp(maxExpW) > 0 {
		return nil, overflow("ARITH-EXP-001", "exponent exceeds the representable range")
	}
	e, err := expWide(y)
	if err != nil {
		return nil, err
	}
	return fromWide(e, "ARITH-EXP-001")
}

// Pow returns base^exp. Integer exponents use repeated squaring over Mul so
// Pow(x, 2) equals Mul(x, x) exactly; other exponents use exp(exp*ln(base)).
// base^0 is one, including 0^0; 0^y is zero for y > 0.
func Pow(base, exp *uint256.Int) (*uint256.Int, error) {
	if exp.IsZero() {
		return unit.Clone(), nil
	}
	if base.IsZero() {
		return new(uint256.Int), nil
	}
	q, rem := new(uint256.Int).DivMod(exp, unit, new(uint256.Int))
	if rem.IsZero() {
		return powInt(base, q)
	}

	l, err := lnWide(toWide(base))
	if err != nil {
		return nil, err
	}
	y := new(big.Int).Mul(toWide(exp), l)
	y.Quo(y, wide)
	e, err := expWide(y)
	if err != nil {
		if faults.IsKind(err, faults.KindOverflow) {
			return nil, overflow("ARITH-POW-001", "power exceeds the 128-bit envelope")
		}
		return nil, err
	}
	return fromWide(e, "ARITH-POW-001")
}

func powInt(base, n *uint256.Int) (*uint256.Int, error) {
	result := unit.Clone()
	b := base.Clone()
	n = n.Clone()
	for !n.IsZero() {
		if n.Uint64()&1 == 1 {
			r, err := Mul(result, b)
			if err != nil {
				return nil, overflow("ARITH-POW-001", "power exceeds the 128-bit envelope")
			}
			result = r
		}
		n.Rsh(n, 1)
		if !n.IsZero() {
			sq, err := Mul(b, b)
			if err != nil {
				return nil, overflow("ARITH-POW-001", "power exceeds the 128-bit envelope")
			}
			b = sq
		}
	}
	return result, nil
}

// Atan returns the arctangent of x for x in [0, 1]. Arguments above 1/2 are
// halved first with atan(x) = 2·atan(x / (1 + sqrt(1 + x²))), which keeps
// x² below 0.18 so the series settles well inside MaxAtanIterations.
func Atan(x *uint256.Int) (*uint256.Int, error) {
	return atanBounded(x, MaxAtanIterations)
}

func atanBounded(x *uint256.Int, limit int64) (*uint256.Int, error) {
	if x.Gt(unit) {
		return nil, faults.New(faults.KindDomain, "ARITH-ATAN-001", "atan is only certified on [0, 1]")
	}
	xw := toWide(x)
	doublings := uint(0)
	if xw.Cmp(halfWide) > 0 {
		xw = halveAngle(xw)
		doublings = 1
	}
	sum, err := atanSeries(xw, limit)
	if err != nil {
		return nil, err
	}
	return fromWide(sum.Lsh(sum, doublings), "ARITH-ATAN-001")
}

// halveAngle maps x to tan(atan(x)/2) at working scale.
func halveAngle(xw *big.Int) *big.Int {
	r := new(big.Int).Mul(xw, xw)
	r.Add(r, new(big.Int).Mul(wide, wide))
	r.Sqrt(r)
	r.Add(r, wide)
	y := new(big.Int).Mul(xw, wide)
	return y.Quo(y, r)
}

func atanSeries(xw *big.Int, limit int64) (*big.Int, error) {
	x2 := new(big.Int).Mul(xw, xw)
	x2.Quo(x2, wide)

	power := new(big.Int).Set(xw)
	sum := new(big.Int)
	term := new(big.Int)
	for n := int64(0); n < limit; n++ {
		term.Quo(power, big.NewInt(2*n+1))
		if term.Sign() == 0 {
			return sum, nil
		}
		if n%2 == 0 {
			sum.Add(sum, term)
		} else {
			sum.Sub(sum, term)
		}
		power.Mul(power, x2)
		power.Quo(power, wide)
	}
	return nil, faults.New(faults.KindConvergence, "ARITH-ATAN-002", "atan series did not converge within the iteration bound")
}
