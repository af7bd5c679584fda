package consensus

import (
	"github.com/holiman/uint256"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/engine"
	"xdao.co/ledgercore/fixedpoint"
)

// calc routes round statistics through the certified engine so each
// intermediate value lands in the round's audit trail.
type calc struct {
	eng   *engine.Engine
	chain *audit.Chain
	ann   audit.Annotation
}

var two = fixedpoint.FromInteger(2)

// median of an ascending slice. Even lengths use lo + (hi-lo)/2, which
// cannot overflow.
func (c calc) median(sorted []fixedpoint.Value) (fixedpoint.Value, error) {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	lo, hi := sorted[n/2-1], sorted[n/2]
	d, err := c.eng.Sub(c.chain, hi, lo, c.ann)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	half, err := c.eng.Div(c.chain, d, two, c.ann)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return c.eng.Add(c.chain, lo, half, c.ann)
}

// quartiles returns Tukey's hinges: the medians of the lower and upper
// halves, each half including the overall median when n is odd.
func (c calc) quartiles(sorted []fixedpoint.Value) (q1, q3 fixedpoint.Value, err error) {
	n := len(sorted)
	if q1, err = c.median(sorted[:(n+1)/2]); err != nil {
		return
	}
	q3, err = c.median(sorted[n/2:])
	return
}

// fence returns the inclusive band [q1 - m*iqr, q3 + m*iqr], clamped to the
// representable range.
func (c calc) fence(q1, q3, multiplier fixedpoint.Value) (low, high, iqr fixedpoint.Value, err error) {
	if iqr, err = c.eng.Sub(c.chain, q3, q1, c.ann); err != nil {
		return
	}
	reach, err := c.eng.Mul(c.chain, iqr, multiplier, c.ann)
	if err != nil {
		return
	}
	low = fixedpoint.Zero()
	if !q1.Less(reach) {
		if low, err = c.eng.Sub(c.chain, q1, reach, c.ann); err != nil {
			return
		}
	}
	high = fixedpoint.MaxValue()
	headroom, err := c.eng.Sub(c.chain, high, q3, c.ann)
	if err != nil {
		return
	}
	if !headroom.Less(reach) {
		high, err = c.eng.Add(c.chain, q3, reach, c.ann)
	}
	return
}

func (c calc) mean(values []fixedpoint.Value) (fixedpoint.Value, error) {
	sum := fixedpoint.Zero()
	for _, v := range values {
		var err error
		if sum, err = c.eng.Add(c.chain, sum, v, c.ann); err != nil {
			return fixedpoint.Value{}, err
		}
	}
	return c.eng.Div(c.chain, sum, fixedpoint.FromInteger(uint64(len(values))), c.ann)
}

// trimCount is floor(n * fraction), capped so at least one value remains.
func (c calc) trimCount(n int, fraction fixedpoint.Value) (int, error) {
	p, err := c.eng.Mul(c.chain, fixedpoint.FromInteger(uint64(n)), fraction, c.ann)
	if err != nil {
		return 0, err
	}
	k := int(new(uint256.Int).Div(p.Raw(), fixedpoint.Scale()).Uint64())
	if 2*k >= n {
		k = (n - 1) / 2
	}
	return k, nil
}

func (c calc) ratio(num, den int) (fixedpoint.Value, error) {
	if den == 0 {
		return fixedpoint.Zero(), nil
	}
	return c.eng.Div(c.chain, fixedpoint.FromInteger(uint64(num)), fixedpoint.FromInteger(uint64(den)), c.ann)
}
