// Package fixedpoint implements the immutable decimal container used by every
// ledgercore computation.
//
// A Value is a non-negative magnitude scaled by 10^18 and bounded to
// 2^128-1 raw units. The package deliberately offers no arithmetic: all
// computation goes through the certified engine so that it is audited.
package fixedpoint

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"xdao.co/ledgercore/faults"
)

// Decimals is the number of fractional digits carried by every Value.
const Decimals = 18

var (
	scale = uint256.NewInt(1_000_000_000_000_000_000)

	// maxRaw is 2^128-1; uint256.Int limbs are little-endian.
	maxRaw = uint256.Int{^uint64(0), ^uint64(0), 0, 0}
)

// Value is an immutable fixed-point decimal. The zero value is Zero().
type Value struct {
	mag uint256.Int
}

// Zero returns the canonical zero.
func Zero() Value { return Value{} }

// One returns the canonical one (10^18 raw units).
func One() Value { return Value{mag: *scale} }

// MaxValue returns the largest representable Value.
func MaxValue() Value { return Value{mag: maxRaw} }

// Scale returns a copy of the 10^18 scaling factor.
func Scale() *uint256.Int { return scale.Clone() }

// MaxRaw returns a copy of the largest representable raw magnitude.
func MaxRaw() *uint256.Int { return maxRaw.Clone() }

// FromInteger returns n scaled by 10^18.
func FromInteger(n uint64) Value {
	var v Value
	// n < 2^64 and 10^18 < 2^60, so the product always fits the 128-bit bound.
	v.mag.Mul(uint256.NewInt(n), scale)
	return v
}

// FromBigInteger returns n scaled by 10^18. Negative or out-of-envelope
// integers are rejected with a Range error.
func FromBigInteger(n *big.Int) (Value, error) {
	if n == nil {
		return Value{}, faults.New(faults.KindParse, "FP-INT-001", "nil integer")
	}
	if n.Sign() < 0 {
		return Value{}, faults.New(faults.KindRange, "FP-RANGE-001", "negative values are not representable")
	}
	scaled := new(big.Int).Mul(n, scale.ToBig())
	return fromBig(scaled)
}

// FromRaw wraps a raw magnitude (already scaled by 10^18).
func FromRaw(raw *uint256.Int) (Value, error) {
	if raw == nil {
		return Value{}, faults.New(faults.KindParse, "FP-RAW-001", "nil raw magnitude")
	}
	if raw.Gt(&maxRaw) {
		return Value{}, faults.New(faults.KindRange, "FP-RANGE-002", "magnitude exceeds 128-bit envelope")
	}
	return Value{mag: *raw}, nil
}

func fromBig(raw *big.Int) (Value, error) {
	if raw.Sign() < 0 {
		return Value{}, faults.New(faults.KindRange, "FP-RANGE-001", "negative values are not representable")
	}
	var mag uint256.Int
	if overflow := mag.SetFromBig(raw); overflow || mag.Gt(&maxRaw) {
		return Value{}, faults.New(faults.KindRange, "FP-RANGE-002", "magnitude exceeds 128-bit envelope")
	}
	return Value{mag: mag}, nil
}

// FromDecimalString parses a plain decimal literal.
//
// ".5" reads as "0.5" and "5." as "5.0". Fractional digits past the 18th are
// accepted only when they are all zero; anything else would be silently
// truncated and is rejected with a Range error instead.
func FromDecimalString(s string) (Value, error) {
	if s == "" {
		return Value{}, faults.New(faults.KindParse, "FP-PARSE-001", "empty decimal string")
	}
	if s[0] == '-' {
		return Value{}, faults.New(faults.KindRange, "FP-RANGE-001", "negative values are not representable")
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot && intPart == "" && fracPart == "" {
		return Value{}, faults.New(faults.KindParse, "FP-PARSE-002", "decimal point without digits")
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return Value{}, faults.New(faults.KindParse, "FP-PARSE-003", "decimal string must contain only digits and one '.'")
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > Decimals {
		if strings.Trim(fracPart[Decimals:], "0") != "" {
			return Value{}, faults.New(faults.KindRange, "FP-RANGE-003", "more than 18 significant fractional digits")
		}
		fracPart = fracPart[:Decimals]
	}
	fracPart += strings.Repeat("0", Decimals-len(fracPart))

	digits := strings.TrimLeft(intPart+fracPart, "0")
	if digits == "" {
		return Value{}, nil
	}
	// 2^128 has 39 decimal digits; anything longer cannot fit.
	if len(digits) > 39 {
		return Value{}, faults.New(faults.KindRange, "FP-RANGE-002", "magnitude exceeds 128-bit envelope")
	}
	raw, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Value{}, faults.New(faults.KindParse, "FP-PARSE-003", "invalid decimal digits")
	}
	return fromBig(raw)
}

// MustParse is FromDecimalString for package-level constants and tests.
func MustParse(s string) Value {
	v, err := FromDecimalString(s)
	if err != nil {
		panic("fixedpoint: " + err.Error())
	}
	return v
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CanonicalString renders the value with exactly 18 fractional digits. The
// output never depends on locale and is the form used for hashing.
func (v Value) CanonicalString() string {
	var q, r uint256.Int
	q.DivMod(&v.mag, scale, &r)
	frac := r.ToBig().String()
	return q.ToBig().String() + "." + strings.Repeat("0", Decimals-len(frac)) + frac
}

func (v Value) String() string { return v.CanonicalString() }

// Raw returns a copy of the scaled magnitude.
func (v Value) Raw() *uint256.Int { return v.mag.Clone() }

// Compare returns -1, 0 or +1 comparing raw magnitudes.
func (v Value) Compare(o Value) int { return v.mag.Cmp(&o.mag) }

func (v Value) Equal(o Value) bool { return v.mag.Eq(&o.mag) }

func (v Value) Less(o Value) bool { return v.mag.Lt(&o.mag) }

func (v Value) IsZero() bool { return v.mag.IsZero() }

// IsInteger reports whether the value has no fractional part.
func (v Value) IsInteger() bool {
	var r uint256.Int
	r.Mod(&v.mag, scale)
	return r.IsZero()
}

// MarshalText encodes the canonical string.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.CanonicalString()), nil
}

// UnmarshalText decodes any literal accepted by FromDecimalString.
func (v *Value) UnmarshalText(b []byte) error {
	parsed, err := FromDecimalString(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
