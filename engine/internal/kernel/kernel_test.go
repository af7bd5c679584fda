package kernel

import (
	"testing"

	"github.com/holiman/uint256"

	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
)

func raw(s string) *uint256.Int { return fixedpoint.MustParse(s).Raw() }

func str(z *uint256.Int) string {
	v, err := fixedpoint.FromRaw(z)
	if err != nil {
		panic(err)
	}
	return v.CanonicalString()
}

func TestPrimitives(t *testing.T) {
	cases := []struct {
		name string
		fn   func(a, b *uint256.Int) (*uint256.Int, error)
		a, b string
		want string
	}{
		{"add", Add, "1.25", "2.75", "4.000000000000000000"},
		{"sub", Sub, "5", "0.000000000000000001", "4.999999999999999999"},
		{"mul", Mul, "1.5", "2", "3.000000000000000000"},
		{"mul-floor", Mul, "0.000000000000000001", "0.5", "0.000000000000000000"},
		{"div", Div, "1", "3", "0.333333333333333333"},
		{"div-exact", Div, "10", "4", "2.500000000000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(raw(tc.a), raw(tc.b))
			if err != nil {
				t.Fatalf("%s(%s, %s): %v", tc.name, tc.a, tc.b, err)
			}
			if str(got) != tc.want {
				t.Fatalf("%s(%s, %s) = %s, want %s", tc.name, tc.a, tc.b, str(got), tc.want)
			}
		})
	}
}

func TestPrimitiveErrors(t *testing.T) {
	top := fixedpoint.MaxRaw()
	tiny := uint256.NewInt(1)

	if _, err := Add(top, tiny); !faults.IsKind(err, faults.KindOverflow) {
		t.Fatalf("add overflow: %v", err)
	}
	if _, err := Mul(top, raw("2")); !faults.IsKind(err, faults.KindOverflow) {
		t.Fatalf("mul overflow: %v", err)
	}
	if _, err := Div(top, raw("0.5")); !faults.IsKind(err, faults.KindOverflow) {
		t.Fatalf("div overflow: %v", err)
	}
	if _, err := Sub(raw("1"), raw("2")); !faults.IsKind(err, faults.KindRange) {
		t.Fatalf("sub underflow: %v", err)
	}
	if _, err := Div(raw("1"), new(uint256.Int)); !faults.IsKind(err, faults.KindDomain) {
		t.Fatalf("div by zero: %v", err)
	}
}

func TestAbsDiffIsSymmetric(t *testing.T) {
	a, b := raw("3.5"), raw("10")
	if !AbsDiff(a, b).Eq(AbsDiff(b, a)) || str(AbsDiff(a, b)) != "6.500000000000000000" {
		t.Fatalf("AbsDiff = %s", str(AbsDiff(a, b)))
	}
}

func TestSqrt(t *testing.T) {
	for in, want := range map[string]string{
		"0":    "0.000000000000000000",
		"4":    "2.000000000000000000",
		"2":    "1.414213562373095048",
		"0.25": "0.500000000000000000",
	} {
		got, err := Sqrt(raw(in))
		if err != nil {
			t.Fatalf("Sqrt(%s): %v", in, err)
		}
		if str(got) != want {
			t.Fatalf("Sqrt(%s) = %s, want %s", in, str(got), want)
		}
	}
	if _, err := Sqrt(fixedpoint.MaxRaw()); err != nil {
		t.Fatalf("Sqrt(max): %v", err)
	}
}

func TestTranscendentalValues(t *testing.T) {
	cases := []struct {
		name string
		got  func() (*uint256.Int, error)
		want string
	}{
		{"ln(1)", func() (*uint256.Int, error) { return Ln(raw("1")) }, "0.000000000000000000"},
		{"ln(2)", func() (*uint256.Int, error) { return Ln(raw("2")) }, "0.693147180559945309"},
		{"ln(10)", func() (*uint256.Int, error) { return Ln(raw("10")) }, "2.302585092994045684"},
		{"ln(e)", func() (*uint256.Int, error) { return Ln(raw("2.718281828459045235")) }, "1.000000000000000000"},
		{"exp(0)", func() (*uint256.Int, error) { return Exp(raw("0")) }, "1.000000000000000000"},
		{"exp(1)", func() (*uint256.Int, error) { return Exp(raw("1")) }, "2.718281828459045235"},
		{"exp(0.5)", func() (*uint256.Int, error) { return Exp(raw("0.5")) }, "1.648721270700128147"},
		{"exp(47)", func() (*uint256.Int, error) { return Exp(raw("47")) }, "258131288619006739623.285800215273380432"},
		{"atan(0)", func() (*uint256.Int, error) { return Atan(raw("0")) }, "0.000000000000000000"},
		{"atan(0.5)", func() (*uint256.Int, error) { return Atan(raw("0.5")) }, "0.463647609000806116"},
		{"atan(0.96)", func() (*uint256.Int, error) { return Atan(raw("0.96")) }, "0.764992832710910223"},
		{"atan(0.97)", func() (*uint256.Int, error) { return Atan(raw("0.97")) }, "0.770170914020331007"},
		{"atan(1)", func() (*uint256.Int, error) { return Atan(raw("1")) }, "0.785398163397448310"},
		{"pow(2,10)", func() (*uint256.Int, error) { return Pow(raw("2"), raw("10")) }, "1024.000000000000000000"},
		{"pow(2,0.5)", func() (*uint256.Int, error) { return Pow(raw("2"), raw("0.5")) }, "1.414213562373095049"},
		{"pow(1.5,2.5)", func() (*uint256.Int, error) { return Pow(raw("1.5"), raw("2.5")) }, "2.755675960631075360"},
		{"pow(0,3)", func() (*uint256.Int, error) { return Pow(raw("0"), raw("3")) }, "0.000000000000000000"},
		{"pow(7,0)", func() (*uint256.Int, error) { return Pow(raw("7"), raw("0")) }, "1.000000000000000000"},
	}
	for _, tc := range cases {
		got, err := tc.got()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if str(got) != tc.want {
			t.Fatalf("%s = %s, want %s", tc.name, str(got), tc.want)
		}
	}
}

func TestLnOfExpRoundTripsWithinOneUnit(t *testing.T) {
	one := uint256.NewInt(1)
	for _, in := range []string{"0.5", "1", "3.141592653589793238", "10.25", "46.9"} {
		e, err := Exp(raw(in))
		if err != nil {
			t.Fatalf("Exp(%s): %v", in, err)
		}
		l, err := Ln(e)
		if err != nil {
			t.Fatalf("Ln(Exp(%s)): %v", in, err)
		}
		if AbsDiff(l, raw(in)).Gt(one) {
			t.Fatalf("Ln(Exp(%s)) = %s", in, str(l))
		}
	}
}

func TestPowSquareMatchesMul(t *testing.T) {
	for _, in := range []string{"0.000000001", "1.000000000000000001", "3.3", "123456.789", "18446744073.709551615"} {
		p, err := Pow(raw(in), raw("2"))
		if err != nil {
			t.Fatalf("Pow(%s, 2): %v", in, err)
		}
		m, err := Mul(raw(in), raw(in))
		if err != nil {
			t.Fatalf("Mul(%s, %s): %v", in, in, err)
		}
		if !p.Eq(m) {
			t.Fatalf("Pow(%s, 2) = %s, Mul = %s", in, str(p), str(m))
		}
	}
}

func TestTranscendentalErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind faults.Kind
	}{
		{"ln(0)", second(Ln(raw("0"))), faults.KindDomain},
		{"ln(0.5)", second(Ln(raw("0.5"))), faults.KindRange},
		{"exp(47.000000000000000001)", second(Exp(raw("47.000000000000000001"))), faults.KindOverflow},
		{"pow(10,39)", second(Pow(raw("10"), raw("39"))), faults.KindOverflow},
		{"pow(10,38.5)", second(Pow(raw("10"), raw("38.5"))), faults.KindOverflow},
		{"atan(1.5)", second(Atan(raw("1.5"))), faults.KindDomain},
		{"atan(0.5) with one term", second(atanBounded(raw("0.5"), 1)), faults.KindConvergence},
	}
	for _, tc := range cases {
		if !faults.IsKind(tc.err, tc.kind) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, tc.err)
		}
	}
	if !faults.IsFatal(second(atanBounded(raw("1"), 8))) {
		t.Fatalf("non-convergence must be fatal")
	}
}

func second(_ *uint256.Int, err error) error { return err }

func TestSmallPowerUnderflowsToZero(t *testing.T) {
	got, err := Pow(raw("0.001"), raw("20.5"))
	if err != nil {
		t.Fatalf("Pow: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("Pow(0.001, 20.5) = %s", str(got))
	}
}
