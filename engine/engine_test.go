package engine

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
	"xdao.co/ledgercore/pqc"
)

var (
	one = fixedpoint.One()
	two = fixedpoint.FromInteger(2)
)

func TestEveryCallAppendsExactlyOneEntry(t *testing.T) {
	e := New(WithClock(audit.NewStepClock(100, 1)))
	chain := audit.NewChain()

	calls := []func() error{
		func() error { _, err := e.Add(chain, one, two); return err },
		func() error { _, err := e.Sub(chain, two, one); return err },
		func() error { _, err := e.Mul(chain, two, two); return err },
		func() error { _, err := e.Div(chain, one, two); return err },
		func() error { _, err := e.Abs(chain, two); return err },
		func() error { _, err := e.AbsDiff(chain, one, two); return err },
		func() error { _, err := e.Compare(chain, one, two); return err },
		func() error { _, err := e.Sqrt(chain, two); return err },
		func() error { _, err := e.Ln(chain, two); return err },
		func() error { _, err := e.Exp(chain, one); return err },
		func() error { _, err := e.Pow(chain, two, two); return err },
		func() error { _, err := e.Atan(chain, fixedpoint.MustParse("0.5")); return err },
	}
	ops := []string{"add", "sub", "mul", "div", "abs", "abs_diff", "compare", "sqrt", "ln", "exp", "pow", "atan"}
	for i, call := range calls {
		if err := call(); err != nil {
			t.Fatalf("%s: %v", ops[i], err)
		}
		if chain.Len() != i+1 {
			t.Fatalf("%s: chain length %d, want %d", ops[i], chain.Len(), i+1)
		}
		entry, _ := chain.Entry(uint64(i))
		if entry.Operation != ops[i] || entry.Timestamp != uint64(100+i) {
			t.Fatalf("entry %d = %s@%d", i, entry.Operation, entry.Timestamp)
		}
	}
	if err := chain.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestResultsAreRecorded(t *testing.T) {
	e := New()
	chain := audit.NewChain()

	got, err := e.Mul(chain, fixedpoint.MustParse("1.5"), two)
	if err != nil {
		t.Fatalf("Mul: %v", err)
	}
	entry, _ := chain.Entry(0)
	if entry.Result != got || entry.Inputs["a"] != fixedpoint.MustParse("1.5") || entry.Inputs["b"] != two {
		t.Fatalf("entry = %+v", entry)
	}

	c, err := e.Compare(chain, two, one)
	if err != nil || c != 1 {
		t.Fatalf("Compare = %d, %v", c, err)
	}
	entry, _ = chain.Entry(1)
	if entry.Result != 1 {
		t.Fatalf("compare result = %v", entry.Result)
	}
}

func TestFailuresAreLoggedWithStructuredResult(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := New(WithLogger(zap.New(core)))
	chain := audit.NewChain()

	cases := []struct {
		op   string
		call func() error
		kind faults.Kind
	}{
		{"div", func() error { _, err := e.Div(chain, one, fixedpoint.Zero()); return err }, faults.KindDomain},
		{"sub", func() error { _, err := e.Sub(chain, one, two); return err }, faults.KindRange},
		{"add", func() error { _, err := e.Add(chain, fixedpoint.MaxValue(), one); return err }, faults.KindOverflow},
		{"ln", func() error { _, err := e.Ln(chain, fixedpoint.Zero()); return err }, faults.KindDomain},
		{"exp", func() error { _, err := e.Exp(chain, fixedpoint.FromInteger(48)); return err }, faults.KindOverflow},
		{"atan", func() error { _, err := e.Atan(chain, fixedpoint.MustParse("1.5")); return err }, faults.KindDomain},
	}
	for i, tc := range cases {
		err := tc.call()
		if !faults.IsKind(err, tc.kind) {
			t.Fatalf("%s: expected %s, got %v", tc.op, tc.kind, err)
		}
		entry, ok := chain.Entry(uint64(i))
		if !ok {
			t.Fatalf("%s: failure was not logged", tc.op)
		}
		res, _ := entry.Result.(map[string]any)
		detail, _ := res["error"].(map[string]any)
		if detail["kind"] != string(tc.kind) || detail["rule"] != faults.RuleID(err) {
			t.Fatalf("%s: result = %v", tc.op, entry.Result)
		}
	}
	if err := chain.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n := logs.FilterMessage("certified operation failed").Len(); n != len(cases) {
		t.Fatalf("debug lines = %d, want %d", n, len(cases))
	}
}

func TestLnOfOneIsZero(t *testing.T) {
	got, err := New().Ln(audit.NewChain(), one)
	if err != nil {
		t.Fatalf("Ln: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("ln(1) = %s", got)
	}
}

func TestAtanCoversWholeDomain(t *testing.T) {
	e := New()
	chain := audit.NewChain()
	for in, want := range map[string]string{
		"0.97": "0.770170914020331007",
		"1":    "0.785398163397448310",
	} {
		got, err := e.Atan(chain, fixedpoint.MustParse(in))
		if err != nil {
			t.Fatalf("Atan(%s): %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("Atan(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestPowTwoMatchesMul(t *testing.T) {
	e := New()
	chain := audit.NewChain()
	x := fixedpoint.MustParse("12345.678901234567890123")
	p, err := e.Pow(chain, x, two)
	if err != nil {
		t.Fatalf("Pow: %v", err)
	}
	m, err := e.Mul(chain, x, x)
	if err != nil {
		t.Fatalf("Mul: %v", err)
	}
	if p != m {
		t.Fatalf("pow(x,2) = %s, mul(x,x) = %s", p, m)
	}
}

func TestIdenticalSequencesProduceIdenticalChains(t *testing.T) {
	run := func() string {
		e := New(WithClock(audit.NewStepClock(1, 1)))
		chain := audit.NewChain()
		x := fixedpoint.MustParse("3.25")
		y, _ := e.Exp(chain, x, audit.Annotation{CorrelationID: "job-1"})
		z, _ := e.Ln(chain, y)
		_, _ = e.Div(chain, z, fixedpoint.Zero())
		_, _ = e.Sqrt(chain, z, audit.Annotation{Quantum: map[string]any{"note": "x"}})
		return chain.ChainHash()
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("chain hashes differ: %s vs %s", a, b)
	}
}

func TestNilChainIsRejected(t *testing.T) {
	if _, err := New().Add(nil, one, one); faults.RuleID(err) != "ENGINE-AUDIT-001" {
		t.Fatalf("expected missing-chain error, got %v", err)
	}
}

func TestSignedEntriesVerify(t *testing.T) {
	var signer pqc.Dilithium3
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(255 - i)
	}
	kp, err := signer.GenerateKeypair(seed)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	e := New(WithSigner(signer, kp))
	chain := audit.NewChain()

	if _, err := e.Add(chain, one, two, audit.Annotation{CorrelationID: "tx-9", Quantum: map[string]any{"shard": "s1"}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	entry, _ := chain.Entry(0)
	if entry.QuantumMetadata["shard"] != "s1" || entry.QuantumMetadata[MetaSeedHash] != kp.SeedHash {
		t.Fatalf("metadata = %v", entry.QuantumMetadata)
	}
	if !VerifySeal(signer, entry) {
		t.Fatalf("seal does not verify")
	}

	forged := entry
	forged.Result = fixedpoint.FromInteger(4)
	if VerifySeal(signer, forged) {
		t.Fatalf("seal verified a forged result")
	}

	// A seal moved to another chain position still verifies on its own;
	// the entry hash is what pins it to index, prev_hash and timestamp.
	moved := entry
	moved.Index, moved.PrevHash, moved.Timestamp = 1, entry.EntryHash, entry.Timestamp+1
	if !VerifySeal(signer, moved) {
		t.Fatalf("seal should not depend on chain position")
	}
	err = audit.VerifyEntries([]audit.Entry{entry, moved})
	if at, ok := audit.BrokenAt(err); !ok || at != 1 || faults.RuleID(err) != "AUDIT-CHAIN-003" {
		t.Fatalf("relocated seal not caught by entry hash: %v", err)
	}

	if err := kp.Zeroize(); err != nil {
		t.Fatalf("Zeroize: %v", err)
	}
	_, err = e.Add(chain, one, one)
	if !faults.IsKind(err, faults.KindSigning) {
		t.Fatalf("expected signing error after zeroize, got %v", err)
	}
	entry, _ = chain.Entry(1)
	if entry.QuantumMetadata[MetaError] != "PQC-SIGN-002" {
		t.Fatalf("failed seal not recorded: %v", entry.QuantumMetadata)
	}
	if VerifySeal(signer, entry) {
		t.Fatalf("unsigned entry must not verify")
	}
}
