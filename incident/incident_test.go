package incident

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
	"xdao.co/ledgercore/metrics"
	"xdao.co/ledgercore/pqc"
)

func seededChain(t *testing.T) *audit.Chain {
	t.Helper()
	c := audit.NewChain()
	_, err := c.Append("add", map[string]any{"a": fixedpoint.One(), "b": fixedpoint.One()}, fixedpoint.FromInteger(2), nil, nil, 7)
	require.NoError(t, err)
	return c
}

type exitRecorder struct{ codes []int }

func (r *exitRecorder) exit(code int) { r.codes = append(r.codes, code) }

func TestExitCodes(t *testing.T) {
	require.Equal(t, 302, ClassValidation.ExitCode())
	require.Equal(t, 412, ClassTamper.ExitCode())
	require.Equal(t, 511, ClassConsensus.ExitCode())
	require.Equal(t, 599, Class("unknown").ExitCode())
}

func TestClassFor(t *testing.T) {
	cases := map[faults.Kind]Class{
		faults.KindChainIntegrity: ClassTamper,
		faults.KindConsensus:      ClassConsensus,
		faults.KindOverflow:       ClassValidation,
		faults.KindParse:          ClassValidation,
		faults.KindConvergence:    ClassValidation,
	}
	for kind, want := range cases {
		require.Equal(t, want, ClassFor(faults.New(kind, "X-1", "x")), kind)
	}
}

func TestTriggerHaltsAndRecords(t *testing.T) {
	chain := seededChain(t)
	before := chain.ChainHash()
	rec := &exitRecorder{}
	core, logs := observer.New(zap.ErrorLevel)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	h := New(chain, WithExit(rec.exit), WithClock(audit.FixedClock(99)), WithLogger(zap.New(core)), WithMetrics(m))
	require.Equal(t, StateNormal, h.State())

	got := h.Trigger(ClassTamper, "chain hash mismatch", map[string]any{"index": uint64(0)})
	require.Equal(t, StateHalted, h.State())
	require.Equal(t, []int{ExitTamper}, rec.codes)
	require.Equal(t, ExitTamper, got.ExitCode)
	require.Equal(t, before, got.ChainHash)
	require.Empty(t, got.Signature)

	want, err := Seal("chain hash mismatch", map[string]any{"index": uint64(0)}, before, "")
	require.NoError(t, err)
	require.Equal(t, want, got.FinalitySeal)

	require.Equal(t, 2, chain.Len())
	last, ok := chain.Entry(1)
	require.True(t, ok)
	require.Equal(t, "incident.tamper", last.Operation)
	require.Equal(t, uint64(99), last.Timestamp)
	require.NoError(t, chain.Verify())

	require.Equal(t, 1, logs.FilterMessage("incident halt").Len())
	n, err := testutil.GatherAndCount(reg, "ledgercore_incident_triggered_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHaltedIsTerminal(t *testing.T) {
	chain := seededChain(t)
	rec := &exitRecorder{}
	h := New(chain, WithExit(rec.exit))

	first := h.Trigger(ClassConsensus, "no agreement", nil)
	second := h.Trigger(ClassValidation, "later", nil)

	require.Equal(t, first, second)
	require.Equal(t, []int{ExitConsensus, ExitConsensus}, rec.codes)
	require.Equal(t, 2, chain.Len())
	require.Equal(t, StateHalted, h.State())
}

func TestSealIsDeterministic(t *testing.T) {
	var seals []string
	for i := 0; i < 2; i++ {
		h := New(seededChain(t), WithExit(func(int) {}))
		seals = append(seals, h.Trigger(ClassValidation, "bad input", map[string]any{"rule": "ARITH-LN-001"}).FinalitySeal)
	}
	require.Equal(t, seals[0], seals[1])
	require.Len(t, seals[0], 64)

	other, err := Seal("bad input", map[string]any{"rule": "ARITH-LN-002"}, seededChain(t).ChainHash(), "")
	require.NoError(t, err)
	require.NotEqual(t, seals[0], other)
}

func TestTriggerForAddsErrorEvidence(t *testing.T) {
	chain := seededChain(t)
	rec := &exitRecorder{}
	h := New(chain, WithExit(rec.exit))

	err := faults.New(faults.KindConsensus, "PSI-CONSENSUS-001", "agreement below threshold")
	got := h.TriggerFor(err, map[string]any{"round": "r-1"})

	require.Equal(t, ClassConsensus, got.Class)
	require.Equal(t, []int{ExitConsensus}, rec.codes)
	require.Equal(t, "PSI-CONSENSUS-001", got.Evidence["error_rule"])
	require.Equal(t, string(faults.KindConsensus), got.Evidence["error_kind"])
	require.Equal(t, "r-1", got.Evidence["round"])
}

func TestUnrecordableIncidentFallsBack(t *testing.T) {
	rec := &exitRecorder{}
	h := New(seededChain(t), WithExit(rec.exit))

	got := h.Trigger(ClassValidation, "float evidence", map[string]any{"x": 1.5})
	require.Equal(t, ExitFallback, got.ExitCode)
	require.Equal(t, []int{ExitFallback}, rec.codes)
	require.Equal(t, StateHalted, h.State())

	rec = &exitRecorder{}
	got = New(nil, WithExit(rec.exit)).Trigger(ClassTamper, "no chain", nil)
	require.Equal(t, ExitFallback, got.ExitCode)
}

func TestSignedIncident(t *testing.T) {
	signer := pqc.Dilithium3{}
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i*7 + 1)
	}
	kp, err := signer.GenerateKeypair(seed)
	require.NoError(t, err)

	rec := &exitRecorder{}
	h := New(seededChain(t), WithExit(rec.exit), WithSigner(signer, kp))
	got := h.Trigger(ClassTamper, "replay mismatch", map[string]any{"index": uint64(3)})

	require.NotEmpty(t, got.Signature)
	require.True(t, VerifySignature(signer, kp.Public, got))

	forged := got
	forged.Reason = "something else"
	require.False(t, VerifySignature(signer, kp.Public, forged))

	unsigned, err := Seal(got.Reason, got.Evidence, got.ChainHash, "")
	require.NoError(t, err)
	require.NotEqual(t, unsigned, got.FinalitySeal)
}
