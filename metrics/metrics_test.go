package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"xdao.co/ledgercore/faults"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.ObserveOperation("add", nil)
	r.ObserveOperation("add", nil)
	r.ObserveOperation("div", faults.New(faults.KindDomain, "ARITH-DIV-001", "division by zero"))
	r.ObserveAppend()
	r.ObserveRound("trimmed_mean", true)
	r.ObserveIncident(511)

	if got := testutil.ToFloat64(r.operations.WithLabelValues("add", "ok")); got != 2 {
		t.Fatalf("add ok = %v", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("div", "Domain")); got != 1 {
		t.Fatalf("div Domain = %v", got)
	}
	if got := testutil.ToFloat64(r.auditEntries); got != 1 {
		t.Fatalf("entries = %v", got)
	}
	if got := testutil.ToFloat64(r.rounds.WithLabelValues("trimmed_mean", "true")); got != 1 {
		t.Fatalf("rounds = %v", got)
	}
	if got := testutil.ToFloat64(r.incidents.WithLabelValues("511")); got != 1 {
		t.Fatalf("incidents = %v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveOperation("add", nil)
	r.ObserveAppend()
	r.ObserveRound("none", true)
	r.ObserveIncident(302)
}

func TestNewToleratesDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(reg); err != nil {
		t.Fatalf("second New: %v", err)
	}
}
