package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindAndRuleIDSurviveWrapping(t *testing.T) {
	base := New(KindRange, "FP-RANGE-001", "negative value")
	wrapped := fmt.Errorf("parse amount: %w", base)

	if !IsKind(wrapped, KindRange) {
		t.Fatalf("expected Range kind through fmt wrapping")
	}
	if got := RuleID(wrapped); got != "FP-RANGE-001" {
		t.Fatalf("RuleID = %q", got)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors must not carry a kind")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, "AUDIT-SINK-001", "persist entry", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if Wrap(KindInternal, "X", "y", nil).(*Error).Cause != nil {
		t.Fatalf("nil cause must not be stored")
	}
}

func TestIsFatal(t *testing.T) {
	cases := map[Kind]bool{
		KindParse:          false,
		KindRange:          false,
		KindDomain:         false,
		KindOverflow:       false,
		KindConsensus:      false,
		KindSigning:        false,
		KindConvergence:    true,
		KindChainIntegrity: true,
	}
	for kind, want := range cases {
		if got := IsFatal(New(kind, "R", "m")); got != want {
			t.Fatalf("IsFatal(%s) = %v want %v", kind, got, want)
		}
	}
}
