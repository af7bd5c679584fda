// Package faults defines the structured error taxonomy shared by every
// ledgercore package.
//
// Callers branch on Kind and RuleID; Error() strings are for humans and may
// evolve between versions.
package faults

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	KindParse          Kind = "Parse"
	KindRange          Kind = "Range"
	KindDomain         Kind = "Domain"
	KindOverflow       Kind = "Overflow"
	KindConvergence    Kind = "Convergence"
	KindChainIntegrity Kind = "ChainIntegrity"
	KindConsensus      Kind = "Consensus"
	KindSigning        Kind = "Signing"
	KindInternal       Kind = "Internal"
)

// Error is the structured error type.
//
// RuleID names the violated invariant (e.g. FP-PARSE-002, ARITH-LN-001,
// AUDIT-CHAIN-003). Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New returns a structured error without a cause.
func New(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// Wrap returns a structured error carrying cause. A nil cause degrades to New.
func Wrap(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return New(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// IsFatal reports whether err can not be recovered at the call site and must
// be escalated to the incident handler.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConvergence, KindChainIntegrity:
		return true
	default:
		return false
	}
}
