// Package incident implements the CIR fatal-halt handlers.
//
// A Handler moves NORMAL -> LOGGING -> HALTED exactly once. Triggering it
// seals the reason, the evidence and the current chain hash, appends one
// audit entry carrying the seal and the class exit code, and terminates the
// process with that code. There is no way back to NORMAL.
package incident

import (
	"encoding/hex"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/canonical"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/metrics"
	"xdao.co/ledgercore/pqc"
)

// Class is an incident family with a stable exit code.
type Class string

const (
	ClassValidation Class = "validation"
	ClassTamper     Class = "tamper"
	ClassConsensus  Class = "consensus"
)

// Exit codes. Codes above 255 are truncated by POSIX wait status; the audit
// entry always carries the full value.
const (
	ExitValidation = 302
	ExitTamper     = 412
	ExitConsensus  = 511
	// ExitFallback is used when the incident itself could not be recorded.
	ExitFallback = 599
)

func (c Class) ExitCode() int {
	switch c {
	case ClassValidation:
		return ExitValidation
	case ClassTamper:
		return ExitTamper
	case ClassConsensus:
		return ExitConsensus
	default:
		return ExitFallback
	}
}

// ClassFor maps a structured error to the incident class that handles it.
func ClassFor(err error) Class {
	switch faults.KindOf(err) {
	case faults.KindChainIntegrity:
		return ClassTamper
	case faults.KindConsensus:
		return ClassConsensus
	default:
		return ClassValidation
	}
}

type State int32

const (
	StateNormal State = iota
	StateLogging
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateLogging:
		return "LOGGING"
	case StateHalted:
		return "HALTED"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Record is the terminal incident. Creating one implies the process halts.
type Record struct {
	Class        Class
	Reason       string
	Evidence     map[string]any
	ExitCode     int
	ChainHash    string
	Signature    string
	FinalitySeal string
}

type Handler struct {
	mu     sync.Mutex
	state  State
	record Record

	chain   *audit.Chain
	clock   audit.Clock
	signer  pqc.Signer
	key     *pqc.KeyPair
	exit    func(int)
	log     *zap.Logger
	metrics *metrics.Recorder
}

type Option func(*Handler)

// WithSigner adds a signature over the incident payload to the seal.
func WithSigner(s pqc.Signer, kp *pqc.KeyPair) Option {
	return func(h *Handler) {
		h.signer = s
		h.key = kp
	}
}

func WithClock(c audit.Clock) Option {
	return func(h *Handler) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithExit replaces os.Exit. Tests use it to observe the exit code.
func WithExit(fn func(code int)) Option {
	return func(h *Handler) {
		if fn != nil {
			h.exit = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(h *Handler) { h.metrics = m }
}

// New returns a handler that records incidents on chain.
func New(chain *audit.Chain, opts ...Option) *Handler {
	h := &Handler{
		chain: chain,
		clock: audit.FixedClock(0),
		exit:  os.Exit,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Trigger seals, records and halts. It only returns when the exit function
// does; a handler that has already fired exits again with the first code.
func (h *Handler) Trigger(class Class, reason string, evidence map[string]any) Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateNormal {
		h.exit(h.record.ExitCode)
		return h.record
	}
	h.state = StateLogging

	rec := Record{
		Class:    class,
		Reason:   reason,
		Evidence: evidence,
		ExitCode: class.ExitCode(),
	}
	if err := h.seal(&rec); err != nil {
		h.log.Error("incident seal failed", zap.String("class", string(class)), zap.Error(err))
		rec.ExitCode = ExitFallback
	} else if err := h.append(rec); err != nil {
		h.log.Error("incident could not be logged", zap.String("class", string(class)), zap.Error(err))
		rec.ExitCode = ExitFallback
	}

	h.record = rec
	h.state = StateHalted
	h.metrics.ObserveIncident(rec.ExitCode)
	h.log.Error("incident halt",
		zap.String("class", string(rec.Class)),
		zap.String("reason", rec.Reason),
		zap.Int("exit_code", rec.ExitCode),
		zap.String("finality_seal", rec.FinalitySeal),
	)
	h.exit(rec.ExitCode)
	return rec
}

// TriggerFor classifies err and triggers the matching incident. The error's
// kind and rule id are added to the evidence.
func (h *Handler) TriggerFor(err error, evidence map[string]any) Record {
	ev := make(map[string]any, len(evidence)+3)
	for k, v := range evidence {
		ev[k] = v
	}
	kind := faults.KindOf(err)
	if kind == "" {
		kind = faults.KindInternal
	}
	ev["error_kind"] = string(kind)
	ev["error_rule"] = faults.RuleID(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return h.Trigger(ClassFor(err), msg, ev)
}

func (h *Handler) seal(rec *Record) error {
	if h.chain == nil {
		return faults.New(faults.KindInternal, "CIR-SEAL-001", "incident handler has no audit chain")
	}
	rec.ChainHash = h.chain.ChainHash()

	if h.signer != nil {
		payload, err := signingPayload(*rec)
		if err != nil {
			return err
		}
		sig, err := h.signer.Sign(h.key, payload)
		if err != nil {
			// The seal still binds reason, evidence and chain state.
			h.log.Warn("incident signature unavailable", zap.Error(err))
		} else {
			rec.Signature = hex.EncodeToString(sig)
		}
	}

	seal, err := Seal(rec.Reason, rec.Evidence, rec.ChainHash, rec.Signature)
	if err != nil {
		return err
	}
	rec.FinalitySeal = seal
	return nil
}

func (h *Handler) append(rec Record) error {
	_, err := h.chain.Append("incident."+string(rec.Class),
		map[string]any{
			"class":    string(rec.Class),
			"evidence": evidenceValue(rec.Evidence),
			"reason":   rec.Reason,
		},
		map[string]any{
			"chain_hash":    rec.ChainHash,
			"exit_code":     uint64(rec.ExitCode),
			"finality_seal": rec.FinalitySeal,
			"signature":     optional(rec.Signature),
		},
		nil, nil, h.clock.Timestamp())
	return err
}

// Seal is the finality seal: the canonical hash of the reason, the
// evidence, the chain hash at trigger time and the signature (null when
// unsigned).
func Seal(reason string, evidence map[string]any, chainHash, signature string) (string, error) {
	return canonical.Hash(map[string]any{
		"chain_hash": chainHash,
		"evidence":   evidenceValue(evidence),
		"reason":     reason,
		"signature":  optional(signature),
	})
}

// VerifySignature checks a record's signature against pub.
func VerifySignature(s pqc.Signer, pub []byte, rec Record) bool {
	sig, err := hex.DecodeString(rec.Signature)
	if err != nil || len(sig) == 0 {
		return false
	}
	payload, err := signingPayload(rec)
	if err != nil {
		return false
	}
	return s.Verify(pub, payload, sig)
}

func signingPayload(rec Record) ([]byte, error) {
	return canonical.Encode(map[string]any{
		"chain_hash": rec.ChainHash,
		"class":      string(rec.Class),
		"evidence":   evidenceValue(rec.Evidence),
		"exit_code":  uint64(rec.Class.ExitCode()),
		"reason":     rec.Reason,
	})
}

func evidenceValue(ev map[string]any) map[string]any {
	if ev == nil {
		return map[string]any{}
	}
	return ev
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
