// Package engine is the certified arithmetic engine: the only path through
// which fixed-point values are combined. Every public call appends exactly
// one entry to the caller's audit chain, including calls that fail.
package engine

import (
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/engine/internal/kernel"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
	"xdao.co/ledgercore/metrics"
	"xdao.co/ledgercore/pqc"
)

// Engine is stateless apart from its collaborators and safe for concurrent
// use; ordering is decided by the audit chain.
type Engine struct {
	clock   audit.Clock
	log     *zap.Logger
	metrics *metrics.Recorder
	signer  pqc.Signer
	key     *pqc.KeyPair
}

type Option func(*Engine)

// WithClock sets the timestamp source. The default is FixedClock(0).
func WithClock(c audit.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSigner seals every entry: a signature over the canonical operation
// payload is recorded in quantum_metadata.
func WithSigner(s pqc.Signer, kp *pqc.KeyPair) Option {
	return func(e *Engine) {
		e.signer = s
		e.key = kp
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{clock: audit.FixedClock(0), log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type binaryFn func(a, b *uint256.Int) (*uint256.Int, error)

type unaryFn func(x *uint256.Int) (*uint256.Int, error)

func (e *Engine) Add(chain *audit.Chain, a, b fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.binary(chain, "add", a, b, kernel.Add, ann)
}

// Sub returns a-b. A negative difference is a Range error.
func (e *Engine) Sub(chain *audit.Chain, a, b fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.binary(chain, "sub", a, b, kernel.Sub, ann)
}

// Mul returns a*b truncated to 18 decimals.
func (e *Engine) Mul(chain *audit.Chain, a, b fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.binary(chain, "mul", a, b, kernel.Mul, ann)
}

// Div returns a/b truncated to 18 decimals.
func (e *Engine) Div(chain *audit.Chain, a, b fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.binary(chain, "div", a, b, kernel.Div, ann)
}

// Abs is the identity on non-negative values. It is still recorded so that
// audit trails mirror the caller's formula.
func (e *Engine) Abs(chain *audit.Chain, x fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.unary(chain, "abs", x, func(r *uint256.Int) (*uint256.Int, error) { return r, nil }, ann)
}

// AbsDiff returns |a-b|.
func (e *Engine) AbsDiff(chain *audit.Chain, a, b fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.binary(chain, "abs_diff", a, b, func(x, y *uint256.Int) (*uint256.Int, error) {
		return kernel.AbsDiff(x, y), nil
	}, ann)
}

// Compare returns -1, 0 or +1.
func (e *Engine) Compare(chain *audit.Chain, a, b fixedpoint.Value, ann ...audit.Annotation) (int, error) {
	c := a.Compare(b)
	if err := e.record(chain, "compare", map[string]any{"a": a, "b": b}, c, nil, ann); err != nil {
		return 0, err
	}
	return c, nil
}

func (e *Engine) Sqrt(chain *audit.Chain, x fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.unary(chain, "sqrt", x, kernel.Sqrt, ann)
}

// Ln returns the natural logarithm. Zero is a Domain error; values below one
// are a Range error since their logarithm is negative.
func (e *Engine) Ln(chain *audit.Chain, x fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.unary(chain, "ln", x, kernel.Ln, ann)
}

// Exp returns e^x for x <= 47.
func (e *Engine) Exp(chain *audit.Chain, x fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.unary(chain, "exp", x, kernel.Exp, ann)
}

func (e *Engine) Pow(chain *audit.Chain, base, exp fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	raw, err := kernel.Pow(base.Raw(), exp.Raw())
	return e.finish(chain, "pow", map[string]any{"base": base, "exp": exp}, raw, err, ann)
}

// Atan evaluates the alternating arctangent series on [0, 1], halving the
// angle first above 1/2. A series that does not settle is a fatal
// Convergence error.
func (e *Engine) Atan(chain *audit.Chain, x fixedpoint.Value, ann ...audit.Annotation) (fixedpoint.Value, error) {
	return e.unary(chain, "atan", x, kernel.Atan, ann)
}

func (e *Engine) binary(chain *audit.Chain, op string, a, b fixedpoint.Value, fn binaryFn, ann []audit.Annotation) (fixedpoint.Value, error) {
	raw, err := fn(a.Raw(), b.Raw())
	return e.finish(chain, op, map[string]any{"a": a, "b": b}, raw, err, ann)
}

func (e *Engine) unary(chain *audit.Chain, op string, x fixedpoint.Value, fn unaryFn, ann []audit.Annotation) (fixedpoint.Value, error) {
	raw, err := fn(x.Raw())
	return e.finish(chain, op, map[string]any{"x": x}, raw, err, ann)
}

func (e *Engine) finish(chain *audit.Chain, op string, inputs map[string]any, raw *uint256.Int, opErr error, ann []audit.Annotation) (fixedpoint.Value, error) {
	var v fixedpoint.Value
	if opErr == nil {
		v, opErr = fixedpoint.FromRaw(raw)
	}
	var result any = v
	if opErr != nil {
		result = ErrorResult(opErr)
	}
	if err := e.record(chain, op, inputs, result, opErr, ann); err != nil {
		return fixedpoint.Value{}, err
	}
	if opErr != nil {
		return fixedpoint.Value{}, opErr
	}
	return v, nil
}

// ErrorResult is the audit result recorded for a failed operation.
func ErrorResult(err error) map[string]any {
	kind := faults.KindOf(err)
	if kind == "" {
		kind = faults.KindInternal
	}
	return map[string]any{"error": map[string]any{
		"kind": string(kind),
		"rule": faults.RuleID(err),
	}}
}

// record appends the operation's single audit entry. A nil chain, a signing
// failure or an append failure is returned in place of the operation result.
func (e *Engine) record(chain *audit.Chain, op string, inputs map[string]any, result any, opErr error, ann []audit.Annotation) error {
	if chain == nil {
		return faults.New(faults.KindInternal, "ENGINE-AUDIT-001", "certified operations require an audit chain")
	}
	corr, quantum := audit.Merge(ann)

	var signErr error
	if e.signer != nil {
		quantum, signErr = e.seal(op, inputs, result, corr, quantum)
	}

	_, err := chain.Append(op, inputs, result, corr, quantum, e.clock.Timestamp())
	e.metrics.ObserveOperation(op, opErr)
	if err != nil {
		e.log.Error("audit append failed", zap.String("operation", op), zap.Error(err))
		return err
	}
	if opErr != nil {
		e.log.Debug("certified operation failed",
			zap.String("operation", op),
			zap.String("kind", string(faults.KindOf(opErr))),
			zap.String("rule", faults.RuleID(opErr)),
		)
	}
	return signErr
}
