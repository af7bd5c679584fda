package audit

import "sync"

// Clock supplies entry timestamps. The core never reads the system clock;
// callers inject a deterministic source.
type Clock interface {
	Timestamp() uint64
}

// FixedClock always returns the same timestamp.
type FixedClock uint64

func (c FixedClock) Timestamp() uint64 { return uint64(c) }

// StepClock returns start, start+step, start+2*step, ...
type StepClock struct {
	mu   sync.Mutex
	next uint64
	step uint64
}

func NewStepClock(start, step uint64) *StepClock {
	return &StepClock{next: start, step: step}
}

func (c *StepClock) Timestamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.next
	c.next += c.step
	return ts
}

// Annotation carries optional per-call correlation data.
type Annotation struct {
	CorrelationID string
	Quantum       map[string]any
}

// Merge folds annotations left to right: the last non-empty correlation id
// wins and quantum maps are merged key by key. It returns nil values when
// nothing was supplied so the entry records null.
func Merge(anns []Annotation) (*string, map[string]any) {
	var corr *string
	var quantum map[string]any
	for _, a := range anns {
		if a.CorrelationID != "" {
			id := a.CorrelationID
			corr = &id
		}
		for k, v := range a.Quantum {
			if quantum == nil {
				quantum = make(map[string]any, len(a.Quantum))
			}
			quantum[k] = v
		}
	}
	return corr, quantum
}
