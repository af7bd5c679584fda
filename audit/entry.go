package audit

import (
	"xdao.co/ledgercore/canonical"
	"xdao.co/ledgercore/fixedpoint"
)

// Entry is one immutable record of the audit chain.
//
// Inputs is an ordered map in canonical form (keys sorted at serialization);
// Result is a canonical value: a fixed-point value, a string, an integer, or
// a structured map such as {"error": {...}} for failed operations.
type Entry struct {
	Index           uint64
	Operation       string
	Inputs          map[string]any
	Result          any
	CorrelationID   *string
	QuantumMetadata map[string]any
	Timestamp       uint64
	EntryHash       string
	PrevHash        string
}

// body is the canonical value tree of every field except entry_hash.
func (e Entry) body() map[string]any {
	inputs := e.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	var corr any
	if e.CorrelationID != nil {
		corr = *e.CorrelationID
	}
	var quantum any
	if e.QuantumMetadata != nil {
		quantum = e.QuantumMetadata
	}
	return map[string]any{
		"correlation_id":   corr,
		"index":            e.Index,
		"inputs":           inputs,
		"operation":        e.Operation,
		"prev_hash":        e.PrevHash,
		"quantum_metadata": quantum,
		"result":           e.Result,
		"timestamp":        e.Timestamp,
	}
}

// CanonicalValue returns the full record including entry_hash. This is the
// persisted form.
func (e Entry) CanonicalValue() any {
	m := e.body()
	m["entry_hash"] = e.EntryHash
	return m
}

// ComputeHash recomputes entry_hash from the other fields.
func (e Entry) ComputeHash() (string, error) {
	return canonical.Hash(e.body())
}

// Payload returns the canonical bytes of the operation itself (operation,
// inputs, result, correlation id). This is the byte sequence sealed by a
// PQC signature; it excludes chain position so a seal can be produced before
// the entry is appended. A seal therefore verifies on any entry with the same
// operation, inputs and result: index, prev_hash and timestamp are bound
// only by entry_hash, which covers the seal too.
func Payload(op string, inputs map[string]any, result any, correlationID *string) ([]byte, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	var corr any
	if correlationID != nil {
		corr = *correlationID
	}
	return canonical.Encode(map[string]any{
		"correlation_id": corr,
		"inputs":         inputs,
		"operation":      op,
		"result":         result,
	})
}

// clone deep-copies the mutable containers of an entry.
func (e Entry) clone() Entry {
	out := e
	if e.Inputs != nil {
		out.Inputs = cloneMap(e.Inputs)
	}
	if e.QuantumMetadata != nil {
		out.QuantumMetadata = cloneMap(e.QuantumMetadata)
	}
	out.Result = cloneValue(e.Result)
	if e.CorrelationID != nil {
		c := *e.CorrelationID
		out.CorrelationID = &c
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []fixedpoint.Value:
		return append([]fixedpoint.Value(nil), val...)
	case map[string]fixedpoint.Value:
		out := make(map[string]fixedpoint.Value, len(val))
		for k, fv := range val {
			out[k] = fv
		}
		return out
	default:
		return v
	}
}
