package canonical

import (
	"bytes"
	"encoding/json"

	"xdao.co/ledgercore/faults"
)

// Decode parses canonical bytes into a generic value tree (map[string]any,
// []any, string, bool, nil, json.Number).
//
// Input that is valid JSON but not canonical is rejected: the decoded tree is
// re-encoded and must reproduce b byte for byte.
func Decode(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, faults.Wrap(faults.KindParse, "CANON-DECODE-001", "invalid canonical JSON", err)
	}
	if dec.More() {
		return nil, faults.New(faults.KindParse, "CANON-DECODE-002", "trailing data after canonical value")
	}
	again, err := Encode(out)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(again, b) {
		return nil, faults.New(faults.KindParse, "CANON-DECODE-003", "input is not in canonical form")
	}
	return out, nil
}
