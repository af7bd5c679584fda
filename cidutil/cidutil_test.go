package cidutil

import "testing"

func TestForBytesDeterministic(t *testing.T) {
	a, err := ForBytes([]byte(`{"index":0}`))
	if err != nil {
		t.Fatalf("ForBytes: %v", err)
	}
	b, _ := ForBytes([]byte(`{"index":0}`))
	if !a.Equals(b) {
		t.Fatalf("expected identical CIDs for identical bytes")
	}
	if String([]byte(`{"index":0}`)) != a.String() {
		t.Fatalf("String must match ForBytes")
	}
	if !Matches(a, []byte(`{"index":0}`)) || Matches(a, []byte(`{"index":1}`)) {
		t.Fatalf("Matches mismatch")
	}
}

func TestParseRoundTrip(t *testing.T) {
	id, _ := ForBytes([]byte("evidence"))
	back, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !back.Equals(id) {
		t.Fatalf("round trip mismatch")
	}
	if _, err := Parse("not-a-cid"); err == nil {
		t.Fatalf("expected decode error")
	}
}
