package memcas

import (
	"testing"

	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/testkit"
)

func TestMemCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		return New()
	})
}

func TestMemCAS_CorruptDetected(t *testing.T) {
	cas := New()
	id, err := cas.Put([]byte(`{"index":0}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	cas.Corrupt(id, []byte(`{"index":1}`))
	if _, err := cas.Get(id); !storage.IsTampered(err) {
		t.Fatalf("expected tamper detection, got %v", err)
	}
}
