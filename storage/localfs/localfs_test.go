package localfs

import (
	"os"
	"testing"

	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	})
}

func TestLocalFS_DetectsOutOfBandMutation(t *testing.T) {
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	orig := []byte(`{"index":0,"operation":"add"}`)
	id, err := cas.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"index":0,"operation":"sub"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := cas.Get(id); !storage.IsTampered(err) {
		t.Fatalf("Get after tamper: got %v want CID mismatch", err)
	}
	if _, err := cas.Put(orig); err != storage.ErrImmutable {
		t.Fatalf("Put over tampered object: got %v want ErrImmutable", err)
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty root")
	}
}
