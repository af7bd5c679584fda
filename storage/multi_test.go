package storage_test

import (
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/memcas"
	"xdao.co/ledgercore/storage/testkit"
)

func TestMultiCASConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{memcas.New(), memcas.New()}}
	})
}

func TestReplicatingCASConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: memcas.New()},
			{Name: "b", CAS: memcas.New()},
		}}
	})
}

func TestMultiCASFallsBackOnlyOnNotFound(t *testing.T) {
	primary, mirror := memcas.New(), memcas.New()
	m := storage.MultiCAS{Adapters: []storage.CAS{primary, mirror}}

	id, err := mirror.Put([]byte("entry"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := m.Get(id); err != nil {
		t.Fatalf("expected fallback to mirror, got %v", err)
	}
	if primary.Has(id) {
		t.Fatalf("reads must not write back")
	}

	if _, err := primary.Put([]byte("entry")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	primary.Corrupt(id, []byte("forged"))
	if _, err := m.Get(id); !storage.IsTampered(err) {
		t.Fatalf("tampered primary must not be masked, got %v", err)
	}
}

func TestReplicatingCASWritesEverywhere(t *testing.T) {
	a, b := memcas.New(), memcas.New()
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}}}

	id, per, err := r.PutAll([]byte("manifest"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if !a.Has(id) || !b.Has(id) {
		t.Fatalf("object not replicated")
	}
	if len(per) != 2 || !per["a"].Equals(id) || !per["b"].Equals(id) {
		t.Fatalf("per-backend cids = %v", per)
	}
}

type liarCAS struct{ storage.CAS }

func (liarCAS) Put([]byte) (cid.Cid, error) {
	return memcas.New().Put([]byte("something else"))
}

func TestReplicatingCASRejectsDivergentBackend(t *testing.T) {
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "good", CAS: memcas.New()},
		{Name: "liar", CAS: liarCAS{memcas.New()}},
	}}
	if _, err := r.Put([]byte("entry")); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}
