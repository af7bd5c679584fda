package storage

import (
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/ledgercore/cidutil"
)

// NamedCAS pairs an archive with the name it is reported under.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes every object to all backends in parallel and fails
// unless each one returns the CID derived from the bytes. Reads fall back in
// order like MultiCAS.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes bytes to every backend and returns the expected CID plus the
// CID each backend reported.
func (r ReplicatingCAS) PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.ForBytes(bytes)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
	}

	var (
		mu  sync.Mutex
		out = make(map[string]cid.Cid, len(r.Backends))
		eg  errgroup.Group
	)
	for _, b := range r.Backends {
		eg.Go(func() error {
			got, err := b.CAS.Put(bytes)
			if err != nil {
				return fmt.Errorf("storage: backend %q: %w", b.Name, err)
			}
			mu.Lock()
			out[b.Name] = got
			mu.Unlock()
			if !got.Equals(want) {
				return fmt.Errorf("storage: backend %q returned %s: %w", b.Name, got, ErrCIDMismatch)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return cid.Undef, out, err
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(bytes []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	adapters := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS != nil {
			adapters = append(adapters, b.CAS)
		}
	}
	return MultiCAS{Adapters: adapters}.Get(id)
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}
