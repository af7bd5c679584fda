// Package memcas is an in-process storage.CAS for tests and short-lived
// sessions that do not need a durable archive.
package memcas

import (
	"bytes"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/ledgercore/cidutil"
	"xdao.co/ledgercore/storage"
)

type CAS struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func New() *CAS {
	return &CAS{objects: make(map[string][]byte)}
}

func (c *CAS) Put(b []byte) (cid.Cid, error) {
	id, err := cidutil.ForBytes(b)
	if err != nil {
		return cid.Undef, err
	}
	key := id.KeyString()

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.objects[key]; ok {
		if !bytes.Equal(existing, b) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	c.objects[key] = append([]byte(nil), b...)
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.objects[id.KeyString()]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objects[id.KeyString()]
	return ok
}

// Corrupt replaces the stored bytes for id without updating the key. It
// exists so tamper detection can be exercised end to end.
func (c *CAS) Corrupt(id cid.Cid, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[id.KeyString()] = append([]byte(nil), b...)
}
