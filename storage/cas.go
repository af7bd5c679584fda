// Package storage defines the content-addressed archive that holds canonical
// audit entries, chain manifests and incident evidence.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable store.
//
// Contract:
// - Put MUST be idempotent and MUST derive the CID from the bytes written.
// - Stored objects MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent and ErrCIDMismatch
//   when the stored bytes no longer hash to the requested CID.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
