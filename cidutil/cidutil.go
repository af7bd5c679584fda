// Package cidutil derives IPFS-compatible content identifiers for canonical
// ledgercore artifacts (audit entries, chain manifests, incident evidence).
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ForBytes returns a CIDv1 using the "raw" multicodec and a sha2-256
// multihash of data. Callers supply canonical bytes.
func ForBytes(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// String is ForBytes rendered as its default string form. It returns "" only
// if multihash rejects the input, which sha2-256 never does.
func String(data []byte) string {
	id, err := ForBytes(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Parse decodes s and rejects CIDs that are not raw + sha2-256.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: decode %q: %w", s, err)
	}
	if id.Type() != cid.Raw {
		return cid.Undef, fmt.Errorf("cidutil: %s is not a raw CID", s)
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: %s: %w", s, err)
	}
	if dec.Code != multihash.SHA2_256 {
		return cid.Undef, fmt.Errorf("cidutil: %s is not sha2-256", s)
	}
	return id, nil
}

// Matches reports whether data hashes to id.
func Matches(id cid.Cid, data []byte) bool {
	got, err := ForBytes(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}
