// Package pqc provides the post-quantum signer used to seal audit entries
// and incident records.
//
// The Signer interface is algorithm-agnostic. Dilithium3 (cloudflare/circl)
// is the shipped implementation.
package pqc

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"xdao.co/ledgercore/faults"
)

const (
	// MinSeedSize is the shortest seed GenerateKeypair accepts.
	MinSeedSize = 32
	// MinDistinctSeedBytes rejects trivially low-entropy seeds such as all
	// zeros or a repeated short pattern.
	MinDistinctSeedBytes = 8
)

// Signer signs and verifies canonical byte sequences.
type Signer interface {
	Algorithm() string
	GenerateKeypair(seed []byte) (*KeyPair, error)
	Sign(kp *KeyPair, msg []byte) ([]byte, error)
	// Verify reports whether sig is a valid signature of msg under pub. It
	// never panics and returns false on malformed input.
	Verify(pub, msg, sig []byte) bool
}

// KeyPair holds one signing identity. Private material lives in a
// SecretBuffer and must be zeroized when the identity is retired; only the
// hash of the originating seed is kept.
type KeyPair struct {
	Algorithm string
	Private   *SecretBuffer
	Public    []byte
	SeedHash  string
}

// Zeroize wipes the private half of the key pair.
func (kp *KeyPair) Zeroize() error {
	if kp == nil {
		return faults.New(faults.KindSigning, "PQC-ZERO-001", "nil key pair")
	}
	return Zeroize(kp.Private)
}

// PublicHex is the hex encoding of the public key.
func (kp *KeyPair) PublicHex() string { return hex.EncodeToString(kp.Public) }

// CheckSeed enforces the seed floor: at least MinSeedSize bytes drawn from
// at least MinDistinctSeedBytes distinct values.
func CheckSeed(seed []byte) error {
	if len(seed) < MinSeedSize {
		return faults.New(faults.KindSigning, "PQC-SEED-001", "seed shorter than 32 bytes")
	}
	var seen [256]bool
	distinct := 0
	for _, b := range seed {
		if !seen[b] {
			seen[b] = true
			distinct++
		}
	}
	if distinct < MinDistinctSeedBytes {
		return faults.New(faults.KindSigning, "PQC-SEED-002", "seed has too little entropy")
	}
	return nil
}

// SeedHash returns hex(SHA3-256(seed)).
func SeedHash(seed []byte) string {
	sum := sha3.Sum256(seed)
	return hex.EncodeToString(sum[:])
}
