package pqc

import (
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/ledgercore/faults"
)

// AlgDilithium3 names the Dilithium3 (mode3) scheme in audit metadata.
const AlgDilithium3 = "dilithium3"

// Dilithium3 implements Signer. Signing is deterministic: the same key and
// message always produce the same signature.
type Dilithium3 struct{}

var _ Signer = Dilithium3{}

func (Dilithium3) Algorithm() string { return AlgDilithium3 }

// GenerateKeypair expands seed with SHA3-256 into a mode3 key seed. The raw
// seed is not retained.
func (Dilithium3) GenerateKeypair(seed []byte) (*KeyPair, error) {
	if err := CheckSeed(seed); err != nil {
		return nil, err
	}
	expanded := [mode3.SeedSize]byte(sha3.Sum256(seed))
	pk, sk := mode3.NewKeyFromSeed(&expanded)
	for i := range expanded {
		expanded[i] = 0
	}
	return &KeyPair{
		Algorithm: AlgDilithium3,
		Private:   NewSecretBuffer(sk.Bytes()),
		Public:    pk.Bytes(),
		SeedHash:  SeedHash(seed),
	}, nil
}

func (Dilithium3) Sign(kp *KeyPair, msg []byte) ([]byte, error) {
	if kp == nil || kp.Private == nil {
		return nil, faults.New(faults.KindSigning, "PQC-SIGN-001", "missing private key")
	}
	if kp.Private.Zeroed() {
		return nil, faults.New(faults.KindSigning, "PQC-SIGN-002", "private key has been zeroized")
	}
	var sk mode3.PrivateKey
	if err := sk.UnmarshalBinary(kp.Private.Bytes()); err != nil {
		return nil, faults.Wrap(faults.KindSigning, "PQC-SIGN-003", "unpack private key", err)
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(&sk, msg, sig)
	return sig, nil
}

func (Dilithium3) Verify(pub, msg, sig []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if len(pub) != mode3.PublicKeySize || len(sig) != mode3.SignatureSize {
		return false
	}
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(pub); err != nil {
		return false
	}
	return mode3.Verify(&pk, msg, sig)
}
