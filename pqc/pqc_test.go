package pqc

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"xdao.co/ledgercore/faults"
)

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i*7 + 3)
	}
	return seed
}

func TestDilithium3SignVerifyRoundTrip(t *testing.T) {
	var s Dilithium3
	kp, err := s.GenerateKeypair(testSeed())
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if kp.Algorithm != AlgDilithium3 || kp.SeedHash != SeedHash(testSeed()) {
		t.Fatalf("unexpected key pair metadata: %s %s", kp.Algorithm, kp.SeedHash)
	}

	msg := []byte(`{"operation":"add"}`)
	sig, err := s.Sign(kp, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !s.Verify(kp.Public, msg, sig) {
		t.Fatalf("expected signature to verify")
	}

	for i := range msg {
		bad := append([]byte(nil), msg...)
		bad[i] ^= 0x01
		if s.Verify(kp.Public, bad, sig) {
			t.Fatalf("flipped payload byte %d still verifies", i)
		}
	}
	// Dense at both ends of the signature, strided through the middle.
	var offsets []int
	for i := 0; i < 64; i++ {
		offsets = append(offsets, i)
	}
	for i := 64; i < len(sig)-32; i += 97 {
		offsets = append(offsets, i)
	}
	for i := len(sig) - 32; i < len(sig); i++ {
		offsets = append(offsets, i)
	}
	for _, i := range offsets {
		bad := append([]byte(nil), sig...)
		bad[i] ^= 0x01
		if s.Verify(kp.Public, msg, bad) {
			t.Fatalf("flipped signature byte %d of %d still verifies", i, len(sig))
		}
	}
	if s.Verify(kp.Public, []byte(`{"operation":"sub"}`), sig) {
		t.Fatalf("signature verified for a different message")
	}
}

func TestKeypairIsDeterministicPerSeed(t *testing.T) {
	var s Dilithium3
	a, err := s.GenerateKeypair(testSeed())
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	b, err := s.GenerateKeypair(testSeed())
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if !bytes.Equal(a.Public, b.Public) {
		t.Fatalf("same seed produced different public keys")
	}
	other := testSeed()
	other[0] ^= 0xff
	c, err := s.GenerateKeypair(other)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if bytes.Equal(a.Public, c.Public) {
		t.Fatalf("different seeds produced the same public key")
	}
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	var s Dilithium3
	kp, err := s.GenerateKeypair(testSeed())
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	cases := []struct{ pub, sig []byte }{
		{nil, nil},
		{[]byte("short"), []byte("short")},
		{kp.Public, nil},
		{kp.Public[:10], make([]byte, 3293)},
	}
	for i, tc := range cases {
		if s.Verify(tc.pub, []byte("m"), tc.sig) {
			t.Fatalf("case %d verified", i)
		}
	}
}

func TestSeedFloor(t *testing.T) {
	var s Dilithium3
	if _, err := s.GenerateKeypair(make([]byte, 31)); faults.RuleID(err) != "PQC-SEED-001" {
		t.Fatalf("short seed: %v", err)
	}
	if _, err := s.GenerateKeypair(make([]byte, 64)); faults.RuleID(err) != "PQC-SEED-002" {
		t.Fatalf("zero seed: %v", err)
	}
	pattern := bytes.Repeat([]byte{1, 2, 3, 4}, 16)
	if _, err := s.GenerateKeypair(pattern); !faults.IsKind(err, faults.KindSigning) {
		t.Fatalf("low-entropy seed: %v", err)
	}
}

func TestZeroize(t *testing.T) {
	var s Dilithium3
	kp, err := s.GenerateKeypair(testSeed())
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if err := kp.Zeroize(); err != nil {
		t.Fatalf("Zeroize: %v", err)
	}
	for _, b := range kp.Private.Bytes() {
		if b != 0 {
			t.Fatalf("private material survived zeroize")
		}
	}
	if _, err := s.Sign(kp, []byte("m")); faults.RuleID(err) != "PQC-SIGN-002" {
		t.Fatalf("signing with a zeroized key: %v", err)
	}

	if err := Zeroize(nil); faults.RuleID(err) != "PQC-ZERO-001" {
		t.Fatalf("nil buffer: %v", err)
	}
	backing := []byte{1, 2, 3}
	if err := Zeroize(NewReadOnlySecret(backing)); faults.RuleID(err) != "PQC-ZERO-002" {
		t.Fatalf("read-only buffer: %v", err)
	}
	if backing[0] != 1 {
		t.Fatalf("read-only buffer was modified")
	}
	if got := NewSecretBuffer(backing).String(); got != "[redacted]" {
		t.Fatalf("String() = %q", got)
	}
}

func TestDeriveSeed(t *testing.T) {
	root := testSeed()
	a, err := DeriveSeed(root, "engine")
	if err != nil {
		t.Fatalf("DeriveSeed: %v", err)
	}
	b, err := DeriveSeed(root, "engine")
	if err != nil {
		t.Fatalf("DeriveSeed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected deterministic derivation")
	}
	c, err := DeriveSeed(root, "incident")
	if err != nil {
		t.Fatalf("DeriveSeed: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
	if _, err := DeriveSeed(root, "bad role"); err == nil {
		t.Fatalf("expected role validation error")
	}
}

func TestSeedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "root.seed")
	if err := SaveSeedFile(path, testSeed(), false); err != nil {
		t.Fatalf("SaveSeedFile: %v", err)
	}
	if err := SaveSeedFile(path, testSeed(), false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}
	got, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if !bytes.Equal(got, testSeed()) {
		t.Fatalf("seed mismatch")
	}
	if _, err := ParseSeedHex("0xzz"); faults.RuleID(err) != "PQC-SEED-003" {
		t.Fatalf("bad hex: %v", err)
	}
}
