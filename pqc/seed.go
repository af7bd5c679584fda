package pqc

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/sha3"

	"xdao.co/ledgercore/faults"
)

const deriveDomain = "xdao-ledgercore-pqc-v1"

// DeriveSeed deterministically derives a role-specific seed from a root
// seed, so one operator secret can back separate engine and incident
// identities.
func DeriveSeed(root []byte, role string) ([]byte, error) {
	if err := CheckSeed(root); err != nil {
		return nil, err
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	h := sha3.New256()
	_, _ = h.Write(root)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(deriveDomain))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	return h.Sum(nil), nil
}

func CheckRole(role string) error {
	if role == "" {
		return faults.New(faults.KindSigning, "PQC-ROLE-001", "role cannot be empty")
	}
	for _, char := range role {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return faults.New(faults.KindSigning, "PQC-ROLE-001", fmt.Sprintf("invalid character %q in role", char))
	}
	return nil
}

// ParseSeedHex decodes a hex seed, optionally 0x-prefixed, and applies
// CheckSeed.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, faults.Wrap(faults.KindSigning, "PQC-SEED-003", "seed is not hex", err)
	}
	if err := CheckSeed(data); err != nil {
		return nil, err
	}
	return data, nil
}

// SaveSeedFile writes seed as hex with owner-only permissions. It refuses to
// replace an existing file unless overwrite is set.
func SaveSeedFile(path string, seed []byte, overwrite bool) error {
	if err := CheckSeed(seed); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func LoadSeedFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}
