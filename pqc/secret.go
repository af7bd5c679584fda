package pqc

import (
	"sync"

	"xdao.co/ledgercore/faults"
)

// SecretBuffer owns private key material. Its String form is redacted so
// the contents never reach a log line by accident.
type SecretBuffer struct {
	mu       sync.Mutex
	b        []byte
	readOnly bool
	zeroed   bool
}

// NewSecretBuffer copies b into a writable buffer.
func NewSecretBuffer(b []byte) *SecretBuffer {
	return &SecretBuffer{b: append([]byte(nil), b...)}
}

// NewReadOnlySecret wraps b without copying. Zeroize refuses read-only
// buffers: the owner of b is responsible for wiping it.
func NewReadOnlySecret(b []byte) *SecretBuffer {
	return &SecretBuffer{b: b, readOnly: true}
}

// Bytes returns a copy of the secret.
func (s *SecretBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.b...)
}

func (s *SecretBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.b)
}

func (s *SecretBuffer) Zeroed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zeroed
}

func (s *SecretBuffer) String() string { return "[redacted]" }

// Zeroize overwrites the buffer in place.
func Zeroize(s *SecretBuffer) error {
	if s == nil {
		return faults.New(faults.KindSigning, "PQC-ZERO-001", "nil secret buffer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return faults.New(faults.KindSigning, "PQC-ZERO-002", "secret buffer is read-only")
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.zeroed = true
	return nil
}
