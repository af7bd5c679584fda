// Package audit implements the append-only, hash-linked audit chain.
//
// A Chain is an explicit session handle: every certified operation, consensus
// step and incident is appended to the Chain passed in by the caller. There
// is no package-level log.
package audit

import (
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/ledgercore/canonical"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/metrics"
	"xdao.co/ledgercore/storage"
)

// Chain is a single-writer audit log. Producers may compute in parallel, but
// index assignment, hashing and append happen under one mutex.
type Chain struct {
	mu      sync.Mutex
	entries []Entry
	cids    []cid.Cid
	rolling string

	sink    storage.CAS
	log     *zap.Logger
	metrics *metrics.Recorder
}

type Option func(*Chain)

// WithSink persists every appended entry's canonical bytes to cas before the
// entry becomes visible. A sink failure rejects the append.
func WithSink(cas storage.CAS) Option {
	return func(c *Chain) { c.sink = cas }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Chain) { c.metrics = m }
}

// NewChain returns an empty chain.
func NewChain(opts ...Option) *Chain {
	c := &Chain{rolling: canonical.ZeroHash, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append records one operation. The index is the current length, prev_hash
// links to the previous entry (ZeroHash at index 0) and entry_hash covers
// every other field.
func (c *Chain) Append(op string, inputs map[string]any, result any, correlationID *string, metadata map[string]any, timestamp uint64) (Entry, error) {
	if op == "" {
		return Entry{}, faults.New(faults.KindInternal, "AUDIT-APPEND-001", "operation name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{
		Index:           uint64(len(c.entries)),
		Operation:       op,
		Inputs:          inputs,
		Result:          result,
		CorrelationID:   correlationID,
		QuantumMetadata: metadata,
		Timestamp:       timestamp,
		PrevHash:        c.head(),
	}
	e = e.clone()
	h, err := e.ComputeHash()
	if err != nil {
		return Entry{}, faults.Wrap(faults.KindInternal, "AUDIT-APPEND-002", fmt.Sprintf("canonicalize %s entry", op), err)
	}
	e.EntryHash = h

	var id cid.Cid
	if c.sink != nil {
		b, err := canonical.Encode(e.CanonicalValue())
		if err != nil {
			return Entry{}, faults.Wrap(faults.KindInternal, "AUDIT-APPEND-002", fmt.Sprintf("canonicalize %s entry", op), err)
		}
		id, err = c.sink.Put(b)
		if err != nil {
			c.log.Error("audit sink rejected entry",
				zap.Uint64("index", e.Index),
				zap.String("operation", op),
				zap.Error(err),
			)
			return Entry{}, faults.Wrap(faults.KindInternal, "AUDIT-SINK-001", "persist audit entry", err)
		}
	}

	c.entries = append(c.entries, e)
	c.cids = append(c.cids, id)
	c.rolling = roll(c.rolling, e.EntryHash)
	c.metrics.ObserveAppend()
	c.log.Debug("audit entry appended",
		zap.Uint64("index", e.Index),
		zap.String("operation", op),
		zap.String("entry_hash", e.EntryHash),
	)
	return e.clone(), nil
}

func (c *Chain) head() string {
	if len(c.entries) == 0 {
		return canonical.ZeroHash
	}
	return c.entries[len(c.entries)-1].EntryHash
}

// Head returns the latest entry hash, or ZeroHash for an empty chain.
func (c *Chain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head()
}

func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entry returns a copy of the entry at index i.
func (c *Chain) Entry(i uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= uint64(len(c.entries)) {
		return Entry{}, false
	}
	return c.entries[i].clone(), true
}

// Entries returns copies of all entries in index order.
func (c *Chain) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	for i := range c.entries {
		out[i] = c.entries[i].clone()
	}
	return out
}

// ChainHash is the rolling fingerprint of the whole entry sequence. Identical
// operation sequences yield identical chain hashes on every runtime.
func (c *Chain) ChainHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rolling
}

// Verify recomputes every hash from index 0. Any mismatch is a
// ChainIntegrity error naming the first broken index.
func (c *Chain) Verify() error {
	entries := c.Entries()
	if err := VerifyEntries(entries); err != nil {
		c.log.Error("audit chain integrity failure", zap.Error(err))
		return err
	}
	if got, want := ComputeChainHash(entries), c.ChainHash(); got != want {
		return faults.New(faults.KindChainIntegrity, "AUDIT-CHAIN-004", "rolling chain hash diverged from entries")
	}
	return nil
}

// roll folds one entry hash into the running fingerprint:
// next = sha256(prev_hex || entry_hash_hex).
func roll(prev, entryHash string) string {
	return canonical.SumHex([]byte(prev + entryHash))
}

// ComputeChainHash recomputes the rolling fingerprint for entries.
func ComputeChainHash(entries []Entry) string {
	h := canonical.ZeroHash
	for _, e := range entries {
		h = roll(h, e.EntryHash)
	}
	return h
}
