package audit

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ipfs/go-cid"

	"xdao.co/ledgercore/canonical"
	"xdao.co/ledgercore/cidutil"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/storage"
)

// ManifestKind tags chain manifests stored in a CAS.
const ManifestKind = "ledgercore-audit-manifest-v1"

// Checkpoint writes a manifest listing every entry CID in order together
// with the current chain hash, and returns the manifest CID. The chain must
// have been built WithSink.
func (c *Chain) Checkpoint() (cid.Cid, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink == nil {
		return cid.Undef, faults.New(faults.KindInternal, "AUDIT-SINK-002", "checkpoint requires a storage sink")
	}
	ids := make([]string, len(c.cids))
	for i, id := range c.cids {
		ids[i] = id.String()
	}
	b, err := canonical.Encode(map[string]any{
		"chain_hash": c.rolling,
		"entries":    ids,
		"kind":       ManifestKind,
		"length":     uint64(len(c.entries)),
	})
	if err != nil {
		return cid.Undef, err
	}
	id, err := c.sink.Put(b)
	if err != nil {
		return cid.Undef, faults.Wrap(faults.KindInternal, "AUDIT-SINK-001", "persist manifest", err)
	}
	return id, nil
}

// Manifest is the decoded form of a checkpoint.
type Manifest struct {
	ChainHash string
	Entries   []cid.Cid
}

// CID is the content identifier of the entry's canonical bytes, i.e. the id
// a sink stores it under.
func (e Entry) CID() (cid.Cid, error) {
	b, err := canonical.Encode(e.CanonicalValue())
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.ForBytes(b)
}

// LoadManifest reads and decodes a checkpoint manifest without touching the
// entries it lists.
func LoadManifest(cas storage.CAS, id cid.Cid) (Manifest, error) {
	raw, err := cas.Get(id)
	if err != nil {
		return Manifest{}, storageFault("manifest", err)
	}
	doc, err := canonical.Decode(raw)
	if err != nil {
		return Manifest{}, faults.Wrap(faults.KindChainIntegrity, "AUDIT-REPLAY-001", "manifest is not canonical", err)
	}
	m, ok := doc.(map[string]any)
	if !ok || m["kind"] != ManifestKind {
		return Manifest{}, faults.New(faults.KindChainIntegrity, "AUDIT-REPLAY-001", "not an audit manifest")
	}
	list, ok := m["entries"].([]any)
	if !ok {
		return Manifest{}, faults.New(faults.KindChainIntegrity, "AUDIT-REPLAY-001", "manifest entries missing")
	}
	out := Manifest{Entries: make([]cid.Cid, 0, len(list))}
	out.ChainHash, _ = m["chain_hash"].(string)
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return Manifest{}, brokenAt(uint64(i), "AUDIT-REPLAY-002", "manifest entry is not a CID string")
		}
		id, err := cidutil.Parse(s)
		if err != nil {
			return Manifest{}, brokenAt(uint64(i), "AUDIT-REPLAY-002", err.Error())
		}
		out.Entries = append(out.Entries, id)
	}
	return out, nil
}

// Replay loads a checkpointed chain from cas and re-verifies it from index 0.
// Storage-level tampering, non-canonical bytes, broken links and a chain hash
// that disagrees with the manifest are all ChainIntegrity errors.
func Replay(cas storage.CAS, manifest cid.Cid, opts ...Option) (*Chain, error) {
	m, err := LoadManifest(cas, manifest)
	if err != nil {
		return nil, err
	}

	chain := NewChain(opts...)
	chain.sink = cas
	for i, id := range m.Entries {
		e, err := LoadEntry(cas, id)
		if err != nil {
			if faults.RuleID(err) == "AUDIT-REPLAY-004" {
				return nil, brokenAt(uint64(i), "AUDIT-REPLAY-004", err.Error())
			}
			return nil, faults.Wrap(faults.KindChainIntegrity, "AUDIT-REPLAY-003", fmt.Sprintf("load entry %d", i), err)
		}
		chain.entries = append(chain.entries, e)
		chain.cids = append(chain.cids, id)
		chain.rolling = roll(chain.rolling, e.EntryHash)
	}
	if err := VerifyEntries(chain.entries); err != nil {
		return nil, err
	}
	if chain.rolling != m.ChainHash {
		return nil, faults.New(faults.KindChainIntegrity, "AUDIT-CHAIN-004", "manifest chain hash does not match replayed entries")
	}
	return chain, nil
}

// LoadEntry fetches and decodes a single persisted entry. It does not check
// the entry's links; only Replay can do that.
func LoadEntry(cas storage.CAS, id cid.Cid) (Entry, error) {
	b, err := cas.Get(id)
	if err != nil {
		return Entry{}, err
	}
	e, err := decodeEntry(b)
	if err != nil {
		return Entry{}, faults.Wrap(faults.KindChainIntegrity, "AUDIT-REPLAY-004", err.Error(), err)
	}
	return e, nil
}

func storageFault(what string, err error) error {
	if storage.IsTampered(err) {
		return faults.Wrap(faults.KindChainIntegrity, "AUDIT-REPLAY-003", "load "+what, err)
	}
	return faults.Wrap(faults.KindInternal, "AUDIT-REPLAY-005", "load "+what, err)
}

func decodeEntry(b []byte) (Entry, error) {
	doc, err := canonical.Decode(b)
	if err != nil {
		return Entry{}, err
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return Entry{}, fmt.Errorf("entry is not an object")
	}
	var e Entry
	if e.Index, err = uintField(m, "index"); err != nil {
		return Entry{}, err
	}
	if e.Timestamp, err = uintField(m, "timestamp"); err != nil {
		return Entry{}, err
	}
	if e.Operation, err = stringField(m, "operation"); err != nil {
		return Entry{}, err
	}
	if e.EntryHash, err = stringField(m, "entry_hash"); err != nil {
		return Entry{}, err
	}
	if e.PrevHash, err = stringField(m, "prev_hash"); err != nil {
		return Entry{}, err
	}
	inputs, ok := m["inputs"].(map[string]any)
	if !ok {
		return Entry{}, fmt.Errorf("inputs must be an object")
	}
	e.Inputs = inputs
	e.Result = m["result"]
	switch corr := m["correlation_id"].(type) {
	case nil:
	case string:
		e.CorrelationID = &corr
	default:
		return Entry{}, fmt.Errorf("correlation_id must be a string or null")
	}
	switch q := m["quantum_metadata"].(type) {
	case nil:
	case map[string]any:
		e.QuantumMetadata = q
	default:
		return Entry{}, fmt.Errorf("quantum_metadata must be an object or null")
	}
	if len(m) != 9 {
		return Entry{}, fmt.Errorf("entry has %d fields, want 9", len(m))
	}
	return e, nil
}

func uintField(m map[string]any, key string) (uint64, error) {
	n, ok := m[key].(json.Number)
	if !ok {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	v, err := strconv.ParseUint(string(n), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func stringField(m map[string]any, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}
