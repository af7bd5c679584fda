package audit

import (
	"errors"
	"fmt"

	"xdao.co/ledgercore/canonical"
	"xdao.co/ledgercore/faults"
)

// BreakError locates the first entry that failed verification.
type BreakError struct {
	Index  uint64
	Reason string
}

func (e *BreakError) Error() string {
	return fmt.Sprintf("audit chain broken at index %d: %s", e.Index, e.Reason)
}

// BrokenAt extracts the first broken index from a verification error.
func BrokenAt(err error) (uint64, bool) {
	var be *BreakError
	if !errors.As(err, &be) {
		return 0, false
	}
	return be.Index, true
}

func brokenAt(index uint64, ruleID, reason string) error {
	be := &BreakError{Index: index, Reason: reason}
	return faults.Wrap(faults.KindChainIntegrity, ruleID, be.Error(), be)
}

// VerifyEntries recomputes the chain from index 0 and returns the first
// violation. A tampered entry is never silently accepted.
func VerifyEntries(entries []Entry) error {
	prev := canonical.ZeroHash
	for i, e := range entries {
		pos := uint64(i)
		if e.Index != pos {
			return brokenAt(pos, "AUDIT-CHAIN-001", fmt.Sprintf("index %d out of sequence", e.Index))
		}
		if e.PrevHash != prev {
			return brokenAt(pos, "AUDIT-CHAIN-002", "prev_hash does not link to the previous entry")
		}
		h, err := e.ComputeHash()
		if err != nil {
			return brokenAt(pos, "AUDIT-CHAIN-003", "entry is not canonically serializable")
		}
		if h != e.EntryHash {
			return brokenAt(pos, "AUDIT-CHAIN-003", "entry_hash mismatch")
		}
		prev = e.EntryHash
	}
	return nil
}

// Report summarizes a full verification pass.
type Report struct {
	OK        bool
	Total     int
	Verified  int
	ChainHash string
	FirstBad  *uint64
	Errors    []string
}

// Inspect verifies entries and keeps going past the first failure so every
// broken position is reported. Verified counts the intact prefix.
func Inspect(entries []Entry) Report {
	r := Report{OK: true, Total: len(entries), ChainHash: ComputeChainHash(entries)}
	prev := canonical.ZeroHash
	for i, e := range entries {
		pos := uint64(i)
		var problems []string
		if e.Index != pos {
			problems = append(problems, fmt.Sprintf("index mismatch at %d", pos))
		}
		if e.PrevHash != prev {
			problems = append(problems, fmt.Sprintf("prev_hash mismatch at %d", pos))
		}
		if h, err := e.ComputeHash(); err != nil || h != e.EntryHash {
			problems = append(problems, fmt.Sprintf("entry_hash mismatch at %d", pos))
		}
		if len(problems) > 0 {
			if r.OK {
				first := pos
				r.FirstBad = &first
			}
			r.OK = false
			r.Errors = append(r.Errors, problems...)
		} else if r.OK {
			r.Verified++
		}
		// Link against the recomputed hash so a rewritten entry also breaks
		// its successor.
		if h, err := e.ComputeHash(); err == nil {
			prev = h
		} else {
			prev = e.EntryHash
		}
	}
	return r
}
