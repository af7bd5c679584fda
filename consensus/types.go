// Package consensus implements ΨSync, the cross-shard agreement round.
//
// A round merges one sample per shard into a single agreed value. Robust
// statistics (Tukey hinges, IQR fence, median) pick a candidate; shards
// within Epsilon of it agree. If too few agree the round retries with a
// trimmed mean, and if that still fails the round ends in safe mode and is
// escalated. Every step is appended to the caller's audit chain and every
// arithmetic step goes through the certified engine.
package consensus

import (
	"fmt"
	"time"

	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
)

// Mode is the degradation mode a round finished in.
type Mode string

const (
	ModeNone        Mode = "none"
	ModeTrimmedMean Mode = "trimmed_mean"
	ModeSafe        Mode = "safe_mode"
)

// Sample is one shard's reported metric for a round.
type Sample struct {
	ShardID   string
	Value     fixedpoint.Value
	Sequence  uint64
	PacketRef string
}

// Round is the input of Resolve. Expected lists every shard that should
// report; an expected shard without a sample counts as a non-agreeing
// outlier candidate. An empty Expected means the samples define the
// participant set.
type Round struct {
	ID       string
	Expected []string
	Samples  []Sample
}

// Result is immutable once returned.
type Result struct {
	RoundID         string
	GlobalValue     fixedpoint.Value
	Deviations      map[string]fixedpoint.Value
	Outliers        []string
	Missing         []string
	Flagged         []string
	Achieved        bool
	DegradationMode Mode
	AgreementRatio  fixedpoint.Value
	ByzantineScore  fixedpoint.Value
	Evidence        map[string]any
}

// Config holds the round constants. They are operator configuration, not
// derived values.
type Config struct {
	// Epsilon is the largest deviation from the candidate that still
	// counts as agreement.
	Epsilon fixedpoint.Value
	// IQRMultiplier scales the interquartile range into the outlier fence.
	IQRMultiplier fixedpoint.Value
	// MinSamples is the smallest sample count that gets outlier rejection.
	MinSamples int
	// AgreementThreshold is the minimum agreeing fraction of participants.
	AgreementThreshold fixedpoint.Value
	// TrimFraction is dropped from each end before the trimmed mean.
	TrimFraction fixedpoint.Value
	// DeviationThreshold is the default detector's misbehavior bound.
	DeviationThreshold fixedpoint.Value
	// Deadline bounds sample gathering in Run.
	Deadline time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:       fixedpoint.One(),
		IQRMultiplier: fixedpoint.MustParse("1.5"),
		MinSamples:    4,
		// 2/3 truncated to 18 decimals, matching how the agreement ratio
		// itself is computed.
		AgreementThreshold: fixedpoint.MustParse("0.666666666666666666"),
		TrimFraction:       fixedpoint.MustParse("0.2"),
		DeviationThreshold: fixedpoint.FromInteger(10),
		Deadline:           5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.MinSamples < 1 {
		return invalid("min samples must be at least 1")
	}
	if c.AgreementThreshold.IsZero() || fixedpoint.One().Less(c.AgreementThreshold) {
		return invalid("agreement threshold must be in (0, 1]")
	}
	if !c.TrimFraction.Less(fixedpoint.MustParse("0.5")) {
		return invalid("trim fraction must be below 0.5")
	}
	if c.Deadline <= 0 {
		return invalid("deadline must be positive")
	}
	return nil
}

func invalid(msg string) error {
	return faults.New(faults.KindParse, "PSI-CONFIG-001", fmt.Sprintf("consensus config: %s", msg))
}
