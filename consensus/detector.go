package consensus

import (
	"sort"

	"xdao.co/ledgercore/fixedpoint"
)

// Detector names shards whose behavior in a round looks adversarial. It only
// observes: flagged shards lower the Byzantine score but never change the
// agreed value.
type Detector interface {
	DetectMisbehavingShards(candidate fixedpoint.Value, deviations map[string]fixedpoint.Value) []string
}

// DeviationDetector flags shards whose deviation from the candidate exceeds
// Threshold.
type DeviationDetector struct {
	Threshold fixedpoint.Value
}

func (d DeviationDetector) DetectMisbehavingShards(_ fixedpoint.Value, deviations map[string]fixedpoint.Value) []string {
	var out []string
	for id, dev := range deviations {
		if d.Threshold.Less(dev) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
