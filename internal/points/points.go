// Package points derives contribution point awards from accepted-share
// counter deltas. One point equals one newly accepted share.
package points

import "fmt"

// Award is a positive points award with its human-readable provenance.
type Award struct {
	Points int64
	Reason string
}

// Evaluate decides whether a new snapshot earns an award against the
// worker's immediately preceding snapshot.
//
// prevAccepted is nil when no earlier snapshot exists: a worker's first-ever
// report never earns points because there is no baseline to diff against.
// A delta of zero or less also earns nothing; this silently absorbs client
// counter resets (process restarts report lower cumulative totals) and flat
// or duplicated submissions.
func Evaluate(prevAccepted *int64, currentAccepted int64) *Award {
	if prevAccepted == nil {
		return nil
	}

	delta := currentAccepted - *prevAccepted
	if delta <= 0 {
		return nil
	}

	return &Award{
		Points: delta,
		Reason: fmt.Sprintf("Accepted %d shares", delta),
	}
}
