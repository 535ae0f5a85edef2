// Package metrics derives per-iteration error statistics from a refinement
// session. The aggregator is pure: the same session always yields the same
// series, so consumers can re-render at will.
package metrics

import (
	"moveforge/internal/classify"
	"moveforge/internal/refine"
)

// Snapshot is the derived statistics for one iteration. PercentChange is nil
// for the first iteration and whenever the previous iteration had zero
// errors; reporting 0% there would fake an improvement baseline that never
// existed.
type Snapshot struct {
	IterationIndex   int                       `json:"iteration_index"`
	CountsByCategory map[classify.Category]int `json:"counts_by_category"`
	TotalErrors      int                       `json:"total_errors"`
	PercentChange    *float64                  `json:"percent_change_from_previous,omitempty"`
	SuccessMarker    bool                      `json:"success_marker"`
}

// Summarize produces the ordered snapshot series for a session, complete or
// partial.
func Summarize(session *refine.Session) []Snapshot {
	snapshots := make([]Snapshot, 0, len(session.Iterations))

	for i, iter := range session.Iterations {
		snap := Snapshot{
			IterationIndex:   iter.Index,
			CountsByCategory: iter.CategoryCounts(),
			TotalErrors:      iter.ErrorCount,
			SuccessMarker:    iter.ErrorCount == 0,
		}

		if i > 0 {
			prev := session.Iterations[i-1].ErrorCount
			if prev > 0 {
				change := float64(prev-iter.ErrorCount) / float64(prev) * 100
				snap.PercentChange = &change
			}
		}

		snapshots = append(snapshots, snap)
	}

	return snapshots
}

// TotalImprovement returns the percent change from the first iteration to
// the last, nil when undefined.
func TotalImprovement(snapshots []Snapshot) *float64 {
	if len(snapshots) < 2 {
		return nil
	}
	first := snapshots[0].TotalErrors
	if first == 0 {
		return nil
	}
	last := snapshots[len(snapshots)-1].TotalErrors
	change := float64(first-last) / float64(first) * 100
	return &change
}
