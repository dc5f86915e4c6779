// Package staleness computes data-age signals and time-of-day context for
// the rules engine. Staleness is a first-class risk signal here, not a
// data-quality error.
package staleness

import "time"

// NeverUpdated is the sentinel staleness for observations that have no
// timestamp at all. It exceeds any realistic threshold.
const NeverUpdated = 1e9

// Result describes how stale a single timestamped observation is.
type Result struct {
	Stale bool
	Hours float64
}

// Evaluate reports whether an observation is stale relative to a per-subject
// threshold in hours. A nil timestamp means the value was never ingested:
// always stale, with the NeverUpdated sentinel for Hours. Elapsed hours are
// clamped to zero for observations from the future (clock skew).
func Evaluate(lastUpdate *time.Time, thresholdHours float64, now time.Time) Result {
	if lastUpdate == nil {
		return Result{Stale: true, Hours: NeverUpdated}
	}
	hours := now.Sub(*lastUpdate).Hours()
	if hours < 0 {
		hours = 0
	}
	return Result{Stale: hours > thresholdHours, Hours: hours}
}
