package staleness

import "time"

// OvernightPolicy is an agent's time-of-day escalation configuration.
type OvernightPolicy struct {
	TimeAwareEscalation bool
	StartHour           int // inclusive
	EndHour             int // exclusive
	Multiplier          float64
}

// IsOvernight reports whether hour falls in the window [start, end), which
// may wrap past midnight: with start=22 end=6, hours 23, 0 and 5 are
// overnight; 6, 12 and 21 are not.
func IsOvernight(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

// EffectiveThreshold returns the overnight-adjusted threshold: base times
// the multiplier when now is inside the window and time-aware escalation is
// on, else base unchanged.
func EffectiveThreshold(base float64, p OvernightPolicy, now time.Time) float64 {
	if !p.TimeAwareEscalation {
		return base
	}
	if !IsOvernight(now.Hour(), p.StartHour, p.EndHour) {
		return base
	}
	if p.Multiplier <= 0 {
		return base
	}
	return base * p.Multiplier
}
