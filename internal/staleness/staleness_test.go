package staleness

import (
	"testing"
	"time"
)

var base = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestEvaluate_NilTimestamp(t *testing.T) {
	r := Evaluate(nil, 4, base)
	if !r.Stale {
		t.Error("never-ingested observation must be stale")
	}
	if r.Hours != NeverUpdated {
		t.Errorf("Hours = %v, want NeverUpdated sentinel", r.Hours)
	}
}

func TestEvaluate_Thresholds(t *testing.T) {
	tests := []struct {
		name      string
		ageHours  float64
		threshold float64
		wantStale bool
	}{
		{"fresh", 1, 4, false},
		{"exactly at threshold", 4, 4, false},
		{"just past threshold", 4.01, 4, true},
		{"very stale", 48, 4, true},
		{"tight per-subject threshold", 3, 2, true},
		{"loose per-subject threshold", 3, 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := base.Add(-time.Duration(tt.ageHours * float64(time.Hour)))
			r := Evaluate(&ts, tt.threshold, base)
			if r.Stale != tt.wantStale {
				t.Errorf("Stale = %v, want %v", r.Stale, tt.wantStale)
			}
			if diff := r.Hours - tt.ageHours; diff > 0.001 || diff < -0.001 {
				t.Errorf("Hours = %v, want %v", r.Hours, tt.ageHours)
			}
		})
	}
}

func TestEvaluate_FutureTimestampClamped(t *testing.T) {
	future := base.Add(2 * time.Hour)
	r := Evaluate(&future, 4, base)
	if r.Stale {
		t.Error("future timestamp must not be stale")
	}
	if r.Hours != 0 {
		t.Errorf("Hours = %v, want 0 for future timestamp", r.Hours)
	}
}

func TestEvaluate_FractionalHours(t *testing.T) {
	ts := base.Add(-90 * time.Minute)
	r := Evaluate(&ts, 1, base)
	if !r.Stale {
		t.Error("90 minutes against a 1h threshold must be stale")
	}
	if diff := r.Hours - 1.5; diff > 0.001 || diff < -0.001 {
		t.Errorf("Hours = %v, want 1.5", r.Hours)
	}
}
