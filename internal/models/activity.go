package models

import "time"

// Activity types.
const (
	ActivityEmailSent         = "email_sent"
	ActivityEmailDrafted      = "email_drafted"
	ActivityEscalationCreated = "escalation_created"
	ActivityThrottled         = "throttled"
	ActivityObservation       = "observation"
	ActivityCheckCompleted    = "check_completed"
	ActivityFailed            = "failed"
)

// Activity is an append-only audit entry for a single agent decision.
// Rows are immutable once written — there is no category of automated
// action that occurs without one.
type Activity struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	AgentID uint   `gorm:"index;not null"`
	Type    string `gorm:"size:32;not null;index"`
	SiteID  *uint  `gorm:"index"`
	LoadID  *uint  `gorm:"index"`

	// DecisionCode is drawn from the closed rules vocabulary, e.g.
	// RUNOUT_CRITICAL or STALE_ETA_REQUEST.
	DecisionCode string `gorm:"size:100;index"`
	// MetricsJSON holds the numeric inputs that triggered the decision.
	MetricsJSON string `gorm:"type:json"`
	Summary     string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"index"`

	Agent *Agent `gorm:"foreignKey:AgentID"`
}
