package models

import "time"

// Agent statuses.
const (
	AgentActive  = "active"
	AgentPaused  = "paused"
	AgentStopped = "stopped"
)

// Execution modes gate whether automated actions produce real external side
// effects. Draft-only logs a proposed email instead of sending; auto-email
// and full-auto send for real. The audit trail is written in every mode.
const (
	ModeDraftOnly = "draft_only"
	ModeAutoEmail = "auto_email"
	ModeFullAuto  = "full_auto"
)

// Agent is a decision-making unit that owns the policy applied to its
// assigned sites. One agent per site — assignment is exclusive.
type Agent struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	Name          string `gorm:"size:255;not null"`
	Status        string `gorm:"size:16;default:stopped;index"`
	ExecutionMode string `gorm:"size:16;default:draft_only;not null"`

	CheckIntervalMinutes int `gorm:"default:15"`

	// Overnight window [start, end) in clock hours, may wrap midnight.
	// When TimeAwareEscalation is set, runout thresholds are multiplied by
	// OvernightMultiplier inside the window.
	TimeAwareEscalation bool    `gorm:"default:true"`
	OvernightStartHour  int     `gorm:"default:22"`
	OvernightEndHour    int     `gorm:"default:6"`
	OvernightMultiplier float64 `gorm:"default:1.5"`

	LastActivityAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	AssignedSites []Site     `gorm:"foreignKey:AssignedAgentID"`
	Activities    []Activity `gorm:"foreignKey:AgentID"`
	Runs          []AgentRun `gorm:"foreignKey:AgentID"`
}
