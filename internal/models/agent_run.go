package models

import "time"

// Agent run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// AgentRun records one check cycle for observability. A run fails only when
// orchestration itself cannot start; per-subject failures are counted in
// FailedSubjects and the run still completes.
type AgentRun struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	AgentID uint   `gorm:"index;not null"`
	Status  string `gorm:"size:16;default:pending;not null;index"`

	ExecutionMode string `gorm:"size:16"`
	Trigger       string `gorm:"size:16"` // "scheduled" or "manual"

	StartedAt       time.Time `gorm:"index"`
	CompletedAt     *time.Time
	DurationSeconds float64

	SitesChecked       int `gorm:"default:0"`
	LoadsChecked       int `gorm:"default:0"`
	EmailsSent         int `gorm:"default:0"`
	EscalationsCreated int `gorm:"default:0"`
	DraftActions       int `gorm:"default:0"`
	Tier2Invocations   int `gorm:"default:0"`
	FailedSubjects     int `gorm:"default:0"`

	ErrorMessage  string `gorm:"type:text"`
	DecisionsJSON string `gorm:"type:json"`

	Agent *Agent `gorm:"foreignKey:AgentID"`
}
