package models

import "time"

// Escalation priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Escalation statuses. Transitions only move forward
// (open → in_progress → resolved); a recurring condition gets a new row.
const (
	EscalationOpen       = "open"
	EscalationInProgress = "in_progress"
	EscalationResolved   = "resolved"
)

// Escalation issue types.
const (
	IssueRunoutRisk        = "runout_risk"
	IssueDelayedShipment   = "delayed_shipment"
	IssueNoCarrierResponse = "no_carrier_response"
	IssueCapacity          = "capacity_issue"
	IssueStaleData         = "stale_data"
	IssueOther             = "other"
)

// Escalation is a human-facing work item created by Tier-1 or Tier-2
// decisions. Status transitions are the only externally-triggered mutation
// the core data model supports.
type Escalation struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	CreatedByAgentID *uint  `gorm:"index"`
	SiteID           *uint  `gorm:"index"`
	LoadID           *uint  `gorm:"index"`
	IssueType        string `gorm:"size:32;not null"`
	Priority         string `gorm:"size:16;default:medium;index"`
	Status           string `gorm:"size:16;default:open;index"`
	Description      string `gorm:"type:text;not null"`
	AssignedTo       string `gorm:"size:255"`
	ResolutionNotes  string `gorm:"type:text"`

	// WasFalseAlarm is set at resolution and feeds the site false-alarm
	// rate in the knowledge graph.
	WasFalseAlarm bool `gorm:"default:false"`

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time

	CreatedByAgent *Agent `gorm:"foreignKey:CreatedByAgentID"`
	Site           *Site  `gorm:"foreignKey:SiteID"`
	Load           *Load  `gorm:"foreignKey:LoadID"`
}

// EscalationTransitions maps each status to its valid next statuses.
var EscalationTransitions = map[string][]string{
	EscalationOpen:       {EscalationInProgress, EscalationResolved},
	EscalationInProgress: {EscalationResolved},
	EscalationResolved:   {},
}
