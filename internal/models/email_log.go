package models

import "time"

// Email delivery statuses.
const (
	EmailPending = "pending"
	EmailSent    = "sent"
	EmailFailed  = "failed"
	EmailDraft   = "draft"
)

// Template classes for outbound carrier mail. The throttle guard keys its
// cooldown on (load, carrier, template class).
const (
	TemplateETARequest  = "eta_request"
	TemplateDelayedLoad = "delayed_load"
)

// EmailLog records one outbound email attempt, sent or drafted.
//
// DayBucket is the send date as YYYY-MM-DD. Together with LoadID, CarrierID
// and TemplateClass it forms a key suitable for a database-level unique
// constraint when multiple processes share the throttle state.
type EmailLog struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	Recipient     string `gorm:"size:255;not null;index"`
	Subject       string `gorm:"size:500;not null"`
	Body          string `gorm:"type:text;not null"`
	TemplateClass string `gorm:"size:50;index"`
	Status        string `gorm:"size:16;default:pending;not null"`
	MessageID     string `gorm:"size:255;index"`
	FailReason    string `gorm:"type:text"`

	LoadID        *uint  `gorm:"index"`
	CarrierID     *uint  `gorm:"index"`
	SentByAgentID *uint  `gorm:"index"`
	DayBucket     string `gorm:"size:10;index"`

	SentAt    *time.Time
	CreatedAt time.Time `gorm:"index"`

	Load    *Load    `gorm:"foreignKey:LoadID"`
	Carrier *Carrier `gorm:"foreignKey:CarrierID"`
}
