package models

import "time"

// Site is a monitored fuel location.
//
// Constraint fields (TankCapacityGal, ConsumptionRateGPH, thresholds) are
// mutated only by explicit configuration operations. State fields
// (CurrentInventoryGal, HoursToRunout) are mutated only by snapshot
// ingestion or explicit override, which must refresh LastInventoryUpdateAt —
// unless the ingested value equals the stored value, in which case the
// timestamp is left alone. Staleness detection depends on that.
type Site struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Code    string `gorm:"size:50;uniqueIndex;not null"`
	Name    string `gorm:"size:255;not null"`
	Address string `gorm:"type:text"`

	TankCapacityGal    float64
	ConsumptionRateGPH float64

	CurrentInventoryGal float64 `gorm:"default:0"`
	HoursToRunout       float64

	RunoutThresholdHours             float64 `gorm:"default:48"`
	InventoryStalenessThresholdHours float64 `gorm:"default:2"`
	LastInventoryUpdateAt            *time.Time

	Notes           string `gorm:"type:text"`
	AssignedAgentID *uint  `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time

	AssignedAgent *Agent       `gorm:"foreignKey:AssignedAgentID"`
	Loads         []Load       `gorm:"foreignKey:DestinationSiteID"`
	Escalations   []Escalation `gorm:"foreignKey:SiteID"`
}
