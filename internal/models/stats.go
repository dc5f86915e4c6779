package models

import "time"

// CarrierStats holds derived reliability aggregates for a carrier. Rows are
// recomputed from events, never authored directly; the knowledge graph owns
// no primary state.
type CarrierStats struct {
	CarrierID uint `gorm:"primaryKey"`

	TotalDeliveries  int `gorm:"default:0"`
	OnTimeDeliveries int `gorm:"default:0"`
	LateDeliveries   int `gorm:"default:0"`

	TotalETARequests     int `gorm:"default:0"`
	ETAResponsesReceived int `gorm:"default:0"`
	AvgResponseTimeHours float64
	AvgDelayHours        float64
	WorstDelayHours      float64

	// ReliabilityScore ranges 0 (worst) to 1 (best); 0.5 means no data.
	ReliabilityScore  float64 `gorm:"default:0.5"`
	FlaggedUnreliable bool    `gorm:"default:false"`

	UpdatedAt time.Time

	Carrier *Carrier `gorm:"foreignKey:CarrierID"`
}

// SiteStats holds derived escalation-history aggregates for a site.
type SiteStats struct {
	SiteID uint `gorm:"primaryKey"`

	TotalEscalations int `gorm:"default:0"`
	FalseAlarmCount  int `gorm:"default:0"`
	FalseAlarmRate   float64

	TotalDeliveriesReceived int `gorm:"default:0"`

	UpdatedAt time.Time

	Site *Site `gorm:"foreignKey:SiteID"`
}
