package models

import "time"

// Load statuses. Scheduled, in-transit, and delayed loads count as active.
const (
	LoadScheduled = "scheduled"
	LoadInTransit = "in_transit"
	LoadDelivered = "delivered"
	LoadDelayed   = "delayed"
	LoadCancelled = "cancelled"
)

// ActiveLoadStatuses are the statuses of loads still expected to arrive.
var ActiveLoadStatuses = []string{LoadScheduled, LoadInTransit, LoadDelayed}

// Load is a shipment in flight or scheduled.
//
// LastETAUpdateAt moves only when CurrentETA actually changes value. A no-op
// refresh leaves it alone — that distinguishes "still believed on schedule"
// from "nobody has told us anything new".
type Load struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	PONumber          string `gorm:"size:100;uniqueIndex;not null"`
	CarrierID         uint   `gorm:"index;not null"`
	DestinationSiteID uint   `gorm:"index;not null"`
	OriginTerminal    string `gorm:"size:255"`
	ProductType       string `gorm:"size:50"`
	VolumeGal         float64
	Status            string `gorm:"size:16;default:scheduled;index"`

	CurrentETA                 *time.Time
	LastETAUpdateAt            *time.Time
	ETAStalenessThresholdHours float64 `gorm:"default:4"`

	DriverName      string `gorm:"size:255"`
	DriverPhone     string `gorm:"size:50"`
	LastEmailSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Carrier         *Carrier   `gorm:"foreignKey:CarrierID"`
	DestinationSite *Site      `gorm:"foreignKey:DestinationSiteID"`
	EmailLogs       []EmailLog `gorm:"foreignKey:LoadID"`
}

// IsActive reports whether the load still counts toward a site's inbound fuel.
func (l *Load) IsActive() bool {
	switch l.Status {
	case LoadScheduled, LoadInTransit, LoadDelayed:
		return true
	}
	return false
}
