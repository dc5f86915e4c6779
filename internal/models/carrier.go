package models

import "time"

// Carrier is a transport company that hauls loads to sites.
type Carrier struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Name            string `gorm:"size:255;not null"`
	DispatcherEmail string `gorm:"size:255"`
	DispatcherPhone string `gorm:"size:50"`

	// ResponseTimeSLAHours is how long the carrier has to answer an ETA
	// request. The email cooldown window is derived from it.
	ResponseTimeSLAHours float64 `gorm:"default:4"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Loads     []Load     `gorm:"foreignKey:CarrierID"`
	EmailLogs []EmailLog `gorm:"foreignKey:CarrierID"`
}
