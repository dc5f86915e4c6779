package db

import (
	"errors"
	"fmt"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration, leaf entities first.
func AllModels() []interface{} {
	return []interface{}{
		&models.Agent{},
		&models.Site{},
		&models.Carrier{},
		&models.Load{},
		&models.Activity{},
		&models.Escalation{},
		&models.EmailLog{},
		&models.AgentRun{},
		&models.CarrierStats{},
		&models.SiteStats{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// EnsureDefaultAgent creates a stopped draft-only agent when none exists,
// so a fresh install has something to assign sites to.
func EnsureDefaultAgent(db *gorm.DB, name string) (*models.Agent, error) {
	if name == "" {
		name = "coordinator"
	}

	var existing models.Agent
	err := db.Order("id ASC").First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("db: check agents: %w", err)
	}

	agent := models.Agent{
		Name:                 name,
		Status:               models.AgentStopped,
		ExecutionMode:        models.ModeDraftOnly,
		CheckIntervalMinutes: 15,
		TimeAwareEscalation:  true,
		OvernightStartHour:   22,
		OvernightEndHour:     6,
		OvernightMultiplier:  1.5,
	}
	if err := db.Create(&agent).Error; err != nil {
		return nil, fmt.Errorf("db: create default agent: %w", err)
	}
	return &agent, nil
}
