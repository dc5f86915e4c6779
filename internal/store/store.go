// Package store provides the database accessors shared by the orchestrator,
// the HTTP API, and the CLI.
package store

import (
	"errors"
	"fmt"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// GetAgent retrieves an agent by ID.
func GetAgent(db *gorm.DB, id uint) (*models.Agent, error) {
	var agent models.Agent
	if err := db.First(&agent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agent %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get agent %d: %w", id, err)
	}
	return &agent, nil
}

// ListAgents returns all agents ordered by ID.
func ListAgents(db *gorm.DB) ([]models.Agent, error) {
	var agents []models.Agent
	if err := db.Order("id ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	return agents, nil
}

// SetAgentStatus transitions an agent between active/paused/stopped.
func SetAgentStatus(db *gorm.DB, id uint, status string) error {
	switch status {
	case models.AgentActive, models.AgentPaused, models.AgentStopped:
	default:
		return fmt.Errorf("store: invalid agent status %q", status)
	}
	result := db.Model(&models.Agent{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("store: set agent %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("agent %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetSite retrieves a site by ID.
func GetSite(db *gorm.DB, id uint) (*models.Site, error) {
	var site models.Site
	if err := db.First(&site, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("site %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get site %d: %w", id, err)
	}
	return &site, nil
}

// ListSites returns all sites ordered by code.
func ListSites(db *gorm.DB) ([]models.Site, error) {
	var sites []models.Site
	if err := db.Order("code ASC").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("store: list sites: %w", err)
	}
	return sites, nil
}

// SitesForAgent returns the sites assigned to an agent.
func SitesForAgent(db *gorm.DB, agentID uint) ([]models.Site, error) {
	var sites []models.Site
	if err := db.Where("assigned_agent_id = ?", agentID).Order("code ASC").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("store: sites for agent %d: %w", agentID, err)
	}
	return sites, nil
}

// AssignSites assigns sites to an agent. The assignment column is a single
// foreign key, so assigning a site here implicitly removes it from whichever
// agent held it before.
func AssignSites(db *gorm.DB, agentID uint, siteIDs []uint) error {
	if len(siteIDs) == 0 {
		return fmt.Errorf("store: no sites given")
	}
	if _, err := GetAgent(db, agentID); err != nil {
		return err
	}

	result := db.Model(&models.Site{}).Where("id IN ?", siteIDs).
		Update("assigned_agent_id", agentID)
	if result.Error != nil {
		return fmt.Errorf("store: assign sites to agent %d: %w", agentID, result.Error)
	}
	if result.RowsAffected != int64(len(siteIDs)) {
		return fmt.Errorf("store: assigned %d of %d sites; unknown site IDs in request",
			result.RowsAffected, len(siteIDs))
	}
	return nil
}

// GetLoad retrieves a load with its carrier and destination site preloaded.
func GetLoad(db *gorm.DB, id uint) (*models.Load, error) {
	var load models.Load
	err := db.Preload("Carrier").Preload("DestinationSite").First(&load, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get load %d: %w", id, err)
	}
	return &load, nil
}

// ActiveLoadsForSite returns the loads still inbound to a site, with
// carriers preloaded, nearest ETA first.
func ActiveLoadsForSite(db *gorm.DB, siteID uint) ([]models.Load, error) {
	var loads []models.Load
	err := db.Preload("Carrier").
		Where("destination_site_id = ? AND status IN ?", siteID, models.ActiveLoadStatuses).
		Order("current_eta ASC").Find(&loads).Error
	if err != nil {
		return nil, fmt.Errorf("store: active loads for site %d: %w", siteID, err)
	}
	return loads, nil
}

// GetCarrier retrieves a carrier by ID.
func GetCarrier(db *gorm.DB, id uint) (*models.Carrier, error) {
	var carrier models.Carrier
	if err := db.First(&carrier, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("carrier %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get carrier %d: %w", id, err)
	}
	return &carrier, nil
}

// ListRuns returns the newest runs, optionally filtered by agent.
func ListRuns(db *gorm.DB, agentID uint, limit int) ([]models.AgentRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := db.Order("id DESC").Limit(limit)
	if agentID != 0 {
		q = q.Where("agent_id = ?", agentID)
	}
	var runs []models.AgentRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}
