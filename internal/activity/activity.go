// Package activity writes and queries the append-only agent audit trail.
package activity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"gorm.io/gorm"
)

// LogOpts holds optional parameters for recording an activity.
type LogOpts struct {
	SiteID       *uint
	LoadID       *uint
	DecisionCode string
	Metrics      map[string]float64
}

// Log records one audit entry for an agent decision. Entries are immutable
// once written; corrections are new entries.
func Log(db *gorm.DB, agentID uint, activityType, summary string, opts LogOpts) (*models.Activity, error) {
	if agentID == 0 {
		return nil, fmt.Errorf("activity: agent is required")
	}
	if activityType == "" {
		return nil, fmt.Errorf("activity: type is required")
	}

	var metricsJSON string
	if len(opts.Metrics) > 0 {
		data, err := json.Marshal(opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("activity: encode metrics: %w", err)
		}
		metricsJSON = string(data)
	}

	entry := models.Activity{
		AgentID:      agentID,
		Type:         activityType,
		SiteID:       opts.SiteID,
		LoadID:       opts.LoadID,
		DecisionCode: opts.DecisionCode,
		MetricsJSON:  metricsJSON,
		Summary:      summary,
		CreatedAt:    time.Now(),
	}
	if err := db.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("activity: log: %w", err)
	}

	// LastActivityAt on the agent is a convenience pointer, not part of
	// the audit trail; failure to bump it does not fail the log call.
	db.Model(&models.Agent{}).Where("id = ?", agentID).
		Update("last_activity_at", entry.CreatedAt)

	return &entry, nil
}

// Filter narrows a Recent query.
type Filter struct {
	AgentID uint
	SiteID  uint
	Type    string
	Limit   int
}

// Recent returns the newest activities matching the filter.
func Recent(db *gorm.DB, f Filter) ([]models.Activity, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := db.Order("created_at DESC").Limit(limit)
	if f.AgentID != 0 {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.SiteID != 0 {
		q = q.Where("site_id = ?", f.SiteID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}

	var out []models.Activity
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("activity: recent: %w", err)
	}
	return out, nil
}
