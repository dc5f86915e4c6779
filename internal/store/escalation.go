package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"gorm.io/gorm"
)

// EscalationOpts holds parameters for creating an escalation.
type EscalationOpts struct {
	IssueType        string
	Priority         string
	Description      string
	SiteID           *uint
	LoadID           *uint
	CreatedByAgentID *uint
}

// CreateEscalation opens a new human-facing work item.
func CreateEscalation(db *gorm.DB, opts EscalationOpts) (*models.Escalation, error) {
	if opts.IssueType == "" {
		return nil, fmt.Errorf("store: escalation issue type is required")
	}
	if opts.Description == "" {
		return nil, fmt.Errorf("store: escalation description is required")
	}
	if opts.Priority == "" {
		opts.Priority = models.PriorityMedium
	}

	esc := models.Escalation{
		IssueType:        opts.IssueType,
		Priority:         opts.Priority,
		Status:           models.EscalationOpen,
		Description:      opts.Description,
		SiteID:           opts.SiteID,
		LoadID:           opts.LoadID,
		CreatedByAgentID: opts.CreatedByAgentID,
	}
	if err := db.Create(&esc).Error; err != nil {
		return nil, fmt.Errorf("store: create escalation: %w", err)
	}
	return &esc, nil
}

// EscalationFilter narrows a ListEscalations query.
type EscalationFilter struct {
	Status   string
	Priority string
	SiteID   uint
	Limit    int
}

// ListEscalations returns the newest escalations matching the filter.
func ListEscalations(db *gorm.DB, f EscalationFilter) ([]models.Escalation, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := db.Order("created_at DESC").Limit(limit)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.SiteID != 0 {
		q = q.Where("site_id = ?", f.SiteID)
	}
	var out []models.Escalation
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list escalations: %w", err)
	}
	return out, nil
}

// GetEscalation retrieves an escalation by ID.
func GetEscalation(db *gorm.DB, id uint) (*models.Escalation, error) {
	var esc models.Escalation
	if err := db.First(&esc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("escalation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get escalation %d: %w", id, err)
	}
	return &esc, nil
}

// OpenStaleDataEscalation finds the open stale-data escalation for a site,
// or nil when there is none. The staleness sweep updates this row in place
// instead of opening duplicates.
func OpenStaleDataEscalation(db *gorm.DB, siteID uint) (*models.Escalation, error) {
	var esc models.Escalation
	err := db.Where("site_id = ? AND issue_type = ? AND status <> ?",
		siteID, models.IssueStaleData, models.EscalationResolved).
		Order("created_at DESC").First(&esc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: open stale-data escalation for site %d: %w", siteID, err)
	}
	return &esc, nil
}

// TransitionOpts holds parameters for an escalation status change.
type TransitionOpts struct {
	Status          string
	AssignedTo      string
	ResolutionNotes string
	WasFalseAlarm   bool
}

// TransitionEscalation moves an escalation forward through its lifecycle.
// Transitions only move forward; resolving records the false-alarm flag and
// stamps ResolvedAt. The updated row is returned so the caller can feed the
// knowledge graph.
func TransitionEscalation(db *gorm.DB, id uint, opts TransitionOpts) (*models.Escalation, error) {
	esc, err := GetEscalation(db, id)
	if err != nil {
		return nil, err
	}

	if !validTransition(esc.Status, opts.Status) {
		return nil, fmt.Errorf("store: escalation %d: invalid transition %s → %s", id, esc.Status, opts.Status)
	}

	esc.Status = opts.Status
	if opts.AssignedTo != "" {
		esc.AssignedTo = opts.AssignedTo
	}
	if opts.Status == models.EscalationResolved {
		now := time.Now()
		esc.ResolvedAt = &now
		esc.ResolutionNotes = opts.ResolutionNotes
		esc.WasFalseAlarm = opts.WasFalseAlarm
	}

	if err := db.Save(esc).Error; err != nil {
		return nil, fmt.Errorf("store: transition escalation %d: %w", id, err)
	}
	return esc, nil
}

func validTransition(from, to string) bool {
	for _, next := range models.EscalationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
