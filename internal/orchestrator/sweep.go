package orchestrator

import (
	"fmt"
	"log"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/staleness"
	"github.com/fuelwatch/fuelwatch/internal/store"
	"gorm.io/gorm"
)

// SweepResult summarizes one staleness sweep.
type SweepResult struct {
	SitesChecked int
	StaleSites   int
	Created      int
	Updated      int
}

// SweepStaleness checks every site for stale inventory telemetry and keeps
// one open stale-data escalation per affected site: an existing open one is
// refreshed in place rather than duplicated. Priority scales with how far
// past the threshold the data is.
func SweepStaleness(db *gorm.DB, now time.Time) (*SweepResult, error) {
	sites, err := store.ListSites(db)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: sweep: %w", err)
	}

	res := &SweepResult{SitesChecked: len(sites)}
	for i := range sites {
		site := &sites[i]
		eval := staleness.Evaluate(site.LastInventoryUpdateAt, site.InventoryStalenessThresholdHours, now)
		if !eval.Stale {
			continue
		}
		res.StaleSites++

		desc := sweepDescription(site, eval)

		existing, err := store.OpenStaleDataEscalation(db, site.ID)
		if err != nil {
			log.Printf("orchestrator: sweep site %s: %v", site.Code, err)
			continue
		}
		if existing != nil {
			updates := map[string]interface{}{
				"description": desc,
				"priority":    sweepPriority(eval.Hours, site.InventoryStalenessThresholdHours),
			}
			if err := db.Model(existing).Updates(updates).Error; err != nil {
				log.Printf("orchestrator: sweep refresh escalation %d: %v", existing.ID, err)
				continue
			}
			res.Updated++
			continue
		}

		siteID := site.ID
		if _, err := store.CreateEscalation(db, store.EscalationOpts{
			IssueType:   models.IssueStaleData,
			Priority:    sweepPriority(eval.Hours, site.InventoryStalenessThresholdHours),
			Description: desc,
			SiteID:      &siteID,
		}); err != nil {
			log.Printf("orchestrator: sweep escalate site %s: %v", site.Code, err)
			continue
		}
		res.Created++
	}

	return res, nil
}

// sweepPriority scales with the staleness ratio: more than twice the
// threshold is critical, more than 1.5x is high, the rest medium.
func sweepPriority(hours, threshold float64) string {
	if threshold <= 0 {
		return models.PriorityMedium
	}
	switch {
	case hours > threshold*2:
		return models.PriorityCritical
	case hours > threshold*1.5:
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}

func sweepDescription(site *models.Site, eval staleness.Result) string {
	if site.LastInventoryUpdateAt == nil {
		return fmt.Sprintf("Inventory data for %s is stale: no update has ever been received (threshold %.0fh).",
			site.Code, site.InventoryStalenessThresholdHours)
	}
	return fmt.Sprintf("Inventory data for %s is stale: no updates for %.1fh (threshold %.0fh). Last update: %s.",
		site.Code, eval.Hours, site.InventoryStalenessThresholdHours,
		site.LastInventoryUpdateAt.Format("2006-01-02 15:04"))
}
