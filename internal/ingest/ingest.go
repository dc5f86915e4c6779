// Package ingest applies telemetry snapshots to the data model. A snapshot
// carries observed state only — inventory readings and load ETAs — never
// configuration. Rows are validated and applied independently: a bad row is
// rejected and reported, the rest of the batch still lands.
package ingest

import (
	"fmt"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/kgraph"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"gorm.io/gorm"
)

// Snapshot is one telemetry batch.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Sites     []SiteRow `json:"sites"`
	Loads     []LoadRow `json:"loads"`
}

// SiteRow is one site state observation. It deliberately has no constraint
// fields — tank capacity and thresholds cannot arrive through telemetry.
type SiteRow struct {
	SiteCode      string  `json:"site_code"`
	InventoryGal  float64 `json:"inventory_gal"`
	HoursToRunout float64 `json:"hours_to_runout"`
}

// LoadRow is one load state observation.
type LoadRow struct {
	PONumber   string     `json:"po_number"`
	Status     string     `json:"status"`
	ETA        *time.Time `json:"eta"`
	DriverName string     `json:"driver_name"`
}

// Rejection reports one row that could not be applied.
type Rejection struct {
	Kind   string `json:"kind"` // "site" or "load"
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Result summarizes one applied snapshot.
type Result struct {
	SitesApplied int         `json:"sites_applied"`
	LoadsApplied int         `json:"loads_applied"`
	Rejected     []Rejection `json:"rejected"`
	Delivered    []uint      `json:"delivered_load_ids,omitempty"`
}

// ApplyInventory writes an inventory observation onto a site. The staleness
// timestamp moves only when the value actually changed; re-sending the same
// reading must not look like fresh data.
func ApplyInventory(site *models.Site, inventoryGal, hoursToRunout float64, at time.Time) {
	changed := site.CurrentInventoryGal != inventoryGal
	site.CurrentInventoryGal = inventoryGal
	site.HoursToRunout = hoursToRunout
	if changed {
		site.LastInventoryUpdateAt = &at
	}
}

// ApplyETA writes an ETA observation onto a load, moving LastETAUpdateAt
// only on a value change. It reports whether the value changed.
func ApplyETA(load *models.Load, eta *time.Time, at time.Time) bool {
	if eta == nil {
		return false
	}
	if load.CurrentETA == nil || !load.CurrentETA.Equal(*eta) {
		load.CurrentETA = eta
		load.LastETAUpdateAt = &at
		return true
	}
	return false
}

func validStatus(s string) bool {
	switch s {
	case "", models.LoadScheduled, models.LoadInTransit, models.LoadDelivered,
		models.LoadDelayed, models.LoadCancelled:
		return true
	}
	return false
}

// Apply lands a snapshot. Identical re-ingestion is a no-op: values that
// match stored state change nothing, including staleness timestamps.
// Loads observed as delivered are reported in Result.Delivered so the
// caller can feed the knowledge graph.
func Apply(db *gorm.DB, snap Snapshot) (*Result, error) {
	if snap.Timestamp.IsZero() {
		return nil, fmt.Errorf("ingest: snapshot timestamp is required")
	}

	res := &Result{}

	for _, row := range snap.Sites {
		if err := applySiteRow(db, row, snap.Timestamp); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Kind: "site", Key: row.SiteCode, Reason: err.Error()})
			continue
		}
		res.SitesApplied++
	}

	for _, row := range snap.Loads {
		delivered, err := applyLoadRow(db, row, snap.Timestamp)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Kind: "load", Key: row.PONumber, Reason: err.Error()})
			continue
		}
		res.LoadsApplied++
		if delivered != 0 {
			res.Delivered = append(res.Delivered, delivered)
		}
	}

	return res, nil
}

func applySiteRow(db *gorm.DB, row SiteRow, at time.Time) error {
	if row.SiteCode == "" {
		return fmt.Errorf("site code is required")
	}
	if row.InventoryGal < 0 {
		return fmt.Errorf("negative inventory %.1f", row.InventoryGal)
	}
	if row.HoursToRunout < 0 {
		return fmt.Errorf("negative hours to runout %.1f", row.HoursToRunout)
	}

	var site models.Site
	if err := db.Where("code = ?", row.SiteCode).First(&site).Error; err != nil {
		return fmt.Errorf("unknown site %q", row.SiteCode)
	}

	ApplyInventory(&site, row.InventoryGal, row.HoursToRunout, at)
	if err := db.Save(&site).Error; err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// applyLoadRow returns the load ID when this row transitioned the load to
// delivered, zero otherwise.
func applyLoadRow(db *gorm.DB, row LoadRow, at time.Time) (uint, error) {
	if row.PONumber == "" {
		return 0, fmt.Errorf("po number is required")
	}
	if !validStatus(row.Status) {
		return 0, fmt.Errorf("unknown status %q", row.Status)
	}

	var load models.Load
	if err := db.Where("po_number = ?", row.PONumber).First(&load).Error; err != nil {
		return 0, fmt.Errorf("unknown load %q", row.PONumber)
	}
	if row.ETA != nil && row.ETA.Before(load.CreatedAt) {
		return 0, fmt.Errorf("eta %s predates the shipment", row.ETA.Format(time.RFC3339))
	}

	wasDelivered := load.Status == models.LoadDelivered
	prevETAUpdate := load.LastETAUpdateAt
	etaChanged := ApplyETA(&load, row.ETA, at)
	if row.Status != "" {
		load.Status = row.Status
	}
	if row.DriverName != "" {
		load.DriverName = row.DriverName
	}
	if err := db.Save(&load).Error; err != nil {
		return 0, fmt.Errorf("save: %v", err)
	}

	// The first ETA change after an outbound request is the carrier's
	// reply; it feeds the response-rate side of the reliability score.
	if etaChanged && load.LastEmailSentAt != nil &&
		(prevETAUpdate == nil || prevETAUpdate.Before(*load.LastEmailSentAt)) {
		if err := kgraph.OnETAResponse(db, load.CarrierID, load.LastEmailSentAt, at); err != nil {
			return 0, fmt.Errorf("record eta response: %v", err)
		}
	}

	if !wasDelivered && load.Status == models.LoadDelivered {
		return load.ID, nil
	}
	return 0, nil
}
