// Package kgraph derives reliability aggregates from operational history.
// All aggregates are recomputed on demand from events; the package owns no
// primary state and never blocks Tier-1 evaluation — lookups degrade to
// neutral defaults instead of returning errors.
package kgraph

import (
	"errors"
	"log"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"gorm.io/gorm"
)

// NeutralScore is returned when a carrier has no delivery history. It is
// treated as neither reliable nor unreliable.
const NeutralScore = 0.5

// CarrierScore is the reliability lookup result consumed by Tier 1.
type CarrierScore struct {
	Score float64
	// Known is false when there is no history and Score is the neutral
	// default.
	Known bool
}

// CarrierReliability returns the carrier's reliability score. Lookup
// failures and missing rows yield the neutral default, never an error.
func CarrierReliability(db *gorm.DB, carrierID uint) CarrierScore {
	var stats models.CarrierStats
	err := db.Where("carrier_id = ?", carrierID).First(&stats).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("kgraph: carrier %d reliability lookup: %v", carrierID, err)
		}
		return CarrierScore{Score: NeutralScore}
	}
	if stats.TotalDeliveries == 0 && stats.TotalETARequests == 0 {
		return CarrierScore{Score: NeutralScore}
	}
	return CarrierScore{Score: stats.ReliabilityScore, Known: true}
}

// SiteFalseAlarmRate returns the fraction of a site's resolved escalations
// that turned out to be non-issues. No history yields zero.
func SiteFalseAlarmRate(db *gorm.DB, siteID uint) float64 {
	var stats models.SiteStats
	err := db.Where("site_id = ?", siteID).First(&stats).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("kgraph: site %d false-alarm lookup: %v", siteID, err)
		}
		return 0
	}
	return stats.FalseAlarmRate
}

// computeReliability weights on-time delivery rate 70% and ETA-request
// response rate 30%, clamped to [0, 1].
func computeReliability(stats *models.CarrierStats) float64 {
	if stats.TotalDeliveries == 0 {
		return NeutralScore
	}
	onTimeRate := float64(stats.OnTimeDeliveries) / float64(stats.TotalDeliveries)

	responseRate := 1.0
	if stats.TotalETARequests > 0 {
		responseRate = float64(stats.ETAResponsesReceived) / float64(stats.TotalETARequests)
	}

	score := onTimeRate*0.7 + responseRate*0.3
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func ensureCarrierStats(db *gorm.DB, carrierID uint) (*models.CarrierStats, error) {
	var stats models.CarrierStats
	err := db.Where("carrier_id = ?", carrierID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = models.CarrierStats{CarrierID: carrierID, ReliabilityScore: NeutralScore}
		err = db.Create(&stats).Error
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func ensureSiteStats(db *gorm.DB, siteID uint) (*models.SiteStats, error) {
	var stats models.SiteStats
	err := db.Where("site_id = ?", siteID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = models.SiteStats{SiteID: siteID}
		err = db.Create(&stats).Error
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// OnLoadDelivered folds a delivery outcome into the carrier's aggregates.
// Late means the actual arrival came after the last communicated ETA.
func OnLoadDelivered(db *gorm.DB, load *models.Load, actual time.Time) error {
	stats, err := ensureCarrierStats(db, load.CarrierID)
	if err != nil {
		return err
	}

	stats.TotalDeliveries++
	if load.CurrentETA != nil && actual.After(*load.CurrentETA) {
		delay := actual.Sub(*load.CurrentETA).Hours()
		stats.LateDeliveries++
		if stats.AvgDelayHours > 0 {
			stats.AvgDelayHours = (stats.AvgDelayHours*float64(stats.LateDeliveries-1) + delay) / float64(stats.LateDeliveries)
		} else {
			stats.AvgDelayHours = delay
		}
		if delay > stats.WorstDelayHours {
			stats.WorstDelayHours = delay
		}
	} else {
		stats.OnTimeDeliveries++
	}

	stats.ReliabilityScore = computeReliability(stats)
	stats.FlaggedUnreliable = stats.ReliabilityScore < 0.4
	if err := db.Save(stats).Error; err != nil {
		return err
	}

	siteStats, err := ensureSiteStats(db, load.DestinationSiteID)
	if err != nil {
		return err
	}
	siteStats.TotalDeliveriesReceived++
	return db.Save(siteStats).Error
}

// OnETARequestSent counts an outbound ETA request toward the carrier's
// response-rate denominator.
func OnETARequestSent(db *gorm.DB, carrierID uint) error {
	stats, err := ensureCarrierStats(db, carrierID)
	if err != nil {
		return err
	}
	stats.TotalETARequests++
	stats.ReliabilityScore = computeReliability(stats)
	stats.FlaggedUnreliable = stats.ReliabilityScore < 0.4
	return db.Save(stats).Error
}

// OnETAResponse records a carrier reply to an ETA request and folds the
// response latency into the running average.
func OnETAResponse(db *gorm.DB, carrierID uint, requestSentAt *time.Time, now time.Time) error {
	stats, err := ensureCarrierStats(db, carrierID)
	if err != nil {
		return err
	}
	stats.ETAResponsesReceived++
	if requestSentAt != nil {
		hours := now.Sub(*requestSentAt).Hours()
		n := float64(stats.ETAResponsesReceived)
		if stats.AvgResponseTimeHours > 0 {
			stats.AvgResponseTimeHours = (stats.AvgResponseTimeHours*(n-1) + hours) / n
		} else {
			stats.AvgResponseTimeHours = hours
		}
	}
	stats.ReliabilityScore = computeReliability(stats)
	stats.FlaggedUnreliable = stats.ReliabilityScore < 0.4
	return db.Save(stats).Error
}

// OnEscalationResolved folds a resolution into the site's false-alarm rate.
func OnEscalationResolved(db *gorm.DB, esc *models.Escalation, wasFalseAlarm bool) error {
	if esc.SiteID == nil {
		return nil
	}
	stats, err := ensureSiteStats(db, *esc.SiteID)
	if err != nil {
		return err
	}
	stats.TotalEscalations++
	if wasFalseAlarm {
		stats.FalseAlarmCount++
	}
	stats.FalseAlarmRate = float64(stats.FalseAlarmCount) / float64(stats.TotalEscalations)
	return db.Save(stats).Error
}
