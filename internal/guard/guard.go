// Package guard prevents duplicate carrier email within a cooldown window
// and enforces per-carrier daily send caps. Reservation is check-then-act
// under a per-key mutex so two overlapping runs for the same subject cannot
// both send; the EmailLog day-bucket columns support promoting the check to
// a database-level unique constraint for multi-process deployments.
package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"gorm.io/gorm"
)

// Guard holds throttle configuration and the per-key locks.
type Guard struct {
	dailyCap   int
	floorHours float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Guard. dailyCap bounds sends per carrier per day;
// floorHours is the minimum cooldown regardless of SLA.
func New(dailyCap int, floorHours float64) *Guard {
	if dailyCap <= 0 {
		dailyCap = 10
	}
	if floorHours <= 0 {
		floorHours = 1
	}
	return &Guard{
		dailyCap:   dailyCap,
		floorHours: floorHours,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Request identifies one intended carrier email.
type Request struct {
	LoadID        uint
	CarrierID     uint
	TemplateClass string

	// SLAHours is the carrier's response SLA; the cooldown defaults to
	// half of it. CooldownHours overrides that when positive.
	SLAHours      float64
	CooldownHours float64

	// Composed message, stored on the reservation row.
	Recipient     string
	Subject       string
	Body          string
	SentByAgentID *uint
}

// Verdict explains a denied reservation.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Cooldown returns the effective cooldown window for a request.
func (g *Guard) Cooldown(req Request) time.Duration {
	hours := req.CooldownHours
	if hours <= 0 {
		hours = req.SLAHours / 2
	}
	if hours < g.floorHours {
		hours = g.floorHours
	}
	return time.Duration(hours * float64(time.Hour))
}

func (g *Guard) keyLock(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// DayBucket formats the throttle day key.
func DayBucket(now time.Time) string {
	return now.Format("2006-01-02")
}

// Reserve atomically checks the cooldown window and daily cap and, when
// both pass, writes a pending EmailLog row that the executor later marks
// sent or failed. A denied reservation returns a Verdict and no row; the
// caller must record the THROTTLED downgrade, never drop it silently.
func (g *Guard) Reserve(db *gorm.DB, req Request, now time.Time) (*models.EmailLog, *Verdict, error) {
	if req.LoadID == 0 || req.CarrierID == 0 {
		return nil, nil, fmt.Errorf("guard: load and carrier are required")
	}
	if req.TemplateClass == "" {
		return nil, nil, fmt.Errorf("guard: template class is required")
	}

	key := fmt.Sprintf("%d:%d:%s", req.LoadID, req.CarrierID, req.TemplateClass)
	lock := g.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	cooldown := g.Cooldown(req)
	bucket := DayBucket(now)

	var entry *models.EmailLog
	var verdict *Verdict

	err := db.Transaction(func(tx *gorm.DB) error {
		// Cooldown: any sent, still-pending, or drafted email for this
		// (load, carrier, template class) inside the window blocks. Drafts
		// count so draft-only agents do not re-draft every check cycle.
		var recent int64
		if err := tx.Model(&models.EmailLog{}).
			Where("load_id = ? AND carrier_id = ? AND template_class = ? AND status IN ? AND created_at > ?",
				req.LoadID, req.CarrierID, req.TemplateClass,
				[]string{models.EmailSent, models.EmailPending, models.EmailDraft}, now.Add(-cooldown)).
			Count(&recent).Error; err != nil {
			return fmt.Errorf("cooldown check: %w", err)
		}
		if recent > 0 {
			verdict = &Verdict{Reason: fmt.Sprintf("email for this load sent within the last %s", cooldown)}
			return nil
		}

		// Daily cap per carrier.
		var today int64
		if err := tx.Model(&models.EmailLog{}).
			Where("carrier_id = ? AND day_bucket = ? AND status IN ?",
				req.CarrierID, bucket, []string{models.EmailSent, models.EmailPending}).
			Count(&today).Error; err != nil {
			return fmt.Errorf("daily cap check: %w", err)
		}
		if int(today) >= g.dailyCap {
			verdict = &Verdict{Reason: fmt.Sprintf("carrier reached daily cap of %d emails", g.dailyCap)}
			return nil
		}

		loadID, carrierID := req.LoadID, req.CarrierID
		entry = &models.EmailLog{
			Recipient:     req.Recipient,
			Subject:       req.Subject,
			Body:          req.Body,
			TemplateClass: req.TemplateClass,
			Status:        models.EmailPending,
			LoadID:        &loadID,
			CarrierID:     &carrierID,
			SentByAgentID: req.SentByAgentID,
			DayBucket:     bucket,
			CreatedAt:     now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("guard: reserve %s: %w", key, err)
	}
	if verdict != nil {
		return nil, verdict, nil
	}
	return entry, &Verdict{Allowed: true}, nil
}

// Release marks a reservation failed so it stops blocking the cooldown
// window. Used when the send could not be attempted at all; a send whose
// delivery is unknown keeps its pending row, because a duplicate carrier
// email is worse than a missed retry.
func (g *Guard) Release(db *gorm.DB, entryID uint, reason string) error {
	result := db.Model(&models.EmailLog{}).
		Where("id = ? AND status = ?", entryID, models.EmailPending).
		Updates(map[string]interface{}{
			"status":      models.EmailFailed,
			"fail_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("guard: release %d: %w", entryID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("guard: release %d: reservation not found or not pending", entryID)
	}
	return nil
}
