// Package executor applies decisions: it is the only component that
// produces external side effects. Every decision it handles writes an
// Activity row; the execution mode gates only whether email actually
// leaves the building.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/activity"
	"github.com/fuelwatch/fuelwatch/internal/guard"
	"github.com/fuelwatch/fuelwatch/internal/kgraph"
	"github.com/fuelwatch/fuelwatch/internal/mail"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/rules"
	"github.com/fuelwatch/fuelwatch/internal/store"
	"gorm.io/gorm"
)

// Executor turns decisions into escalations, emails, and audit entries.
type Executor struct {
	db     *gorm.DB
	guard  *guard.Guard
	sender mail.Sender

	// MaxSendAttempts bounds email delivery retries; RetryBackoff is the
	// base delay between attempts, multiplied by the attempt number.
	MaxSendAttempts int
	RetryBackoff    time.Duration

	// ReplyAddress is stamped into outbound templates.
	ReplyAddress string
}

// New creates an Executor with default retry bounds.
func New(db *gorm.DB, g *guard.Guard, sender mail.Sender) *Executor {
	return &Executor{
		db:              db,
		guard:           g,
		sender:          sender,
		MaxSendAttempts: 3,
		RetryBackoff:    2 * time.Second,
	}
}

// Outcome reports what a decision turned into.
type Outcome struct {
	ActivityType string
	Escalation   *models.Escalation
	EmailLog     *models.EmailLog
	Throttled    bool
}

// Execute applies one terminal decision for the given agent. Ambiguous
// decisions must be resolved by Tier 2 before they reach here.
func (e *Executor) Execute(ctx context.Context, agent *models.Agent, d rules.Decision) (*Outcome, error) {
	switch d.Kind {
	case rules.ActionCreateEscalation:
		return e.createEscalation(agent, d)
	case rules.ActionSendEmail:
		return e.sendEmail(ctx, agent, d)
	case rules.ActionLogNote:
		return e.logNote(agent, d)
	case rules.ActionFlagAmbiguous:
		return nil, fmt.Errorf("executor: ambiguous decision for site %d reached execution", d.SiteID)
	default:
		return nil, fmt.Errorf("executor: unknown action kind %q", d.Kind)
	}
}

func (e *Executor) createEscalation(agent *models.Agent, d rules.Decision) (*Outcome, error) {
	siteID := d.SiteID
	esc, err := store.CreateEscalation(e.db, store.EscalationOpts{
		IssueType:        d.Issue,
		Priority:         d.Priority,
		Description:      d.Description,
		SiteID:           &siteID,
		LoadID:           d.LoadID,
		CreatedByAgentID: &agent.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	e.logActivity(agent.ID, models.ActivityEscalationCreated, d,
		fmt.Sprintf("escalated (%s): %s", esc.Priority, d.Description))

	return &Outcome{ActivityType: models.ActivityEscalationCreated, Escalation: esc}, nil
}

func (e *Executor) logNote(agent *models.Agent, d rules.Decision) (*Outcome, error) {
	e.logActivity(agent.ID, models.ActivityObservation, d, d.Description)
	return &Outcome{ActivityType: models.ActivityObservation}, nil
}

func (e *Executor) sendEmail(ctx context.Context, agent *models.Agent, d rules.Decision) (*Outcome, error) {
	if d.LoadID == nil || d.CarrierID == nil {
		return nil, fmt.Errorf("executor: email decision %s lacks load or carrier", d.Code)
	}

	load, err := store.GetLoad(e.db, *d.LoadID)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	carrier := load.Carrier
	if carrier == nil {
		if carrier, err = store.GetCarrier(e.db, *d.CarrierID); err != nil {
			return nil, fmt.Errorf("executor: %w", err)
		}
	}

	if carrier.DispatcherEmail == "" {
		// Nobody to email. Escalate so a human chases the carrier by phone.
		return e.createEscalation(agent, rules.Decision{
			Kind:     rules.ActionCreateEscalation,
			Code:     d.Code,
			Priority: models.PriorityMedium,
			Issue:    models.IssueNoCarrierResponse,
			SiteID:   d.SiteID, LoadID: d.LoadID, CarrierID: d.CarrierID,
			Description: fmt.Sprintf("cannot email carrier %s about %s: no dispatcher email on file",
				carrier.Name, load.PONumber),
			Metrics: d.Metrics,
		})
	}

	msg := e.compose(d, load, carrier)

	entry, verdict, err := e.guard.Reserve(e.db, guard.Request{
		LoadID:        load.ID,
		CarrierID:     carrier.ID,
		TemplateClass: d.TemplateClass,
		SLAHours:      carrier.ResponseTimeSLAHours,
		CooldownHours: d.CooldownHours,
		Recipient:     carrier.DispatcherEmail,
		Subject:       msg.Subject,
		Body:          msg.Body,
		SentByAgentID: &agent.ID,
	}, time.Now())
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	if !verdict.Allowed {
		// The downgrade is recorded, never silent.
		e.logActivity(agent.ID, models.ActivityThrottled, throttled(d),
			fmt.Sprintf("%s suppressed for %s: %s", d.Code, load.PONumber, verdict.Reason))
		return &Outcome{ActivityType: models.ActivityThrottled, Throttled: true}, nil
	}

	if agent.ExecutionMode == models.ModeDraftOnly {
		if err := e.db.Model(entry).Update("status", models.EmailDraft).Error; err != nil {
			return nil, fmt.Errorf("executor: mark draft: %w", err)
		}
		entry.Status = models.EmailDraft
		e.logActivity(agent.ID, models.ActivityEmailDrafted, d,
			fmt.Sprintf("drafted %q to %s (draft-only mode)", msg.Subject, carrier.DispatcherEmail))
		return &Outcome{ActivityType: models.ActivityEmailDrafted, EmailLog: entry}, nil
	}

	messageID, sendErr := e.deliver(ctx, msg)
	if sendErr != nil {
		if err := e.guard.Release(e.db, entry.ID, sendErr.Error()); err != nil {
			log.Printf("executor: %v", err)
		}
		// Exhausted retries become a human problem, not a dropped email.
		return e.createEscalation(agent, rules.Decision{
			Kind:     rules.ActionCreateEscalation,
			Code:     d.Code,
			Priority: models.PriorityMedium,
			Issue:    models.IssueNoCarrierResponse,
			SiteID:   d.SiteID, LoadID: d.LoadID, CarrierID: d.CarrierID,
			Description: fmt.Sprintf("could not deliver %s email for %s after %d attempts: %v",
				d.TemplateClass, load.PONumber, e.MaxSendAttempts, sendErr),
			Metrics: d.Metrics,
		})
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":     models.EmailSent,
		"message_id": messageID,
		"sent_at":    now,
	}
	if err := e.db.Model(entry).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("executor: mark sent: %w", err)
	}
	entry.Status = models.EmailSent
	e.db.Model(&models.Load{}).Where("id = ?", load.ID).Update("last_email_sent_at", now)

	if d.TemplateClass == models.TemplateETARequest {
		if err := kgraph.OnETARequestSent(e.db, carrier.ID); err != nil {
			log.Printf("executor: record eta request: %v", err)
		}
	}

	e.logActivity(agent.ID, models.ActivityEmailSent, d,
		fmt.Sprintf("sent %q to %s", msg.Subject, carrier.DispatcherEmail))
	return &Outcome{ActivityType: models.ActivityEmailSent, EmailLog: entry}, nil
}

// deliver attempts the send with bounded retries and linear backoff.
func (e *Executor) deliver(ctx context.Context, msg mail.Message) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= e.MaxSendAttempts; attempt++ {
		id, err := e.sender.Send(ctx, msg)
		if err == nil {
			return id, nil
		}
		lastErr = err
		log.Printf("executor: send to %s attempt %d/%d: %v", msg.To, attempt, e.MaxSendAttempts, err)

		if attempt < e.MaxSendAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	return "", lastErr
}

func (e *Executor) compose(d rules.Decision, load *models.Load, carrier *models.Carrier) mail.Message {
	view := mail.LoadView{
		PONumber:     load.PONumber,
		CarrierName:  carrier.Name,
		ProductType:  load.ProductType,
		VolumeGal:    load.VolumeGal,
		CurrentETA:   load.CurrentETA,
		DriverName:   load.DriverName,
		DriverPhone:  load.DriverPhone,
		ReplyAddress: e.ReplyAddress,
	}
	if site := load.DestinationSite; site != nil {
		view.SiteName = site.Name
		view.SiteCode = site.Code
		view.SiteAddress = site.Address
	}

	if d.TemplateClass == models.TemplateDelayedLoad {
		return mail.ComposeDelayedLoad(view)
	}
	return mail.ComposeETARequest(view)
}

func (e *Executor) logActivity(agentID uint, activityType string, d rules.Decision, summary string) {
	siteID := d.SiteID
	opts := activity.LogOpts{
		LoadID:       d.LoadID,
		DecisionCode: d.Code,
		Metrics:      d.Metrics,
	}
	if siteID != 0 {
		opts.SiteID = &siteID
	}
	if _, err := activity.Log(e.db, agentID, activityType, summary, opts); err != nil {
		log.Printf("executor: %v", err)
	}
}

func throttled(d rules.Decision) rules.Decision {
	d.Code = rules.CodeThrottled
	return d
}
