// Package tier2 is the bounded LLM disambiguation agent. Tier 1 hands it
// only the subjects it could not classify (stale data near a threshold);
// tier2 runs a capped tool-call loop and always terminates in exactly one
// action. When the loop cannot reach a confident conclusion it falls back
// to a medium-priority escalation rather than guessing.
package tier2

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/kgraph"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/rules"
	"github.com/fuelwatch/fuelwatch/internal/staleness"
	"gorm.io/gorm"
)

// Agent runs the disambiguation loop.
type Agent struct {
	db       *gorm.DB
	runner   Runner
	maxTurns int
	timeout  time.Duration
}

// New creates a disambiguation agent. maxTurns and timeout bound every
// Resolve call; zero values get conservative defaults.
func New(db *gorm.DB, runner Runner, maxTurns int, timeout time.Duration) *Agent {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Agent{db: db, runner: runner, maxTurns: maxTurns, timeout: timeout}
}

// Resolve turns one ambiguous decision into a terminal one. It never
// returns an ambiguous decision and never returns an error: every failure
// path collapses into the fallback escalation.
func (a *Agent) Resolve(ctx context.Context, subject rules.Decision) rules.Decision {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	transcript := a.buildPrompt(subject)

	for turn := 0; turn < a.maxTurns; turn++ {
		reply, err := a.runner.Run(ctx, transcript)
		if err != nil {
			log.Printf("tier2: site %d: turn %d failed: %v", subject.SiteID, turn+1, err)
			return a.fallback(subject, fmt.Sprintf("runner failed on turn %d", turn+1))
		}

		directive, arg := parseReply(reply)
		switch directive {
		case dirCheckSite:
			transcript = a.appendToolResult(transcript, reply, "site", a.lookupSite(arg))
		case dirCheckLoad:
			transcript = a.appendToolResult(transcript, reply, "load", a.lookupLoad(arg))
		case dirSendEmail:
			if d, ok := a.emailDecision(subject); ok {
				return d
			}
			// No load to email about; treat as inconclusive.
			return a.fallback(subject, "requested an email but the subject has no associated load")
		case dirEscalate:
			return a.escalateDecision(subject, arg)
		case dirAddNote:
			return rules.Decision{
				Kind:        rules.ActionLogNote,
				Code:        subject.Code,
				SiteID:      subject.SiteID,
				LoadID:      subject.LoadID,
				CarrierID:   subject.CarrierID,
				Description: arg,
				Metrics:     subject.Metrics,
			}
		case dirNoAction:
			return rules.Decision{
				Kind:        rules.ActionLogNote,
				Code:        subject.Code,
				SiteID:      subject.SiteID,
				LoadID:      subject.LoadID,
				CarrierID:   subject.CarrierID,
				Description: fmt.Sprintf("no action needed: %s", arg),
				Metrics:     subject.Metrics,
			}
		default:
			return a.fallback(subject, "unrecognized response")
		}
	}

	return a.fallback(subject, fmt.Sprintf("turn budget of %d exhausted", a.maxTurns))
}

// fallback is the conservative terminal outcome: a medium escalation so a
// human looks at the ambiguity instead of the system guessing.
func (a *Agent) fallback(subject rules.Decision, reason string) rules.Decision {
	return rules.Decision{
		Kind:      rules.ActionCreateEscalation,
		Code:      rules.CodeTier2Fallback,
		Priority:  models.PriorityMedium,
		Issue:     models.IssueStaleData,
		SiteID:    subject.SiteID,
		LoadID:    subject.LoadID,
		CarrierID: subject.CarrierID,
		Description: fmt.Sprintf("automated disambiguation inconclusive (%s); original finding: %s",
			reason, subject.Description),
		Metrics: subject.Metrics,
	}
}

func (a *Agent) escalateDecision(subject rules.Decision, arg string) rules.Decision {
	priority, reason := models.PriorityMedium, arg
	if before, after, found := strings.Cut(arg, ":"); found {
		switch strings.ToLower(strings.TrimSpace(before)) {
		case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical:
			priority = strings.ToLower(strings.TrimSpace(before))
			reason = strings.TrimSpace(after)
		}
	}
	return rules.Decision{
		Kind:        rules.ActionCreateEscalation,
		Code:        subject.Code,
		Priority:    priority,
		Issue:       models.IssueStaleData,
		SiteID:      subject.SiteID,
		LoadID:      subject.LoadID,
		CarrierID:   subject.CarrierID,
		Description: reason,
		Metrics:     subject.Metrics,
	}
}

// emailDecision maps a SEND_EMAIL directive onto the subject's load. When
// the ambiguous subject is site-level, the first active load for the site
// is used; without one there is nobody to email.
func (a *Agent) emailDecision(subject rules.Decision) (rules.Decision, bool) {
	loadID, carrierID := subject.LoadID, subject.CarrierID
	if loadID == nil {
		var load models.Load
		err := a.db.Where("destination_site_id = ? AND status IN ?", subject.SiteID, models.ActiveLoadStatuses).
			Order("current_eta ASC").First(&load).Error
		if err != nil {
			return rules.Decision{}, false
		}
		loadID, carrierID = &load.ID, &load.CarrierID
	}
	return rules.Decision{
		Kind:          rules.ActionSendEmail,
		Code:          rules.CodeStaleETARequest,
		SiteID:        subject.SiteID,
		LoadID:        loadID,
		CarrierID:     carrierID,
		TemplateClass: models.TemplateETARequest,
		Description:   "requesting ETA update to resolve stale site data",
		Metrics:       subject.Metrics,
	}, true
}

// buildPrompt assembles the initial prompt: role, the ambiguous finding,
// current site context, and the action vocabulary.
func (a *Agent) buildPrompt(subject rules.Decision) string {
	var b strings.Builder

	b.WriteString("You are a fuel logistics coordinator. Tier-1 rules flagged an ambiguous condition that needs your judgment.\n\n")

	b.WriteString("## Finding\n")
	fmt.Fprintf(&b, "%s\n", subject.Description)
	for k, v := range subject.Metrics {
		fmt.Fprintf(&b, "- %s: %.2f\n", k, v)
	}
	b.WriteString("\n")

	var site models.Site
	if err := a.db.First(&site, subject.SiteID).Error; err == nil {
		b.WriteString("## Site\n")
		fmt.Fprintf(&b, "- ID: %d\n", site.ID)
		fmt.Fprintf(&b, "- Code: %s (%s)\n", site.Code, site.Name)
		fmt.Fprintf(&b, "- Inventory: %.0f gal, %.1fh to runout\n", site.CurrentInventoryGal, site.HoursToRunout)
		if site.LastInventoryUpdateAt != nil {
			fmt.Fprintf(&b, "- Last inventory update: %s\n", site.LastInventoryUpdateAt.Format(time.RFC3339))
		} else {
			b.WriteString("- Last inventory update: never\n")
		}

		var loads []models.Load
		a.db.Where("destination_site_id = ? AND status IN ?", site.ID, models.ActiveLoadStatuses).Find(&loads)
		if len(loads) > 0 {
			b.WriteString("\n## Inbound Loads\n")
			for _, l := range loads {
				eta := "no ETA"
				if l.CurrentETA != nil {
					eta = l.CurrentETA.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(&b, "- ID %d: %s (%s, %s)\n", l.ID, l.PONumber, l.Status, eta)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Available Actions\n")
	b.WriteString("Respond with exactly ONE of these on a single line:\n")
	b.WriteString("- CHECK_SITE:<id> — look up current site state (I will answer and you continue)\n")
	b.WriteString("- CHECK_LOAD:<id> — look up a load with carrier reliability (I will answer and you continue)\n")
	b.WriteString("- SEND_EMAIL — request an ETA update from the inbound load's carrier\n")
	b.WriteString("- ESCALATE:<priority>:<reason> — create a human escalation (low|medium|high|critical)\n")
	b.WriteString("- ADD_NOTE:<text> — record an observation, no external action\n")
	b.WriteString("- NO_ACTION:<reason> — nothing needed\n")

	return b.String()
}

// appendToolResult carries one tool exchange into the next turn's prompt.
func (a *Agent) appendToolResult(transcript, reply, kind string, result string) string {
	var b strings.Builder
	b.WriteString(transcript)
	b.WriteString("\n\n## Your previous response\n")
	b.WriteString(strings.TrimSpace(reply))
	fmt.Fprintf(&b, "\n\n## %s lookup result\n%s\n", kind, result)
	b.WriteString("\nRespond with your next action.\n")
	return b.String()
}

type siteLookup struct {
	ID            uint     `json:"id"`
	Code          string   `json:"code"`
	InventoryGal  float64  `json:"inventory_gal"`
	HoursToRunout float64  `json:"hours_to_runout"`
	InventoryAge  *float64 `json:"inventory_age_hours"`
	ActiveLoads   int64    `json:"active_loads"`
}

func (a *Agent) lookupSite(arg string) string {
	var site models.Site
	if err := a.db.Where("id = ?", strings.TrimSpace(arg)).First(&site).Error; err != nil {
		return fmt.Sprintf(`{"error": "site %s not found"}`, strings.TrimSpace(arg))
	}

	out := siteLookup{
		ID:            site.ID,
		Code:          site.Code,
		InventoryGal:  site.CurrentInventoryGal,
		HoursToRunout: site.HoursToRunout,
	}
	if site.LastInventoryUpdateAt != nil {
		age := staleness.Evaluate(site.LastInventoryUpdateAt, site.InventoryStalenessThresholdHours, time.Now()).Hours
		out.InventoryAge = &age
	}
	a.db.Model(&models.Load{}).
		Where("destination_site_id = ? AND status IN ?", site.ID, models.ActiveLoadStatuses).
		Count(&out.ActiveLoads)

	data, err := json.Marshal(out)
	if err != nil {
		return `{"error": "encode failed"}`
	}
	return string(data)
}

type loadLookup struct {
	ID               uint    `json:"id"`
	PONumber         string  `json:"po_number"`
	Status           string  `json:"status"`
	ETA              string  `json:"eta"`
	Carrier          string  `json:"carrier"`
	CarrierScore     float64 `json:"carrier_reliability"`
	ScoreKnown       bool    `json:"reliability_known"`
	DestinationSite  uint    `json:"destination_site_id"`
	VolumeGal        float64 `json:"volume_gal"`
	DriverName       string  `json:"driver_name,omitempty"`
	LastETAUpdateAge string  `json:"last_eta_update,omitempty"`
}

func (a *Agent) lookupLoad(arg string) string {
	var load models.Load
	err := a.db.Preload("Carrier").Where("id = ?", strings.TrimSpace(arg)).First(&load).Error
	if err != nil {
		return fmt.Sprintf(`{"error": "load %s not found"}`, strings.TrimSpace(arg))
	}

	out := loadLookup{
		ID:              load.ID,
		PONumber:        load.PONumber,
		Status:          load.Status,
		ETA:             "none",
		DestinationSite: load.DestinationSiteID,
		VolumeGal:       load.VolumeGal,
		DriverName:      load.DriverName,
	}
	if load.CurrentETA != nil {
		out.ETA = load.CurrentETA.Format(time.RFC3339)
	}
	if load.LastETAUpdateAt != nil {
		out.LastETAUpdateAge = load.LastETAUpdateAt.Format(time.RFC3339)
	}
	if load.Carrier != nil {
		out.Carrier = load.Carrier.Name
	}
	score := kgraph.CarrierReliability(a.db, load.CarrierID)
	out.CarrierScore = score.Score
	out.ScoreKnown = score.Known

	data, err := json.Marshal(out)
	if err != nil {
		return `{"error": "encode failed"}`
	}
	return string(data)
}
