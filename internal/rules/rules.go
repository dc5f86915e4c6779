// Package rules implements the Tier-1 decision engine: deterministic,
// zero-cost threshold evaluation over an agent's sites and loads. It is
// pure arithmetic over pre-fetched state — no database or network calls —
// so per-site evaluation can run concurrently.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/staleness"
)

// noRunoutData substitutes for sites that have never reported a runout
// projection. Zero means "no data", not an empty tank; the staleness rules
// and the sweep carry the concern for those sites.
const noRunoutData = 999

// Thresholds are the configured rule constants, overnight-adjusted at
// evaluation time.
type Thresholds struct {
	CriticalRunoutHours    float64
	HighRunoutHours        float64
	UnreliableScoreCutoff  float64
	DelayedOKCooldownHours float64
}

// LoadView is the pre-fetched state of one active load feeding evaluation.
type LoadView struct {
	ID        uint
	CarrierID uint
	PONumber  string
	Carrier   string
	Status    string

	ETAStale      bool
	ETAStaleHours float64

	// CarrierScore comes from the knowledge graph; ScoreKnown is false
	// when the neutral default was substituted.
	CarrierScore float64
	ScoreKnown   bool
}

// SiteView is the pre-fetched state of one site feeding evaluation.
type SiteView struct {
	ID            uint
	Code          string
	InventoryGal  float64
	HoursToRunout float64

	// RunoutThresholdHours is the site's own at-risk line, distinct from
	// the agent-level critical/high constants.
	RunoutThresholdHours float64

	InventoryStale      bool
	InventoryStaleHours float64

	Loads []LoadView
}

// Input bundles everything one evaluation needs.
type Input struct {
	Now        time.Time
	Policy     staleness.OvernightPolicy
	Thresholds Thresholds
	Sites      []SiteView
}

// Result is the outcome of one Tier-1 pass.
type Result struct {
	Decisions    []Decision
	SitesChecked int
	LoadsChecked int
	Notes        []string
}

// Ambiguous returns the decisions Tier 1 could not resolve confidently.
func (r *Result) Ambiguous() []Decision {
	var out []Decision
	for _, d := range r.Decisions {
		if d.Kind == ActionFlagAmbiguous {
			out = append(out, d)
		}
	}
	return out
}

// Summary renders a one-line run note in the shape the activity log expects.
func (r *Result) Summary() string {
	var emails, escalations, ambiguous int
	for _, d := range r.Decisions {
		switch d.Kind {
		case ActionSendEmail:
			emails++
		case ActionCreateEscalation:
			escalations++
		case ActionFlagAmbiguous:
			ambiguous++
		}
	}
	return fmt.Sprintf("checked %d sites, %d loads: %d escalations, %d emails, %d ambiguous",
		r.SitesChecked, r.LoadsChecked, escalations, emails, ambiguous)
}

// Evaluate classifies every site into one outcome, first match wins:
//
//  1. no assigned sites → run-level note
//  2. runout below critical threshold with no inbound load → CRITICAL
//  3. runout below high threshold with no inbound load → HIGH
//  4. stale inventory while below the high threshold → ambiguous, defer
//     to Tier 2 rather than guess
//  5. per-load checks: stale ETA → email candidate, unless the carrier is
//     known-unreliable, which escalates instead; delayed loads escalate
//     or email depending on site health
//  6. everything satisfied → no decision
//
// A cross-site pass then flags carriers serving multiple at-risk sites for
// Tier 2. Runout thresholds are overnight-adjusted through the agent's
// policy. A site that has never reported a runout projection (zero hours)
// is not treated as empty; its staleness carries the concern.
func Evaluate(in Input) Result {
	res := Result{SitesChecked: len(in.Sites)}

	if len(in.Sites) == 0 {
		res.Notes = append(res.Notes, "no sites assigned")
		return res
	}

	critical := staleness.EffectiveThreshold(in.Thresholds.CriticalRunoutHours, in.Policy, in.Now)
	high := staleness.EffectiveThreshold(in.Thresholds.HighRunoutHours, in.Policy, in.Now)

	for _, site := range in.Sites {
		res.LoadsChecked += len(site.Loads)

		hasInbound := len(site.Loads) > 0
		hours := runoutHours(site)

		// Boundary is inclusive: exactly 12.0h to runout is critical.
		if hours <= critical && !hasInbound {
			res.Decisions = append(res.Decisions, Decision{
				Kind:     ActionCreateEscalation,
				Code:     CodeRunoutCritical,
				Priority: models.PriorityCritical,
				Issue:    models.IssueRunoutRisk,
				SiteID:   site.ID,
				Description: fmt.Sprintf("%s has %.1fh to runout with no active loads; immediate attention needed",
					site.Code, hours),
				Metrics: map[string]float64{
					"hours_to_runout":    hours,
					"critical_threshold": critical,
				},
			})
			continue
		}

		if hours <= high && !hasInbound {
			res.Decisions = append(res.Decisions, Decision{
				Kind:     ActionCreateEscalation,
				Code:     CodeRunoutHigh,
				Priority: models.PriorityHigh,
				Issue:    models.IssueRunoutRisk,
				SiteID:   site.ID,
				Description: fmt.Sprintf("%s has %.1fh to runout with no active loads",
					site.Code, hours),
				Metrics: map[string]float64{
					"hours_to_runout": hours,
					"high_threshold":  high,
				},
			})
			continue
		}

		if site.InventoryStale && hours < high {
			// Stale data could mean a false alarm or a real emergency.
			res.Decisions = append(res.Decisions, Decision{
				Kind:   ActionFlagAmbiguous,
				Code:   CodeStaleInventoryAmbiguous,
				SiteID: site.ID,
				Description: fmt.Sprintf("%s inventory is %.1fh stale with %.1fh to runout; cannot rule out an emergency",
					site.Code, site.InventoryStaleHours, hours),
				Metrics: map[string]float64{
					"hours_to_runout":       hours,
					"inventory_stale_hours": site.InventoryStaleHours,
					"high_threshold":        high,
				},
			})
			continue
		}

		res.Decisions = append(res.Decisions, evaluateLoads(site, hours, high, in.Thresholds)...)
	}

	res.Decisions = append(res.Decisions, correlateCarriers(in.Sites, high)...)

	return res
}

// runoutHours reads a site's runout projection, substituting the no-data
// sentinel for sites that have never reported one.
func runoutHours(site SiteView) float64 {
	if site.HoursToRunout == 0 {
		return noRunoutData
	}
	return site.HoursToRunout
}

// correlateCarriers runs the cross-site pass: a carrier serving more than
// one at-risk site is a single point of failure that the per-site rules
// cannot see, so it goes to Tier 2 rather than straight to an escalation.
func correlateCarriers(sites []SiteView, high float64) []Decision {
	type carrierRisk struct {
		name    string
		siteIDs []uint
		codes   []string
	}
	byCarrier := make(map[uint]*carrierRisk)
	var order []uint

	for _, site := range sites {
		atRiskLine := site.RunoutThresholdHours
		if atRiskLine <= 0 {
			atRiskLine = high
		}
		if runoutHours(site) >= atRiskLine {
			continue
		}

		seen := make(map[uint]bool)
		for _, load := range site.Loads {
			if seen[load.CarrierID] {
				continue
			}
			seen[load.CarrierID] = true

			cr := byCarrier[load.CarrierID]
			if cr == nil {
				cr = &carrierRisk{name: load.Carrier}
				byCarrier[load.CarrierID] = cr
				order = append(order, load.CarrierID)
			}
			cr.siteIDs = append(cr.siteIDs, site.ID)
			cr.codes = append(cr.codes, site.Code)
		}
	}

	var out []Decision
	for _, id := range order {
		cr := byCarrier[id]
		if len(cr.codes) < 2 {
			continue
		}
		carrierID := id
		out = append(out, Decision{
			Kind:      ActionFlagAmbiguous,
			Code:      CodeMultiSiteCarrierRisk,
			SiteID:    cr.siteIDs[0],
			CarrierID: &carrierID,
			Description: fmt.Sprintf("carrier %s serves %d at-risk sites (%s); one slipping carrier could cascade",
				cr.name, len(cr.codes), strings.Join(cr.codes, ", ")),
			Metrics: map[string]float64{
				"at_risk_sites": float64(len(cr.codes)),
			},
		})
	}
	return out
}

// evaluateLoads runs the per-load checks for a site that passed the
// site-level rules.
func evaluateLoads(site SiteView, hours, high float64, th Thresholds) []Decision {
	var out []Decision

	for _, load := range site.Loads {
		loadID, carrierID := load.ID, load.CarrierID

		if load.Status == models.LoadInTransit && load.ETAStale {
			if load.ScoreKnown && load.CarrierScore < th.UnreliableScoreCutoff {
				// A carrier already known to be unresponsive should not
				// receive another silently-ignored request.
				out = append(out, Decision{
					Kind:      ActionCreateEscalation,
					Code:      CodeUnreliableCarrierEscalate,
					Priority:  models.PriorityMedium,
					Issue:     models.IssueNoCarrierResponse,
					SiteID:    site.ID,
					LoadID:    &loadID,
					CarrierID: &carrierID,
					Description: fmt.Sprintf("ETA for %s is %.1fh stale and carrier %s has reliability %.2f (below %.2f); needs a human call",
						load.PONumber, load.ETAStaleHours, load.Carrier, load.CarrierScore, th.UnreliableScoreCutoff),
					Metrics: map[string]float64{
						"eta_stale_hours": load.ETAStaleHours,
						"carrier_score":   load.CarrierScore,
						"score_cutoff":    th.UnreliableScoreCutoff,
						"hours_to_runout": hours,
					},
				})
				continue
			}

			out = append(out, Decision{
				Kind:          ActionSendEmail,
				Code:          CodeStaleETARequest,
				SiteID:        site.ID,
				LoadID:        &loadID,
				CarrierID:     &carrierID,
				TemplateClass: models.TemplateETARequest,
				Description: fmt.Sprintf("requesting ETA update for %s (last change %.1fh ago)",
					load.PONumber, load.ETAStaleHours),
				Metrics: map[string]float64{
					"eta_stale_hours": load.ETAStaleHours,
					"hours_to_runout": hours,
				},
			})
			continue
		}

		if load.Status == models.LoadDelayed {
			atRiskLine := site.RunoutThresholdHours
			if atRiskLine <= 0 {
				atRiskLine = high
			}
			if hours < atRiskLine {
				priority := models.PriorityMedium
				if hours < high {
					priority = models.PriorityHigh
				}
				out = append(out, Decision{
					Kind:      ActionCreateEscalation,
					Code:      CodeDelayedLoadAtRisk,
					Priority:  priority,
					Issue:     models.IssueDelayedShipment,
					SiteID:    site.ID,
					LoadID:    &loadID,
					CarrierID: &carrierID,
					Description: fmt.Sprintf("load %s to %s is delayed and the site has %.1fh to runout",
						load.PONumber, site.Code, hours),
					Metrics: map[string]float64{
						"hours_to_runout": hours,
						"high_threshold":  high,
					},
				})
				continue
			}

			out = append(out, Decision{
				Kind:          ActionSendEmail,
				Code:          CodeDelayedLoadSiteOK,
				SiteID:        site.ID,
				LoadID:        &loadID,
				CarrierID:     &carrierID,
				TemplateClass: models.TemplateDelayedLoad,
				CooldownHours: th.DelayedOKCooldownHours,
				Description: fmt.Sprintf("load %s is delayed to %s (site holds %.0fh of inventory)",
					load.PONumber, site.Code, hours),
				Metrics: map[string]float64{
					"hours_to_runout": hours,
				},
			})
		}
	}

	return out
}
