// Package orchestrator drives agent check cycles: it gathers state, runs
// Tier-1 evaluation, fans ambiguous findings out to Tier 2, executes the
// resulting decisions, and records the run. It also owns the cron registry
// for scheduled runs and the staleness sweep.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/activity"
	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/fuelwatch/fuelwatch/internal/executor"
	"github.com/fuelwatch/fuelwatch/internal/kgraph"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/notify"
	"github.com/fuelwatch/fuelwatch/internal/rules"
	"github.com/fuelwatch/fuelwatch/internal/staleness"
	"github.com/fuelwatch/fuelwatch/internal/store"
	"gorm.io/gorm"
)

// Run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Resolver turns an ambiguous decision into a terminal one. The Tier-2
// agent is the production implementation.
type Resolver interface {
	Resolve(ctx context.Context, subject rules.Decision) rules.Decision
}

// Runner executes agent check cycles.
type Runner struct {
	db       *gorm.DB
	exec     *executor.Executor
	resolver Resolver
	notifier *notify.Fanout
	rules    config.RulesConfig

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewRunner creates a Runner. notifier may be an empty fanout.
func NewRunner(db *gorm.DB, exec *executor.Executor, resolver Resolver, notifier *notify.Fanout, rulesCfg config.RulesConfig) *Runner {
	if notifier == nil {
		notifier = notify.NewFanout()
	}
	return &Runner{
		db:       db,
		exec:     exec,
		resolver: resolver,
		notifier: notifier,
		rules:    rulesCfg,
		locks:    make(map[uint]*sync.Mutex),
	}
}

// agentLock serializes runs per agent so a manual run-now never overlaps
// the scheduled run.
func (r *Runner) agentLock(agentID uint) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[agentID] = l
	}
	return l
}

// Run executes one check cycle for the agent. The run record moves
// pending → running → completed/failed; it fails only when orchestration
// itself cannot start. Per-subject failures are counted and the run still
// completes.
func (r *Runner) Run(ctx context.Context, agentID uint, trigger string) (*models.AgentRun, error) {
	lock := r.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	run := &models.AgentRun{
		AgentID:   agentID,
		Status:    models.RunPending,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	if err := r.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("orchestrator: create run: %w", err)
	}

	agent, err := store.GetAgent(r.db, agentID)
	if err != nil {
		return run, r.failRun(run, fmt.Errorf("orchestrator: %w", err))
	}
	run.ExecutionMode = agent.ExecutionMode

	sites, err := store.SitesForAgent(r.db, agentID)
	if err != nil {
		return run, r.failRun(run, fmt.Errorf("orchestrator: %w", err))
	}

	r.db.Model(run).Updates(map[string]interface{}{
		"status":         models.RunRunning,
		"execution_mode": agent.ExecutionMode,
	})
	run.Status = models.RunRunning

	now := time.Now()
	input := rules.Input{
		Now: now,
		Policy: staleness.OvernightPolicy{
			TimeAwareEscalation: agent.TimeAwareEscalation,
			StartHour:           agent.OvernightStartHour,
			EndHour:             agent.OvernightEndHour,
			Multiplier:          agent.OvernightMultiplier,
		},
		Thresholds: rules.Thresholds{
			CriticalRunoutHours:    r.rules.CriticalRunoutHours,
			HighRunoutHours:        r.rules.HighRunoutHours,
			UnreliableScoreCutoff:  r.rules.UnreliableScoreCutoff,
			DelayedOKCooldownHours: r.rules.DelayedOKCooldownHours,
		},
	}
	input.Sites, run.FailedSubjects = r.gatherSites(sites, now)

	result := rules.Evaluate(input)
	run.SitesChecked = result.SitesChecked
	run.LoadsChecked = result.LoadsChecked

	decisions := r.disambiguate(ctx, run, result.Decisions)
	r.execute(ctx, agent, run, decisions)

	r.finishRun(agent, run, &result, decisions)
	return run, nil
}

// gatherSites builds the evaluation views. Each site is assembled
// independently; a site whose state cannot be read is skipped and counted,
// never aborting the run.
func (r *Runner) gatherSites(sites []models.Site, now time.Time) ([]rules.SiteView, int) {
	views := make([]rules.SiteView, len(sites))
	errs := make([]error, len(sites))

	var wg sync.WaitGroup
	for i := range sites {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], errs[i] = r.siteView(&sites[i], now)
		}(i)
	}
	wg.Wait()

	out := make([]rules.SiteView, 0, len(sites))
	var failed int
	for i := range views {
		if errs[i] != nil {
			log.Printf("orchestrator: gather site %s: %v", sites[i].Code, errs[i])
			failed++
			continue
		}
		out = append(out, views[i])
	}
	return out, failed
}

func (r *Runner) siteView(site *models.Site, now time.Time) (rules.SiteView, error) {
	view := rules.SiteView{
		ID:                   site.ID,
		Code:                 site.Code,
		InventoryGal:         site.CurrentInventoryGal,
		HoursToRunout:        site.HoursToRunout,
		RunoutThresholdHours: site.RunoutThresholdHours,
	}

	inv := staleness.Evaluate(site.LastInventoryUpdateAt, site.InventoryStalenessThresholdHours, now)
	view.InventoryStale = inv.Stale
	view.InventoryStaleHours = inv.Hours

	loads, err := store.ActiveLoadsForSite(r.db, site.ID)
	if err != nil {
		return view, err
	}
	for i := range loads {
		load := &loads[i]
		lv := rules.LoadView{
			ID:        load.ID,
			CarrierID: load.CarrierID,
			PONumber:  load.PONumber,
			Status:    load.Status,
		}
		if load.Carrier != nil {
			lv.Carrier = load.Carrier.Name
		}

		eta := staleness.Evaluate(load.LastETAUpdateAt, load.ETAStalenessThresholdHours, now)
		lv.ETAStale = eta.Stale
		lv.ETAStaleHours = eta.Hours

		score := kgraph.CarrierReliability(r.db, load.CarrierID)
		lv.CarrierScore = score.Score
		lv.ScoreKnown = score.Known

		view.Loads = append(view.Loads, lv)
	}
	return view, nil
}

// disambiguate routes ambiguous decisions through Tier 2, replacing them
// with the terminal decisions it returns. Tier-2 calls are independent per
// subject; one subject's failure surfaces as its own fallback escalation.
func (r *Runner) disambiguate(ctx context.Context, run *models.AgentRun, decisions []rules.Decision) []rules.Decision {
	out := make([]rules.Decision, 0, len(decisions))
	for _, d := range decisions {
		if d.Kind != rules.ActionFlagAmbiguous {
			out = append(out, d)
			continue
		}
		run.Tier2Invocations++
		out = append(out, r.resolver.Resolve(ctx, d))
	}
	return out
}

func (r *Runner) execute(ctx context.Context, agent *models.Agent, run *models.AgentRun, decisions []rules.Decision) {
	for _, d := range decisions {
		outcome, err := r.exec.Execute(ctx, agent, d)
		if err != nil {
			log.Printf("orchestrator: execute %s for site %d: %v", d.Code, d.SiteID, err)
			run.FailedSubjects++
			r.logFailure(agent.ID, d, err)
			continue
		}

		switch outcome.ActivityType {
		case models.ActivityEmailSent:
			run.EmailsSent++
		case models.ActivityEmailDrafted:
			run.DraftActions++
		case models.ActivityEscalationCreated:
			run.EscalationsCreated++
		}

		if outcome.Escalation != nil {
			r.alert(ctx, outcome.Escalation)
		}
	}
}

// alert posts high and critical escalations to the ops channel.
// Notification failure never fails the run.
func (r *Runner) alert(ctx context.Context, esc *models.Escalation) {
	if !r.notifier.Enabled() {
		return
	}
	if esc.Priority != models.PriorityHigh && esc.Priority != models.PriorityCritical {
		return
	}

	var siteCode string
	if esc.SiteID != nil {
		if site, err := store.GetSite(r.db, *esc.SiteID); err == nil {
			siteCode = site.Code
		}
	}
	if err := r.notifier.Notify(ctx, notify.FormatEscalation(esc, siteCode)); err != nil {
		log.Printf("orchestrator: escalation alert: %v", err)
	}
}

func (r *Runner) logFailure(agentID uint, d rules.Decision, execErr error) {
	siteID := d.SiteID
	opts := activity.LogOpts{LoadID: d.LoadID, DecisionCode: d.Code, Metrics: d.Metrics}
	if siteID != 0 {
		opts.SiteID = &siteID
	}
	if _, err := activity.Log(r.db, agentID, models.ActivityFailed,
		fmt.Sprintf("could not apply %s: %v", d.Code, execErr), opts); err != nil {
		log.Printf("orchestrator: %v", err)
	}
}

func (r *Runner) failRun(run *models.AgentRun, cause error) error {
	now := time.Now()
	r.db.Model(run).Updates(map[string]interface{}{
		"status":           models.RunFailed,
		"completed_at":     now,
		"duration_seconds": now.Sub(run.StartedAt).Seconds(),
		"error_message":    cause.Error(),
	})
	run.Status = models.RunFailed
	run.ErrorMessage = cause.Error()
	return cause
}

type decisionRecord struct {
	Kind        string `json:"kind"`
	Code        string `json:"code"`
	SiteID      uint   `json:"site_id"`
	LoadID      *uint  `json:"load_id,omitempty"`
	Description string `json:"description"`
}

func (r *Runner) finishRun(agent *models.Agent, run *models.AgentRun, result *rules.Result, decisions []rules.Decision) {
	records := make([]decisionRecord, 0, len(decisions))
	for _, d := range decisions {
		records = append(records, decisionRecord{
			Kind:        string(d.Kind),
			Code:        d.Code,
			SiteID:      d.SiteID,
			LoadID:      d.LoadID,
			Description: d.Description,
		})
	}
	if data, err := json.Marshal(records); err == nil {
		run.DecisionsJSON = string(data)
	}

	now := time.Now()
	run.CompletedAt = &now
	run.DurationSeconds = now.Sub(run.StartedAt).Seconds()
	run.Status = models.RunCompleted
	if err := r.db.Save(run).Error; err != nil {
		log.Printf("orchestrator: save run %d: %v", run.ID, err)
	}

	if _, err := activity.Log(r.db, agent.ID, models.ActivityCheckCompleted, result.Summary(),
		activity.LogOpts{}); err != nil {
		log.Printf("orchestrator: %v", err)
	}
}
