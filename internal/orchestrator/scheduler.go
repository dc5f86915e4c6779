package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/store"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Scheduler owns the cron registry: one recurring job per active agent plus
// the staleness sweep. Agent start/stop/pause mutate the registry.
type Scheduler struct {
	db     *gorm.DB
	runner *Runner
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[uint]cron.EntryID
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(db *gorm.DB, runner *Runner) *Scheduler {
	return &Scheduler{
		db:      db,
		runner:  runner,
		cron:    cron.New(),
		entries: make(map[uint]cron.EntryID),
	}
}

// Start begins firing jobs. SyncAgents should be called first so agents
// already active in the database get their schedules back after a restart.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SyncAgents registers a job for every agent currently active in the
// database.
func (s *Scheduler) SyncAgents() error {
	agents, err := store.ListAgents(s.db)
	if err != nil {
		return fmt.Errorf("orchestrator: sync agents: %w", err)
	}
	for i := range agents {
		if agents[i].Status != models.AgentActive {
			continue
		}
		if err := s.AddAgent(&agents[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddAgent schedules recurring runs for an agent at its check interval.
// Re-adding replaces the previous schedule.
func (s *Scheduler) AddAgent(agent *models.Agent) error {
	interval := agent.CheckIntervalMinutes
	if interval <= 0 {
		interval = 15
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[agent.ID]; ok {
		s.cron.Remove(id)
	}

	agentID := agent.ID
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", interval), func() {
		s.runScheduled(agentID)
	})
	if err != nil {
		return fmt.Errorf("orchestrator: schedule agent %d: %w", agent.ID, err)
	}
	s.entries[agent.ID] = entryID
	return nil
}

// RemoveAgent drops an agent's schedule. Removing an unscheduled agent is
// a no-op.
func (s *Scheduler) RemoveAgent(agentID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[agentID]; ok {
		s.cron.Remove(id)
		delete(s.entries, agentID)
	}
}

// Scheduled reports whether an agent currently has a schedule.
func (s *Scheduler) Scheduled(agentID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[agentID]
	return ok
}

// ScheduleSweep registers the recurring staleness sweep.
func (s *Scheduler) ScheduleSweep(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		intervalMinutes = 30
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), func() {
		res, err := SweepStaleness(s.db, time.Now())
		if err != nil {
			log.Printf("orchestrator: staleness sweep: %v", err)
			return
		}
		if res.StaleSites > 0 {
			log.Printf("orchestrator: staleness sweep: %d/%d sites stale (%d escalations created, %d refreshed)",
				res.StaleSites, res.SitesChecked, res.Created, res.Updated)
		}
	})
	if err != nil {
		return fmt.Errorf("orchestrator: schedule sweep: %w", err)
	}
	return nil
}

// runScheduled fires one scheduled run, re-checking agent status so a
// pause or stop that raced the timer is honored.
func (s *Scheduler) runScheduled(agentID uint) {
	agent, err := store.GetAgent(s.db, agentID)
	if err != nil {
		log.Printf("orchestrator: scheduled run agent %d: %v", agentID, err)
		return
	}
	if agent.Status != models.AgentActive {
		return
	}
	if _, err := s.runner.Run(context.Background(), agentID, TriggerScheduled); err != nil {
		log.Printf("orchestrator: scheduled run agent %d: %v", agentID, err)
	}
}
