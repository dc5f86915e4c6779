package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/activity"
	"github.com/fuelwatch/fuelwatch/internal/ingest"
	"github.com/fuelwatch/fuelwatch/internal/kgraph"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/orchestrator"
	"github.com/fuelwatch/fuelwatch/internal/staleness"
	"github.com/fuelwatch/fuelwatch/internal/store"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type handlers struct {
	db        *gorm.DB
	runner    *orchestrator.Runner
	scheduler *orchestrator.Scheduler
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// ingestSnapshot lands a telemetry batch and feeds delivery events into
// the knowledge graph.
func (h *handlers) ingestSnapshot(c *gin.Context) {
	var snap ingest.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := ingest.Apply(h.db, snap)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, loadID := range res.Delivered {
		load, err := store.GetLoad(h.db, loadID)
		if err != nil {
			log.Printf("server: delivered load %d: %v", loadID, err)
			continue
		}
		if err := kgraph.OnLoadDelivered(h.db, load, snap.Timestamp); err != nil {
			log.Printf("server: record delivery of load %d: %v", loadID, err)
		}
	}

	c.JSON(http.StatusOK, res)
}

// siteStatus is the staleness-annotated site view.
type siteStatus struct {
	models.Site
	InventoryStale      bool    `json:"inventory_stale"`
	InventoryStaleHours float64 `json:"inventory_stale_hours"`
}

func (h *handlers) listSites(c *gin.Context) {
	sites, err := store.ListSites(h.db)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	now := time.Now()
	out := make([]siteStatus, 0, len(sites))
	for i := range sites {
		out = append(out, h.siteStatus(&sites[i], now))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getSite(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	site, err := store.GetSite(h.db, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.siteStatus(site, time.Now()))
}

func (h *handlers) siteStatus(site *models.Site, now time.Time) siteStatus {
	eval := staleness.Evaluate(site.LastInventoryUpdateAt, site.InventoryStalenessThresholdHours, now)
	return siteStatus{Site: *site, InventoryStale: eval.Stale, InventoryStaleHours: eval.Hours}
}

func (h *handlers) listAgents(c *gin.Context) {
	agents, err := store.ListAgents(h.db)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

func (h *handlers) getAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	agent, err := store.GetAgent(h.db, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *handlers) startAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := store.SetAgentStatus(h.db, id, models.AgentActive); err != nil {
		respondStoreError(c, err)
		return
	}
	if h.scheduler != nil {
		agent, err := store.GetAgent(h.db, id)
		if err == nil {
			if err := h.scheduler.AddAgent(agent); err != nil {
				log.Printf("server: schedule agent %d: %v", id, err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": models.AgentActive})
}

func (h *handlers) stopAgent(c *gin.Context) {
	h.haltAgent(c, models.AgentStopped)
}

func (h *handlers) pauseAgent(c *gin.Context) {
	h.haltAgent(c, models.AgentPaused)
}

func (h *handlers) haltAgent(c *gin.Context, status string) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := store.SetAgentStatus(h.db, id, status); err != nil {
		respondStoreError(c, err)
		return
	}
	if h.scheduler != nil {
		h.scheduler.RemoveAgent(id)
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// runAgent fires a manual check cycle and returns the completed run. The
// per-agent lock inside the runner keeps it from overlapping a scheduled
// run.
func (h *handlers) runAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	run, err := h.runner.Run(c.Request.Context(), id, orchestrator.TriggerManual)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": run})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *handlers) assignSites(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		SiteIDs []uint `json:"site_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := store.AssignSites(h.db, id, body.SiteIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sites, err := store.SitesForAgent(h.db, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, sites)
}

func queryUint(c *gin.Context, name string) uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

func (h *handlers) listActivities(c *gin.Context) {
	entries, err := activity.Recent(h.db, activity.Filter{
		AgentID: queryUint(c, "agent_id"),
		SiteID:  queryUint(c, "site_id"),
		Type:    c.Query("type"),
		Limit:   queryInt(c, "limit"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *handlers) listRuns(c *gin.Context) {
	runs, err := store.ListRuns(h.db, queryUint(c, "agent_id"), queryInt(c, "limit"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *handlers) listEscalations(c *gin.Context) {
	escs, err := store.ListEscalations(h.db, store.EscalationFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		SiteID:   queryUint(c, "site_id"),
		Limit:    queryInt(c, "limit"),
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, escs)
}

func (h *handlers) getEscalation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	esc, err := store.GetEscalation(h.db, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}

// patchEscalation advances the escalation workflow. Resolution feeds the
// site's false-alarm history.
func (h *handlers) patchEscalation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		Status          string `json:"status" binding:"required"`
		AssignedTo      string `json:"assigned_to"`
		ResolutionNotes string `json:"resolution_notes"`
		WasFalseAlarm   bool   `json:"was_false_alarm"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	esc, err := store.TransitionEscalation(h.db, id, store.TransitionOpts{
		Status:          body.Status,
		AssignedTo:      body.AssignedTo,
		ResolutionNotes: body.ResolutionNotes,
		WasFalseAlarm:   body.WasFalseAlarm,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if esc.Status == models.EscalationResolved {
		if err := kgraph.OnEscalationResolved(h.db, esc, esc.WasFalseAlarm); err != nil {
			log.Printf("server: record resolution of escalation %d: %v", id, err)
		}
	}

	c.JSON(http.StatusOK, esc)
}
