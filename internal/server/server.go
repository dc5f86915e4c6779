// Package server exposes the JSON control surface: snapshot ingestion,
// agent lifecycle, escalation workflow, and the audit views.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/fuelwatch/fuelwatch/internal/orchestrator"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB        *gorm.DB
	Runner    *orchestrator.Runner
	Scheduler *orchestrator.Scheduler
	Port      int
	Out       io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Runner == nil {
		return fmt.Errorf("server: runner is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(opts.DB, opts.Runner, opts.Scheduler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with all routes registered. Split out of
// Start so tests can drive it with httptest.
func NewRouter(db *gorm.DB, runner *orchestrator.Runner, scheduler *orchestrator.Scheduler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{db: db, runner: runner, scheduler: scheduler}

	api := router.Group("/api")
	{
		api.POST("/snapshots", h.ingestSnapshot)

		api.GET("/sites", h.listSites)
		api.GET("/sites/:id", h.getSite)

		api.GET("/agents", h.listAgents)
		api.GET("/agents/:id", h.getAgent)
		api.POST("/agents/:id/start", h.startAgent)
		api.POST("/agents/:id/stop", h.stopAgent)
		api.POST("/agents/:id/pause", h.pauseAgent)
		api.POST("/agents/:id/run", h.runAgent)
		api.POST("/agents/:id/sites", h.assignSites)

		api.GET("/activities", h.listActivities)
		api.GET("/runs", h.listRuns)

		api.GET("/escalations", h.listEscalations)
		api.GET("/escalations/:id", h.getEscalation)
		api.PATCH("/escalations/:id", h.patchEscalation)
	}

	return router
}
