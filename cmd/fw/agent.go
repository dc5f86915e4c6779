package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/fuelwatch/fuelwatch/internal/db"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/orchestrator"
	"github.com/fuelwatch/fuelwatch/internal/store"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newAgentCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent lifecycle commands",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Fuelwatch config file")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List agents and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := agentDB(configPath)
			if err != nil {
				return err
			}
			return runAgentList(cmd, gormDB)
		},
	})
	cmd.AddCommand(newAgentStatusCmd("start", models.AgentActive, &configPath))
	cmd.AddCommand(newAgentStatusCmd("stop", models.AgentStopped, &configPath))
	cmd.AddCommand(newAgentStatusCmd("pause", models.AgentPaused, &configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "run <agent-id>",
		Short: "Run one check cycle immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentRun(cmd, configPath, args[0])
		},
	})
	return cmd
}

func agentDB(configPath string) (*gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openDB(cfg)
}

func parseAgentID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid agent id %q", arg)
	}
	return uint(id), nil
}

func runAgentList(cmd *cobra.Command, gormDB *gorm.DB) error {
	agents, err := store.ListAgents(gormDB)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tMODE\tINTERVAL\tSITES")
	for _, a := range agents {
		sites, err := store.SitesForAgent(gormDB, a.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%dm\t%d\n",
			a.ID, a.Name, a.Status, a.ExecutionMode, a.CheckIntervalMinutes, len(sites))
	}
	return w.Flush()
}

func newAgentStatusCmd(verb, status string, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <agent-id>",
		Short: fmt.Sprintf("Set the agent to %s", status),
		Long: fmt.Sprintf(`Set the agent's status to %s in the database.

A running "fw serve" is not notified: a stop or pause takes effect at the
agent's next scheduled check, but a start is only scheduled after the
server restarts. To change a live server, use the API instead:

  POST /api/agents/<agent-id>/%s`, status, verb),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAgentID(args[0])
			if err != nil {
				return err
			}
			gormDB, err := agentDB(*configPath)
			if err != nil {
				return err
			}
			if err := store.SetAgentStatus(gormDB, id, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent %d is now %s\n", id, status)
			return nil
		},
	}
}

func runAgentRun(cmd *cobra.Command, configPath, arg string) error {
	out := cmd.OutOrStdout()

	id, err := parseAgentID(arg)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	runner, err := buildRunner(cfg, gormDB, out)
	if err != nil {
		return err
	}

	run, err := runner.Run(cmd.Context(), id, orchestrator.TriggerManual)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %d %s: %d sites, %d loads checked\n",
		run.ID, run.Status, run.SitesChecked, run.LoadsChecked)
	fmt.Fprintf(out, "  emails sent: %d, drafts: %d, escalations: %d, tier-2 calls: %d\n",
		run.EmailsSent, run.DraftActions, run.EscalationsCreated, run.Tier2Invocations)
	return nil
}
