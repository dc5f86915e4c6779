package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/fuelwatch/fuelwatch/internal/db"
	"github.com/fuelwatch/fuelwatch/internal/executor"
	"github.com/fuelwatch/fuelwatch/internal/guard"
	"github.com/fuelwatch/fuelwatch/internal/mail"
	"github.com/fuelwatch/fuelwatch/internal/notify"
	"github.com/fuelwatch/fuelwatch/internal/orchestrator"
	"github.com/fuelwatch/fuelwatch/internal/server"
	"github.com/fuelwatch/fuelwatch/internal/tier2"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Fuelwatch service",
		Long: `Starts the API server, the per-agent check scheduler, and the staleness
sweep. Runs until interrupted; SIGINT or SIGTERM triggers a graceful
shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Fuelwatch config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

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
	if _, err := db.EnsureDefaultAgent(gormDB, "coordinator"); err != nil {
		return err
	}

	runner, err := buildRunner(cfg, gormDB, out)
	if err != nil {
		return err
	}

	sched := orchestrator.NewScheduler(gormDB, runner)
	if err := sched.SyncAgents(); err != nil {
		return err
	}
	if err := sched.ScheduleSweep(cfg.Scheduler.StalenessSweepMinutes); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx, server.StartOpts{
		DB:        gormDB,
		Runner:    runner,
		Scheduler: sched,
		Port:      cfg.Server.Port,
		Out:       out,
	})
}

// buildRunner assembles the decision pipeline from config: mail transport,
// send guard, executor, Tier-2 resolver, and chat alerting.
func buildRunner(cfg *config.Config, gormDB *gorm.DB, out io.Writer) (*orchestrator.Runner, error) {
	var sender mail.Sender
	if cfg.Mail.Enabled {
		smtp, err := mail.NewSMTP(mail.SMTPOpts{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
		})
		if err != nil {
			return nil, err
		}
		sender = smtp
		fmt.Fprintf(out, "Mail enabled via %s:%d\n", cfg.Mail.Host, cfg.Mail.Port)
	} else {
		sender = mail.NewMock()
		fmt.Fprintln(out, "Mail disabled: outbound email is recorded but not delivered")
	}

	g := guard.New(cfg.Rules.DailyEmailCap, cfg.Rules.CooldownFloorHours)
	exec := executor.New(gormDB, g, sender)
	exec.ReplyAddress = cfg.Mail.From

	resolver := tier2.New(gormDB, &tier2.ExecRunner{Command: cfg.Tier2.Command},
		cfg.Tier2.MaxTurns, cfg.Tier2.Timeout())

	var notifiers []notify.Notifier
	if cfg.Notify.Slack.BotToken != "" && cfg.Notify.Slack.ChannelID != "" {
		s, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, s)
		fmt.Fprintf(out, "Slack alerts to channel %s\n", cfg.Notify.Slack.ChannelID)
	}
	if cfg.Notify.Discord.Token != "" && cfg.Notify.Discord.ChannelID != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.Token,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
		fmt.Fprintf(out, "Discord alerts to channel %s\n", cfg.Notify.Discord.ChannelID)
	}
	fanout := notify.NewFanout(notifiers...)

	return orchestrator.NewRunner(gormDB, exec, resolver, fanout, cfg.Rules), nil
}
