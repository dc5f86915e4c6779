package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/fuelwatch/fuelwatch/internal/db"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// loadConfig reads the config file, falling back to built-in defaults when
// the file does not exist. Any other read or parse error is fatal.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.Driver == "mysql" {
		return db.Connect(cfg.Database.User, cfg.Database.Password,
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}
	return db.ConnectSQLite(cfg.Database.Path)
}

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Fuelwatch database",
		Long:  "Creates or migrates all tables and seeds a default draft-only agent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Fuelwatch config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, statErr := os.Stat(configPath); statErr == nil {
		fmt.Fprintf(out, "Loaded config from %s\n", configPath)
	} else {
		fmt.Fprintf(out, "No config at %s, using defaults (sqlite %s)\n", configPath, cfg.Database.Path)
	}

	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "mysql" {
		fmt.Fprintf(out, "Connected to MySQL at %s:%d/%s\n",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	} else {
		fmt.Fprintf(out, "Opened SQLite database %s\n", cfg.Database.Path)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	agent, err := db.EnsureDefaultAgent(gormDB, "coordinator")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Agent %q ready (id %d, %s, %s)\n",
		agent.Name, agent.ID, agent.Status, agent.ExecutionMode)

	fmt.Fprintln(out, "\nFuelwatch database initialized successfully.")
	return nil
}
