// Package config provides YAML-based configuration loading for Fuelwatch.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Fuelwatch configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Mail      MailConfig      `yaml:"mail"`
	Notify    NotifyConfig    `yaml:"notify"`
	Tier2     Tier2Config     `yaml:"tier2"`
	Rules     RulesConfig     `yaml:"rules"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig holds connection settings for the backing store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"` // sqlite file path
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// MailConfig holds SMTP settings for outbound carrier email. When Enabled is
// false the executor logs drafts instead of sending.
type MailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NotifyConfig holds chat notification settings for escalation alerts.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot credentials and the ops channel.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials and the ops channel.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// Tier2Config bounds the disambiguation agent.
type Tier2Config struct {
	// Command is the LLM CLI invoked for disambiguation, e.g. "claude".
	Command string `yaml:"command"`
	// MaxTurns caps the reasoning loop; exhausting it triggers the
	// conservative fallback escalation.
	MaxTurns int `yaml:"max_turns"`
	// TimeoutSeconds bounds a single subject's disambiguation call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-subject Tier-2 timeout as a duration.
func (t Tier2Config) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// RulesConfig holds the Tier-1 threshold constants. These are configuration,
// not hidden magic numbers.
type RulesConfig struct {
	CriticalRunoutHours    float64 `yaml:"critical_runout_hours"`
	HighRunoutHours        float64 `yaml:"high_runout_hours"`
	UnreliableScoreCutoff  float64 `yaml:"unreliable_score_cutoff"`
	DailyEmailCap          int     `yaml:"daily_email_cap"`
	CooldownFloorHours     float64 `yaml:"cooldown_floor_hours"`
	DelayedOKCooldownHours float64 `yaml:"delayed_ok_cooldown_hours"`
}

// SchedulerConfig holds background job intervals.
type SchedulerConfig struct {
	StalenessSweepMinutes int `yaml:"staleness_sweep_minutes"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, used when no config
// file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Database == "" {
		c.Database.Database = "fuelwatch"
	}
	if c.Database.Path == "" {
		c.Database.Path = "fuelwatch.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.From == "" {
		c.Mail.From = "dispatch@fuelwatch.local"
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = "Fuelwatch Coordinator"
	}
	if c.Tier2.Command == "" {
		c.Tier2.Command = "claude"
	}
	if c.Tier2.MaxTurns == 0 {
		c.Tier2.MaxTurns = 10
	}
	if c.Tier2.TimeoutSeconds == 0 {
		c.Tier2.TimeoutSeconds = 120
	}
	if c.Rules.CriticalRunoutHours == 0 {
		c.Rules.CriticalRunoutHours = 12
	}
	if c.Rules.HighRunoutHours == 0 {
		c.Rules.HighRunoutHours = 24
	}
	if c.Rules.UnreliableScoreCutoff == 0 {
		c.Rules.UnreliableScoreCutoff = 0.4
	}
	if c.Rules.DailyEmailCap == 0 {
		c.Rules.DailyEmailCap = 10
	}
	if c.Rules.CooldownFloorHours == 0 {
		c.Rules.CooldownFloorHours = 1
	}
	if c.Rules.DelayedOKCooldownHours == 0 {
		c.Rules.DelayedOKCooldownHours = 4
	}
	if c.Scheduler.StalenessSweepMinutes == 0 {
		c.Scheduler.StalenessSweepMinutes = 30
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	if c.Mail.Enabled && c.Mail.Host == "" {
		errs = append(errs, "mail.host is required when mail.enabled is true")
	}
	if c.Rules.CriticalRunoutHours >= c.Rules.HighRunoutHours {
		errs = append(errs, "rules.critical_runout_hours must be below rules.high_runout_hours")
	}
	if c.Rules.UnreliableScoreCutoff < 0 || c.Rules.UnreliableScoreCutoff > 1 {
		errs = append(errs, "rules.unreliable_score_cutoff must be between 0 and 1")
	}
	if c.Tier2.MaxTurns < 1 {
		errs = append(errs, "tier2.max_turns must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
