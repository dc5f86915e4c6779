package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newSetupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively write a config file",
		Long: `Walks through the configuration: database, outbound mail, and chat
alerting. Secrets are read without echo when run from a terminal. Writes
the result as YAML; existing files are not overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to write the config file")
	return cmd
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p *prompter) ask(label, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.in.Scan() {
		return def
	}
	v := strings.TrimSpace(p.in.Text())
	if v == "" {
		return def
	}
	return v
}

func (p *prompter) askBool(label string, def bool) bool {
	d := "y/N"
	if def {
		d = "Y/n"
	}
	v := strings.ToLower(p.ask(fmt.Sprintf("%s (%s)", label, d), ""))
	if v == "" {
		return def
	}
	return v == "y" || v == "yes"
}

func (p *prompter) askInt(label string, def int) int {
	v := p.ask(label, strconv.Itoa(def))
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// askSecret reads without echo when stdin is a terminal, otherwise falls
// back to a plain read so piped input still works.
func (p *prompter) askSecret(label string) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return p.ask(label, "")
	}
	fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func runSetup(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists — move it aside before running setup", configPath)
	}

	p := &prompter{in: bufio.NewScanner(cmd.InOrStdin()), out: out}
	cfg := config.Default()

	fmt.Fprintln(out, "Fuelwatch setup")
	fmt.Fprintln(out)

	cfg.Database.Driver = p.ask("Database driver (sqlite or mysql)", cfg.Database.Driver)
	if cfg.Database.Driver == "mysql" {
		cfg.Database.Host = p.ask("MySQL host", cfg.Database.Host)
		cfg.Database.Port = p.askInt("MySQL port", cfg.Database.Port)
		cfg.Database.User = p.ask("MySQL user", cfg.Database.User)
		cfg.Database.Password = p.askSecret("MySQL password")
		cfg.Database.Database = p.ask("Database name", cfg.Database.Database)
	} else {
		cfg.Database.Path = p.ask("SQLite file path", cfg.Database.Path)
	}

	fmt.Fprintln(out)
	cfg.Mail.Enabled = p.askBool("Enable outbound carrier email?", false)
	if cfg.Mail.Enabled {
		cfg.Mail.Host = p.ask("SMTP host", cfg.Mail.Host)
		cfg.Mail.Port = p.askInt("SMTP port", cfg.Mail.Port)
		cfg.Mail.From = p.ask("From address", cfg.Mail.From)
		cfg.Mail.FromName = p.ask("From name", cfg.Mail.FromName)
		cfg.Mail.Username = p.ask("SMTP username (blank for none)", "")
		if cfg.Mail.Username != "" {
			cfg.Mail.Password = p.askSecret("SMTP password")
		}
	}

	fmt.Fprintln(out)
	if p.askBool("Send escalation alerts to Slack?", false) {
		cfg.Notify.Slack.BotToken = p.askSecret("Slack bot token (xoxb-...)")
		cfg.Notify.Slack.ChannelID = p.ask("Slack channel ID", "")
	}
	if p.askBool("Send escalation alerts to Discord?", false) {
		cfg.Notify.Discord.Token = p.askSecret("Discord bot token")
		cfg.Notify.Discord.ChannelID = p.ask("Discord channel ID", "")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}

	fmt.Fprintf(out, "\nWrote %s\n", configPath)
	fmt.Fprintln(out, "Next: fw db init && fw serve")
	return nil
}
