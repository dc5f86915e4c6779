package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuelwatch/fuelwatch/internal/config"
)

func TestSetupCmd_WritesConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "fw.db")

	// driver, sqlite path, mail off, slack off, discord off
	input := "sqlite\n" + dbPath + "\n\n\n\n"

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs([]string{"setup", "-c", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != dbPath {
		t.Errorf("database config = %+v", cfg.Database)
	}
	if cfg.Mail.Enabled {
		t.Error("mail enabled without being requested")
	}
}

func TestSetupCmd_RefusesOverwrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("database:\n  driver: sqlite\n"), 0600); err != nil {
		t.Fatalf("write existing config: %v", err)
	}

	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"setup", "-c", configPath})

	if err := cmd.Execute(); err == nil {
		t.Fatal("setup overwrote an existing config")
	}
}
