package db

import (
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "no password",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "fuelwatch",
			want:     "root@tcp(127.0.0.1:3306)/fuelwatch?parseTime=true&charset=utf8mb4",
		},
		{
			name:     "with password",
			user:     "fw",
			password: "secret",
			host:     "db.vpc.internal",
			port:     3307,
			database: "fuelwatch_prod",
			want:     "fw:secret@tcp(db.vpc.internal:3307)/fuelwatch_prod?parseTime=true&charset=utf8mb4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.password, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSN_ParseTimeFlag(t *testing.T) {
	dsn := DSN("root", "", "localhost", 3306, "test")
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	for _, table := range []string{"sites", "carriers", "loads", "agents",
		"activities", "escalations", "email_logs", "agent_runs",
		"carrier_stats", "site_stats"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("missing table %q after migration", table)
		}
	}
}

func TestEnsureDefaultAgent_CreatesOnce(t *testing.T) {
	db := openTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	first, err := EnsureDefaultAgent(db, "coordinator")
	if err != nil {
		t.Fatalf("EnsureDefaultAgent: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("expected agent ID to be set")
	}
	if first.Status != "stopped" {
		t.Errorf("Status = %q, want stopped", first.Status)
	}
	if first.ExecutionMode != "draft_only" {
		t.Errorf("ExecutionMode = %q, want draft_only", first.ExecutionMode)
	}

	second, err := EnsureDefaultAgent(db, "other-name")
	if err != nil {
		t.Fatalf("EnsureDefaultAgent second call: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created a new agent (id %d), want existing %d", second.ID, first.ID)
	}
}
