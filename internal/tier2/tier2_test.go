package tier2

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/rules"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Site{}, &models.Load{}, &models.Carrier{},
		&models.CarrierStats{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// scriptRunner replays canned replies in order and records the prompts.
type scriptRunner struct {
	replies []string
	errs    []error
	prompts []string
}

func (r *scriptRunner) Run(ctx context.Context, prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	i := len(r.prompts) - 1
	if i < len(r.errs) && r.errs[i] != nil {
		return "", r.errs[i]
	}
	if i >= len(r.replies) {
		return "", errors.New("script exhausted")
	}
	return r.replies[i], nil
}

func ambiguousSubject() rules.Decision {
	return rules.Decision{
		Kind:        rules.ActionFlagAmbiguous,
		Code:        rules.CodeStaleInventoryAmbiguous,
		SiteID:      1,
		Description: "NS-01 inventory is 5.0h stale with 18.0h to runout; cannot rule out an emergency",
		Metrics:     map[string]float64{"hours_to_runout": 18},
	}
}

func seedSite(t *testing.T, db *gorm.DB) {
	t.Helper()
	updated := time.Now().Add(-5 * time.Hour)
	if err := db.Create(&models.Site{
		ID: 1, Code: "NS-01", Name: "Northside Station",
		CurrentInventoryGal: 3200, HoursToRunout: 18,
		LastInventoryUpdateAt: &updated,
	}).Error; err != nil {
		t.Fatalf("seed site: %v", err)
	}
}

func TestResolve_NoAction(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	r := &scriptRunner{replies: []string{"NO_ACTION: site was refilled an hour ago per the inbound load"}}
	a := New(db, r, 10, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Kind != rules.ActionLogNote {
		t.Fatalf("Kind = %q, want log_note", d.Kind)
	}
	if !strings.Contains(d.Description, "refilled") {
		t.Errorf("Description = %q, want the model's reason", d.Description)
	}
}

func TestResolve_EscalateWithPriority(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	r := &scriptRunner{replies: []string{"ESCALATE:high:telemetry gap plus low inventory is a real risk"}}
	a := New(db, r, 10, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Kind != rules.ActionCreateEscalation {
		t.Fatalf("Kind = %q, want create_escalation", d.Kind)
	}
	if d.Priority != models.PriorityHigh {
		t.Errorf("Priority = %q, want high", d.Priority)
	}
	if d.Issue != models.IssueStaleData {
		t.Errorf("Issue = %q, want stale_data", d.Issue)
	}
}

func TestResolve_EscalateBadPriorityDefaultsMedium(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	r := &scriptRunner{replies: []string{"ESCALATE:urgent:look at this"}}
	a := New(db, r, 10, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Priority != models.PriorityMedium {
		t.Errorf("Priority = %q, want medium for unknown priority token", d.Priority)
	}
}

func TestResolve_ToolLoopThenEmail(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	if err := db.Create(&models.Carrier{ID: 4, Name: "Apex"}).Error; err != nil {
		t.Fatalf("seed carrier: %v", err)
	}
	if err := db.Create(&models.Load{
		ID: 9, PONumber: "PO-1001", CarrierID: 4, DestinationSiteID: 1,
		Status: models.LoadInTransit,
	}).Error; err != nil {
		t.Fatalf("seed load: %v", err)
	}

	r := &scriptRunner{replies: []string{
		"CHECK_SITE:1",
		"CHECK_LOAD:9",
		"SEND_EMAIL",
	}}
	a := New(db, r, 10, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Kind != rules.ActionSendEmail {
		t.Fatalf("Kind = %q, want send_email", d.Kind)
	}
	if d.LoadID == nil || *d.LoadID != 9 {
		t.Errorf("LoadID = %v, want 9", d.LoadID)
	}
	if d.CarrierID == nil || *d.CarrierID != 4 {
		t.Errorf("CarrierID = %v, want 4", d.CarrierID)
	}
	if d.TemplateClass != models.TemplateETARequest {
		t.Errorf("TemplateClass = %q", d.TemplateClass)
	}

	if len(r.prompts) != 3 {
		t.Fatalf("turns = %d, want 3", len(r.prompts))
	}
	// Tool answers must be carried into the following prompt.
	if !strings.Contains(r.prompts[1], `"code":"NS-01"`) {
		t.Errorf("second prompt missing site lookup JSON:\n%s", r.prompts[1])
	}
	if !strings.Contains(r.prompts[2], `"po_number":"PO-1001"`) {
		t.Errorf("third prompt missing load lookup JSON:\n%s", r.prompts[2])
	}
}

func TestResolve_EmailWithoutLoadFallsBack(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	r := &scriptRunner{replies: []string{"SEND_EMAIL"}}
	a := New(db, r, 10, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Kind != rules.ActionCreateEscalation || d.Code != rules.CodeTier2Fallback {
		t.Errorf("got %q/%q, want fallback escalation", d.Kind, d.Code)
	}
}

func TestResolve_RunnerFailureFallsBack(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	r := &scriptRunner{errs: []error{errors.New("spawn failed")}}
	a := New(db, r, 10, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Code != rules.CodeTier2Fallback {
		t.Fatalf("Code = %q, want fallback", d.Code)
	}
	if d.Priority != models.PriorityMedium {
		t.Errorf("Priority = %q, want medium", d.Priority)
	}
	if !strings.Contains(d.Description, "inconclusive") {
		t.Errorf("Description = %q, want inconclusive note", d.Description)
	}
}

func TestResolve_TurnBudgetExhausted(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	replies := make([]string, 3)
	for i := range replies {
		replies[i] = "CHECK_SITE:1"
	}
	r := &scriptRunner{replies: replies}
	a := New(db, r, 3, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Code != rules.CodeTier2Fallback {
		t.Fatalf("Code = %q, want fallback after budget", d.Code)
	}
	if len(r.prompts) != 3 {
		t.Errorf("turns = %d, want exactly the budget of 3", len(r.prompts))
	}
}

func TestResolve_UnrecognizedReplyFallsBack(t *testing.T) {
	db := openTestDB(t)
	seedSite(t, db)
	r := &scriptRunner{replies: []string{"I think everything is probably fine here."}}
	a := New(db, r, 10, time.Minute)

	d := a.Resolve(context.Background(), ambiguousSubject())
	if d.Code != rules.CodeTier2Fallback {
		t.Errorf("Code = %q, want fallback for unparseable reply", d.Code)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantDir directive
		wantArg string
	}{
		{"bare no_action", "NO_ACTION", dirNoAction, "no reason given"},
		{"prose before directive", "Thinking it over.\nESCALATE:high:risk", dirEscalate, "high:risk"},
		{"check site", "CHECK_SITE: 12", dirCheckSite, "12"},
		{"add note", "ADD_NOTE: tank reading lag is routine at this site", dirAddNote, "tank reading lag is routine at this site"},
		{"nothing recognizable", "all good", dirUnknown, ""},
		{"empty", "", dirUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, arg := parseReply(tt.input)
			if dir != tt.wantDir || arg != tt.wantArg {
				t.Errorf("parseReply(%q) = %v/%q, want %v/%q", tt.input, dir, arg, tt.wantDir, tt.wantArg)
			}
		})
	}
}
