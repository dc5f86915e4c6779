package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fuelwatch/fuelwatch/internal/guard"
	"github.com/fuelwatch/fuelwatch/internal/mail"
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
	if err := db.AutoMigrate(&models.Agent{}, &models.Site{}, &models.Carrier{},
		&models.Load{}, &models.Escalation{}, &models.EmailLog{}, &models.Activity{},
		&models.CarrierStats{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seed(t *testing.T, db *gorm.DB, mode string) *models.Agent {
	t.Helper()
	agent := &models.Agent{ID: 1, Name: "coordinator", ExecutionMode: mode}
	if err := db.Create(agent).Error; err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	if err := db.Create(&models.Site{ID: 3, Code: "NS-01", Name: "Northside"}).Error; err != nil {
		t.Fatalf("seed site: %v", err)
	}
	if err := db.Create(&models.Carrier{
		ID: 4, Name: "Apex", DispatcherEmail: "dispatch@apex.test", ResponseTimeSLAHours: 4,
	}).Error; err != nil {
		t.Fatalf("seed carrier: %v", err)
	}
	if err := db.Create(&models.Load{
		ID: 9, PONumber: "PO-1001", CarrierID: 4, DestinationSiteID: 3,
		Status: models.LoadInTransit, VolumeGal: 7500,
	}).Error; err != nil {
		t.Fatalf("seed load: %v", err)
	}
	return agent
}

func newExecutor(db *gorm.DB, sender mail.Sender) *Executor {
	e := New(db, guard.New(10, 1), sender)
	e.RetryBackoff = 0
	return e
}

func emailDecision() rules.Decision {
	loadID, carrierID := uint(9), uint(4)
	return rules.Decision{
		Kind:          rules.ActionSendEmail,
		Code:          rules.CodeStaleETARequest,
		SiteID:        3,
		LoadID:        &loadID,
		CarrierID:     &carrierID,
		TemplateClass: models.TemplateETARequest,
		Description:   "requesting ETA update for PO-1001",
		Metrics:       map[string]float64{"eta_stale_hours": 6},
	}
}

func lastActivity(t *testing.T, db *gorm.DB) models.Activity {
	t.Helper()
	var a models.Activity
	if err := db.Order("id DESC").First(&a).Error; err != nil {
		t.Fatalf("load activity: %v", err)
	}
	return a
}

func TestExecute_CreateEscalation(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeDraftOnly)
	e := newExecutor(db, mail.NewMock())

	out, err := e.Execute(context.Background(), agent, rules.Decision{
		Kind:        rules.ActionCreateEscalation,
		Code:        rules.CodeRunoutCritical,
		Priority:    models.PriorityCritical,
		Issue:       models.IssueRunoutRisk,
		SiteID:      3,
		Description: "NS-01 has 8h to runout",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Escalation == nil || out.Escalation.Priority != models.PriorityCritical {
		t.Fatalf("Outcome = %+v, want critical escalation", out)
	}

	a := lastActivity(t, db)
	if a.Type != models.ActivityEscalationCreated || a.DecisionCode != rules.CodeRunoutCritical {
		t.Errorf("activity = %s/%s", a.Type, a.DecisionCode)
	}
}

func TestExecute_DraftOnlyDoesNotSend(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeDraftOnly)
	mock := mail.NewMock()
	e := newExecutor(db, mock)

	out, err := e.Execute(context.Background(), agent, emailDecision())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.ActivityType != models.ActivityEmailDrafted {
		t.Fatalf("ActivityType = %q, want email_drafted", out.ActivityType)
	}
	if len(mock.Sent()) != 0 {
		t.Error("draft-only mode sent real email")
	}
	if out.EmailLog.Status != models.EmailDraft {
		t.Errorf("EmailLog status = %q, want draft", out.EmailLog.Status)
	}
}

func TestExecute_AutoEmailSends(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeAutoEmail)
	mock := mail.NewMock()
	e := newExecutor(db, mock)

	out, err := e.Execute(context.Background(), agent, emailDecision())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.ActivityType != models.ActivityEmailSent {
		t.Fatalf("ActivityType = %q, want email_sent", out.ActivityType)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sent))
	}
	if sent[0].To != "dispatch@apex.test" || !strings.Contains(sent[0].Subject, "PO-1001") {
		t.Errorf("sent = %+v", sent[0])
	}

	var entry models.EmailLog
	if err := db.First(&entry, out.EmailLog.ID).Error; err != nil {
		t.Fatalf("reload email log: %v", err)
	}
	if entry.Status != models.EmailSent || entry.SentAt == nil || entry.MessageID == "" {
		t.Errorf("entry = %+v, want sent with timestamp and message ID", entry)
	}

	var load models.Load
	db.First(&load, 9)
	if load.LastEmailSentAt == nil {
		t.Error("LastEmailSentAt not stamped")
	}

	var stats models.CarrierStats
	if err := db.Where("carrier_id = ?", 4).First(&stats).Error; err != nil {
		t.Fatalf("carrier stats: %v", err)
	}
	if stats.TotalETARequests != 1 {
		t.Errorf("TotalETARequests = %d, want 1", stats.TotalETARequests)
	}
}

func TestExecute_SecondSendThrottled(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeAutoEmail)
	mock := mail.NewMock()
	e := newExecutor(db, mock)

	if _, err := e.Execute(context.Background(), agent, emailDecision()); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	out, err := e.Execute(context.Background(), agent, emailDecision())
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !out.Throttled {
		t.Fatal("second identical send not throttled")
	}
	if len(mock.Sent()) != 1 {
		t.Errorf("sent %d emails, want 1", len(mock.Sent()))
	}

	a := lastActivity(t, db)
	if a.Type != models.ActivityThrottled || a.DecisionCode != rules.CodeThrottled {
		t.Errorf("activity = %s/%s, want throttled/THROTTLED", a.Type, a.DecisionCode)
	}
}

func TestExecute_SendFailureEscalates(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeFullAuto)
	mock := mail.NewMock()
	mock.FailWith = errors.New("smtp unreachable")
	e := newExecutor(db, mock)

	out, err := e.Execute(context.Background(), agent, emailDecision())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Escalation == nil {
		t.Fatal("no escalation after delivery failure")
	}
	if out.Escalation.IssueType != models.IssueNoCarrierResponse {
		t.Errorf("IssueType = %q, want no_carrier_response", out.Escalation.IssueType)
	}

	// The reservation must be released so a later retry is not blocked.
	var entry models.EmailLog
	if err := db.Order("id ASC").First(&entry).Error; err != nil {
		t.Fatalf("load email log: %v", err)
	}
	if entry.Status != models.EmailFailed {
		t.Errorf("EmailLog status = %q, want failed", entry.Status)
	}
}

func TestExecute_NoDispatcherEmailEscalates(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeAutoEmail)
	db.Model(&models.Carrier{}).Where("id = ?", 4).Update("dispatcher_email", "")
	e := newExecutor(db, mail.NewMock())

	out, err := e.Execute(context.Background(), agent, emailDecision())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Escalation == nil || out.Escalation.IssueType != models.IssueNoCarrierResponse {
		t.Fatalf("Outcome = %+v, want no_carrier_response escalation", out)
	}
}

func TestExecute_LogNote(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeDraftOnly)
	e := newExecutor(db, mail.NewMock())

	out, err := e.Execute(context.Background(), agent, rules.Decision{
		Kind:        rules.ActionLogNote,
		Code:        rules.CodeStaleInventoryAmbiguous,
		SiteID:      3,
		Description: "telemetry lag is routine at this site",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.ActivityType != models.ActivityObservation {
		t.Errorf("ActivityType = %q, want observation", out.ActivityType)
	}
}

func TestExecute_AmbiguousRejected(t *testing.T) {
	db := openTestDB(t)
	agent := seed(t, db, models.ModeDraftOnly)
	e := newExecutor(db, mail.NewMock())

	if _, err := e.Execute(context.Background(), agent, rules.Decision{
		Kind:   rules.ActionFlagAmbiguous,
		SiteID: 3,
	}); err == nil {
		t.Error("ambiguous decision executed")
	}
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, models.ModeAutoEmail)

	attempts := 0
	sender := senderFunc(func(ctx context.Context, msg mail.Message) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "<id@test>", nil
	})
	e := newExecutor(db, sender)

	id, err := e.deliver(context.Background(), mail.Message{To: "x@y.test"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if id != "<id@test>" || attempts != 3 {
		t.Errorf("id=%q attempts=%d", id, attempts)
	}
}

type senderFunc func(ctx context.Context, msg mail.Message) (string, error)

func (f senderFunc) Send(ctx context.Context, msg mail.Message) (string, error) { return f(ctx, msg) }
