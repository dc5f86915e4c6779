package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/staleness"
)

var noon = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func defaultThresholds() Thresholds {
	return Thresholds{
		CriticalRunoutHours:    12,
		HighRunoutHours:        24,
		UnreliableScoreCutoff:  0.4,
		DelayedOKCooldownHours: 4,
	}
}

func defaultPolicy() staleness.OvernightPolicy {
	return staleness.OvernightPolicy{
		TimeAwareEscalation: true,
		StartHour:           22,
		EndHour:             6,
		Multiplier:          1.5,
	}
}

func evalOne(t *testing.T, site SiteView) Result {
	t.Helper()
	return Evaluate(Input{
		Now:        noon,
		Policy:     defaultPolicy(),
		Thresholds: defaultThresholds(),
		Sites:      []SiteView{site},
	})
}

func TestEvaluate_NoSites(t *testing.T) {
	res := Evaluate(Input{Now: noon, Policy: defaultPolicy(), Thresholds: defaultThresholds()})

	if len(res.Decisions) != 0 {
		t.Errorf("Decisions = %d, want 0", len(res.Decisions))
	}
	if len(res.Notes) != 1 || res.Notes[0] != "no sites assigned" {
		t.Errorf("Notes = %v, want run-level no-sites note", res.Notes)
	}
}

func TestEvaluate_CriticalRunoutNoLoads(t *testing.T) {
	res := evalOne(t, SiteView{ID: 1, Code: "SITE-A", HoursToRunout: 10, RunoutThresholdHours: 48})

	if len(res.Decisions) != 1 {
		t.Fatalf("Decisions = %d, want 1", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.Kind != ActionCreateEscalation {
		t.Errorf("Kind = %q, want escalation, never an email", d.Kind)
	}
	if d.Code != CodeRunoutCritical {
		t.Errorf("Code = %q, want %q", d.Code, CodeRunoutCritical)
	}
	if d.Priority != "critical" {
		t.Errorf("Priority = %q, want critical", d.Priority)
	}
	if d.Metrics["hours_to_runout"] != 10 {
		t.Errorf("metrics hours_to_runout = %v, want 10", d.Metrics["hours_to_runout"])
	}
}

// End-to-end scenario from the operational runbook: 1200 gal at 100 gal/hr
// is exactly 12.0 hours, which must still classify as critical.
func TestEvaluate_ExactCriticalBoundary(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-S",
		InventoryGal:         1200,
		HoursToRunout:        1200.0 / 100.0,
		RunoutThresholdHours: 48,
	})

	if len(res.Decisions) != 1 {
		t.Fatalf("Decisions = %d, want 1", len(res.Decisions))
	}
	if res.Decisions[0].Code != CodeRunoutCritical {
		t.Errorf("Code = %q, want %q at exactly 12.0h", res.Decisions[0].Code, CodeRunoutCritical)
	}
	if res.Decisions[0].Priority != "critical" {
		t.Errorf("Priority = %q, want critical", res.Decisions[0].Priority)
	}
}

func TestEvaluate_HighRunoutNoLoads(t *testing.T) {
	res := evalOne(t, SiteView{ID: 1, Code: "SITE-B", HoursToRunout: 20, RunoutThresholdHours: 48})

	if len(res.Decisions) != 1 {
		t.Fatalf("Decisions = %d, want 1", len(res.Decisions))
	}
	if res.Decisions[0].Code != CodeRunoutHigh {
		t.Errorf("Code = %q, want %q", res.Decisions[0].Code, CodeRunoutHigh)
	}
	if res.Decisions[0].Priority != "high" {
		t.Errorf("Priority = %q, want high", res.Decisions[0].Priority)
	}
}

func TestEvaluate_InboundLoadSuppressesRunoutEscalation(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-C",
		HoursToRunout:        10,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-1", Status: "in_transit", CarrierScore: 0.8, ScoreKnown: true},
		},
	})

	for _, d := range res.Decisions {
		if d.Code == CodeRunoutCritical || d.Code == CodeRunoutHigh {
			t.Errorf("got %s despite an inbound load", d.Code)
		}
	}
}

func TestEvaluate_StaleInventoryIsAmbiguous(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-D",
		HoursToRunout:        18,
		RunoutThresholdHours: 48,
		InventoryStale:       true,
		InventoryStaleHours:  6,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-1", Status: "in_transit"},
		},
	})

	amb := res.Ambiguous()
	if len(amb) != 1 {
		t.Fatalf("Ambiguous = %d, want 1", len(amb))
	}
	if amb[0].Code != CodeStaleInventoryAmbiguous {
		t.Errorf("Code = %q, want %q", amb[0].Code, CodeStaleInventoryAmbiguous)
	}
	if amb[0].Metrics["inventory_stale_hours"] != 6 {
		t.Errorf("metrics inventory_stale_hours = %v, want 6", amb[0].Metrics["inventory_stale_hours"])
	}
}

func TestEvaluate_StaleInventoryHealthyRunoutNotAmbiguous(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-E",
		HoursToRunout:        60,
		RunoutThresholdHours: 48,
		InventoryStale:       true,
		InventoryStaleHours:  6,
	})

	if len(res.Ambiguous()) != 0 {
		t.Error("stale inventory with healthy runout must not be ambiguous")
	}
}

func TestEvaluate_StaleETARequestsEmail(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-F",
		HoursToRunout:        30,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-77", Status: "in_transit",
				ETAStale: true, ETAStaleHours: 6, CarrierScore: 0.9, ScoreKnown: true},
		},
	})

	if len(res.Decisions) != 1 {
		t.Fatalf("Decisions = %d, want 1", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.Kind != ActionSendEmail {
		t.Errorf("Kind = %q, want send_email", d.Kind)
	}
	if d.Code != CodeStaleETARequest {
		t.Errorf("Code = %q, want %q", d.Code, CodeStaleETARequest)
	}
	if d.TemplateClass != "eta_request" {
		t.Errorf("TemplateClass = %q, want eta_request", d.TemplateClass)
	}
	if d.LoadID == nil || *d.LoadID != 5 {
		t.Errorf("LoadID = %v, want 5", d.LoadID)
	}
}

func TestEvaluate_UnreliableCarrierEscalatesInsteadOfEmail(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-G",
		HoursToRunout:        30,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-88", Carrier: "Slowhaul", Status: "in_transit",
				ETAStale: true, ETAStaleHours: 8, CarrierScore: 0.3, ScoreKnown: true},
		},
	})

	if len(res.Decisions) != 1 {
		t.Fatalf("Decisions = %d, want 1", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.Kind != ActionCreateEscalation {
		t.Errorf("Kind = %q, want escalation — must NOT email an unreliable carrier", d.Kind)
	}
	if d.Code != CodeUnreliableCarrierEscalate {
		t.Errorf("Code = %q, want %q", d.Code, CodeUnreliableCarrierEscalate)
	}
	if d.Priority != "medium" {
		t.Errorf("Priority = %q, want medium", d.Priority)
	}
}

func TestEvaluate_UnknownScoreStillEmails(t *testing.T) {
	// A neutral (unknown) score below nothing: the carrier gets the email.
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-H",
		HoursToRunout:        30,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-99", Status: "in_transit",
				ETAStale: true, ETAStaleHours: 5, CarrierScore: 0.5, ScoreKnown: false},
		},
	})

	if len(res.Decisions) != 1 || res.Decisions[0].Kind != ActionSendEmail {
		t.Fatalf("want a single email decision for unknown-score carrier, got %+v", res.Decisions)
	}
}

func TestEvaluate_DelayedLoadAtRiskSite(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-I",
		HoursToRunout:        30,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-11", Status: "delayed"},
		},
	})

	if len(res.Decisions) != 1 {
		t.Fatalf("Decisions = %d, want 1", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.Code != CodeDelayedLoadAtRisk {
		t.Errorf("Code = %q, want %q", d.Code, CodeDelayedLoadAtRisk)
	}
	// 30h is under the site threshold (48) but over the high line (24).
	if d.Priority != "medium" {
		t.Errorf("Priority = %q, want medium", d.Priority)
	}
}

func TestEvaluate_DelayedLoadHealthySiteEmails(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-J",
		HoursToRunout:        72,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-12", Status: "delayed"},
		},
	})

	if len(res.Decisions) != 1 {
		t.Fatalf("Decisions = %d, want 1", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.Kind != ActionSendEmail {
		t.Errorf("Kind = %q, want send_email", d.Kind)
	}
	if d.Code != CodeDelayedLoadSiteOK {
		t.Errorf("Code = %q, want %q", d.Code, CodeDelayedLoadSiteOK)
	}
	if d.CooldownHours != 4 {
		t.Errorf("CooldownHours = %v, want 4 (longer than SLA-derived)", d.CooldownHours)
	}
}

func TestEvaluate_OvernightAdjustsThresholds(t *testing.T) {
	// 2 AM is inside the 22→6 window, so high = 24 * 1.5 = 36 and a site
	// at 30h with no loads escalates HIGH that would be silent at noon.
	twoAM := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	site := SiteView{ID: 1, Code: "SITE-K", HoursToRunout: 30, RunoutThresholdHours: 48}

	day := Evaluate(Input{Now: noon, Policy: defaultPolicy(), Thresholds: defaultThresholds(), Sites: []SiteView{site}})
	if len(day.Decisions) != 0 {
		t.Errorf("daytime decisions = %d, want 0", len(day.Decisions))
	}

	night := Evaluate(Input{Now: twoAM, Policy: defaultPolicy(), Thresholds: defaultThresholds(), Sites: []SiteView{site}})
	if len(night.Decisions) != 1 || night.Decisions[0].Code != CodeRunoutHigh {
		t.Fatalf("overnight decisions = %+v, want one RUNOUT_HIGH", night.Decisions)
	}
}

func TestEvaluate_AllClearIsSilent(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "SITE-L",
		HoursToRunout:        90,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-13", Status: "in_transit"},
		},
	})

	if len(res.Decisions) != 0 {
		t.Errorf("Decisions = %+v, want none", res.Decisions)
	}
	if res.SitesChecked != 1 || res.LoadsChecked != 1 {
		t.Errorf("counters = %d sites / %d loads, want 1/1", res.SitesChecked, res.LoadsChecked)
	}
}

func TestEvaluate_NeverIngestedSiteIsNotCritical(t *testing.T) {
	// A freshly onboarded site has reported nothing: zero runout hours and
	// the never-updated staleness sentinel. Zero means no data, not an
	// empty tank — the sweep owns the missing-telemetry concern.
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "NEW-SITE",
		HoursToRunout:        0,
		RunoutThresholdHours: 48,
		InventoryStale:       true,
		InventoryStaleHours:  staleness.NeverUpdated,
	})

	if len(res.Decisions) != 0 {
		t.Fatalf("Decisions = %+v, want none for a never-ingested site", res.Decisions)
	}
}

func TestEvaluate_ZeroRunoutWithInboundLoadStaysQuiet(t *testing.T) {
	res := evalOne(t, SiteView{
		ID:                   1,
		Code:                 "NEW-SITE",
		HoursToRunout:        0,
		RunoutThresholdHours: 48,
		Loads: []LoadView{
			{ID: 5, CarrierID: 2, PONumber: "PO-1", Status: "in_transit"},
		},
	})

	for _, d := range res.Decisions {
		if d.Code == CodeRunoutCritical || d.Code == CodeRunoutHigh {
			t.Errorf("got %s for a site with no runout data", d.Code)
		}
	}
}

func TestEvaluate_MultiSiteCarrierRiskGoesToTier2(t *testing.T) {
	carrier := uint(7)
	sites := []SiteView{
		{ID: 1, Code: "SITE-M", HoursToRunout: 20, RunoutThresholdHours: 48,
			Loads: []LoadView{{ID: 5, CarrierID: carrier, Carrier: "Apex", PONumber: "PO-1", Status: "in_transit"}}},
		{ID: 2, Code: "SITE-N", HoursToRunout: 30, RunoutThresholdHours: 48,
			Loads: []LoadView{{ID: 6, CarrierID: carrier, Carrier: "Apex", PONumber: "PO-2", Status: "in_transit"}}},
	}
	res := Evaluate(Input{Now: noon, Policy: defaultPolicy(), Thresholds: defaultThresholds(), Sites: sites})

	var corr []Decision
	for _, d := range res.Decisions {
		if d.Code == CodeMultiSiteCarrierRisk {
			corr = append(corr, d)
		}
	}
	if len(corr) != 1 {
		t.Fatalf("correlation decisions = %d, want 1 (all: %+v)", len(corr), res.Decisions)
	}
	d := corr[0]
	if d.Kind != ActionFlagAmbiguous {
		t.Errorf("Kind = %q, want flag_ambiguous — correlation defers to Tier 2", d.Kind)
	}
	if d.CarrierID == nil || *d.CarrierID != carrier {
		t.Errorf("CarrierID = %v, want %d", d.CarrierID, carrier)
	}
	if d.Metrics["at_risk_sites"] != 2 {
		t.Errorf("metrics at_risk_sites = %v, want 2", d.Metrics["at_risk_sites"])
	}
	for _, code := range []string{"SITE-M", "SITE-N"} {
		if !strings.Contains(d.Description, code) {
			t.Errorf("Description = %q, missing %s", d.Description, code)
		}
	}
}

func TestEvaluate_SingleAtRiskSiteNoCorrelation(t *testing.T) {
	res := evalOne(t, SiteView{
		ID: 1, Code: "SITE-O", HoursToRunout: 20, RunoutThresholdHours: 48,
		Loads: []LoadView{{ID: 5, CarrierID: 7, Carrier: "Apex", PONumber: "PO-1", Status: "in_transit"}},
	})

	for _, d := range res.Decisions {
		if d.Code == CodeMultiSiteCarrierRisk {
			t.Error("correlation fired for a single at-risk site")
		}
	}
}

func TestResult_Summary(t *testing.T) {
	res := Result{
		SitesChecked: 3,
		LoadsChecked: 2,
		Decisions: []Decision{
			{Kind: ActionCreateEscalation},
			{Kind: ActionSendEmail},
			{Kind: ActionFlagAmbiguous},
		},
	}

	sum := res.Summary()
	for _, want := range []string{"3 sites", "2 loads", "1 escalations", "1 emails", "1 ambiguous"} {
		if !strings.Contains(sum, want) {
			t.Errorf("Summary() = %q, missing %q", sum, want)
		}
	}
}
