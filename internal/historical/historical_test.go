package historical

import (
	"context"
	"math"
	"testing"
	"time"

	"sentinel/internal/incident"
	"sentinel/internal/model"
	"sentinel/internal/topology"
)

func testTopo() *topology.Store {
	return topology.NewStoreFromFile(topology.File{
		Resources: []topology.Resource{
			{Name: "vm-dr-01", Type: "virtual_machine", Tags: map[string]string{"role": "dr-standby"}},
			{Name: "sql-orders-prod", Type: "sql_database", Tags: map[string]string{"environment": "production"}},
		},
	})
}

func action(t model.ActionType, resourceID string) *model.ProposedAction {
	a := &model.ProposedAction{ActionType: t, Target: model.ActionTarget{ResourceID: resourceID}}
	if err := a.Normalize(time.Now()); err != nil {
		panic(err)
	}
	return a
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEvaluateFullMatch(t *testing.T) {
	incidents := []incident.Incident{
		{
			IncidentID: "INC-1", Severity: model.SeverityCritical, Summary: "DR standby deleted",
			ActionType: model.ActionDeleteResource, ResourceType: "virtual_machine",
			ResourceName: "vm-dr-01", Tags: map[string]string{"role": "dr-standby"},
			RecommendedProcedure: "Verify DR pairing first.",
		},
	}
	ev := NewEvaluator(incident.NewStoreFromIncidents(incidents), testTopo())

	got, err := ev.Evaluate(context.Background(), action(model.ActionDeleteResource, "vm-dr-01"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.MostRelevantIncident == nil || got.MostRelevantIncident.IncidentID != "INC-1" {
		t.Fatalf("most relevant = %+v", got.MostRelevantIncident)
	}
	if !approx(got.MostRelevantIncident.Similarity, 1.0) {
		t.Errorf("similarity = %v, want 1.0", got.MostRelevantIncident.Similarity)
	}
	if !approx(got.Score, 100) {
		t.Errorf("score = %v, want 100", got.Score)
	}
	if got.RecommendedProcedure != "Verify DR pairing first." {
		t.Errorf("procedure = %q", got.RecommendedProcedure)
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	// Only the tag dimension (0.10) matches: below the 0.30 threshold.
	incidents := []incident.Incident{
		{IncidentID: "INC-1", Severity: model.SeverityHigh, ActionType: model.ActionScaleUp,
			ResourceType: "app_service", Tags: map[string]string{"role": "dr-standby"}},
	}
	ev := NewEvaluator(incident.NewStoreFromIncidents(incidents), testTopo())

	got, err := ev.Evaluate(context.Background(), action(model.ActionDeleteResource, "vm-dr-01"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Score != 0 || len(got.SimilarIncidents) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

func TestResourceTypeOnlyMatchReachesThreshold(t *testing.T) {
	// A resource-type-only match is exactly 0.30 and must qualify.
	incidents := []incident.Incident{
		{IncidentID: "INC-1", Severity: model.SeverityMedium, ActionType: model.ActionRestartService,
			ResourceType: "sql_database"},
	}
	ev := NewEvaluator(incident.NewStoreFromIncidents(incidents), testTopo())

	got, err := ev.Evaluate(context.Background(), action(model.ActionScaleDown, "sql-orders-prod"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got.SimilarIncidents) != 1 {
		t.Fatalf("matches = %+v", got.SimilarIncidents)
	}
	// 0.30 similarity against a medium incident: 0.30 * 40.
	if !approx(got.Score, 12) {
		t.Errorf("score = %v, want 12", got.Score)
	}
}

func TestAdditionalMatchesAddTwentyPerSimilarity(t *testing.T) {
	incidents := []incident.Incident{
		{IncidentID: "INC-1", Severity: model.SeverityHigh, ActionType: model.ActionScaleDown,
			ResourceType: "sql_database", ResourceName: "sql-orders-prod"},
		{IncidentID: "INC-2", Severity: model.SeverityLow, ActionType: model.ActionScaleDown,
			ResourceType: "sql_database"},
	}
	ev := NewEvaluator(incident.NewStoreFromIncidents(incidents), testTopo())

	got, err := ev.Evaluate(context.Background(), action(model.ActionScaleDown, "sql-orders-prod"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got.SimilarIncidents) != 2 {
		t.Fatalf("matches = %+v", got.SimilarIncidents)
	}
	// Best: 0.90 * 75 = 67.5; second: 0.70 * 20 = 14.
	if !approx(got.Score, 81.5) {
		t.Errorf("score = %v, want 81.5", got.Score)
	}
}

func TestTieBreaksByIncidentID(t *testing.T) {
	incidents := []incident.Incident{
		{IncidentID: "INC-B", Severity: model.SeverityHigh, ActionType: model.ActionScaleDown, ResourceType: "sql_database"},
		{IncidentID: "INC-A", Severity: model.SeverityHigh, ActionType: model.ActionScaleDown, ResourceType: "sql_database"},
	}
	ev := NewEvaluator(incident.NewStoreFromIncidents(incidents), testTopo())

	got, err := ev.Evaluate(context.Background(), action(model.ActionScaleDown, "sql-orders-prod"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.MostRelevantIncident.IncidentID != "INC-A" {
		t.Errorf("most relevant = %s, want INC-A", got.MostRelevantIncident.IncidentID)
	}
}

func TestNameMatchIsCaseInsensitiveSubstring(t *testing.T) {
	if !nameMatches("VM-DR-01", "vm-dr-01") {
		t.Error("exact name should match case-insensitively")
	}
	if !nameMatches("vm-dr-01", "/subscriptions/s/providers/p/vm-dr-01") {
		t.Error("incident name inside full resource ID should match")
	}
	if nameMatches("", "vm-dr-01") {
		t.Error("empty incident name must not match")
	}
}
