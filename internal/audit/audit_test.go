package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sentinel/internal/model"
)

func verdict(actionID, agentID, resourceID string, decision model.Decision, composite float64, ts time.Time) *model.GovernanceVerdict {
	return &model.GovernanceVerdict{
		ActionID:   actionID,
		AgentID:    agentID,
		ActionType: model.ActionScaleDown,
		Target:     model.ActionTarget{ResourceID: resourceID},
		Decision:   decision,
		SRI:        model.SRI{Composite: composite},
		Weights:    model.DefaultWeights(),
		Thresholds: model.DefaultThresholds(),
		Timestamp:  ts,
	}
}

// openLogs returns both backends so every case runs against each.
func openLogs(t *testing.T) map[string]Log {
	t.Helper()
	ctx := context.Background()

	sqlLog, err := OpenSQL(ctx, filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	t.Cleanup(func() { sqlLog.Close() })

	fileLog, err := OpenFile(filepath.Join(t.TempDir(), "decisions"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	return map[string]Log{"sql": sqlLog, "file": fileLog}
}

func TestRecordAndGetByID(t *testing.T) {
	ctx := context.Background()
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			v := verdict("a-1", "cost-bot", "vm-web-01", model.DecisionApproved, 12.5, time.Now().UTC())
			if err := log.Record(ctx, v); err != nil {
				t.Fatalf("Record: %v", err)
			}
			got, err := log.GetByID(ctx, "a-1")
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.Decision != model.DecisionApproved || got.SRI.Composite != 12.5 {
				t.Errorf("got %+v", got)
			}
			// Verdicts are stored as raw JSON; the round trip must not
			// lose or reshape a single field.
			want, _ := json.Marshal(v)
			have, _ := json.Marshal(got)
			if !bytes.Equal(want, have) {
				t.Errorf("round trip drifted:\n want %s\n have %s", want, have)
			}

			if _, err := log.GetByID(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("missing verdict err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			v := verdict("a-1", "bot", "vm", model.DecisionDenied, 80, time.Now().UTC())
			if err := log.Record(ctx, v); err != nil {
				t.Fatalf("first Record: %v", err)
			}
			if err := log.Record(ctx, v); err != nil {
				t.Fatalf("second Record: %v", err)
			}
			got, err := log.GetRecent(ctx, 10, "")
			if err != nil {
				t.Fatalf("GetRecent: %v", err)
			}
			if len(got) != 1 {
				t.Errorf("got %d verdicts, want 1", len(got))
			}
		})
	}
}

func TestGetRecentOrderingAndFilter(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			for _, v := range []*model.GovernanceVerdict{
				verdict("a-1", "bot", "vm-a", model.DecisionApproved, 10, base),
				verdict("a-3", "bot", "vm-b", model.DecisionDenied, 90, base.Add(2*time.Hour)),
				verdict("a-2", "bot", "vm-a", model.DecisionEscalated, 40, base.Add(time.Hour)),
			} {
				if err := log.Record(ctx, v); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}

			got, err := log.GetRecent(ctx, 10, "")
			if err != nil {
				t.Fatalf("GetRecent: %v", err)
			}
			want := []string{"a-3", "a-2", "a-1"}
			if len(got) != len(want) {
				t.Fatalf("got %d verdicts, want %d", len(got), len(want))
			}
			for i, id := range want {
				if got[i].ActionID != id {
					t.Errorf("recent[%d] = %s, want %s", i, got[i].ActionID, id)
				}
			}

			filtered, err := log.GetRecent(ctx, 10, "vm-a")
			if err != nil {
				t.Fatalf("GetRecent filtered: %v", err)
			}
			if len(filtered) != 2 || filtered[0].ActionID != "a-2" {
				t.Errorf("filtered = %+v", filtered)
			}

			limited, err := log.GetRecent(ctx, 1, "")
			if err != nil {
				t.Fatalf("GetRecent limited: %v", err)
			}
			if len(limited) != 1 || limited[0].ActionID != "a-3" {
				t.Errorf("limited = %+v", limited)
			}
		})
	}
}

// Resource filters match by substring so short names find verdicts
// recorded under full provider IDs.
func TestGetRecentFilterMatchesSubstring(t *testing.T) {
	ctx := context.Background()
	full := "/subscriptions/sub-1/resourceGroups/rg-prod/providers/Microsoft.Compute/virtualMachines/vm-web-01"
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			if err := log.Record(ctx, verdict("a-1", "bot", full, model.DecisionApproved, 10, time.Now().UTC())); err != nil {
				t.Fatalf("Record: %v", err)
			}
			got, err := log.GetRecent(ctx, 10, "vm-web-01")
			if err != nil {
				t.Fatalf("GetRecent: %v", err)
			}
			if len(got) != 1 || got[0].Target.ResourceID != full {
				t.Errorf("filtered = %+v, want the full-ID verdict", got)
			}
			none, err := log.GetRecent(ctx, 10, "vm-db-02")
			if err != nil {
				t.Fatalf("GetRecent: %v", err)
			}
			if len(none) != 0 {
				t.Errorf("non-matching filter returned %+v", none)
			}
		})
	}
}

func TestGetByAgent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			for _, v := range []*model.GovernanceVerdict{
				verdict("a-1", "cost-bot", "vm-a", model.DecisionApproved, 10, base),
				verdict("a-2", "sec-bot", "vm-a", model.DecisionDenied, 90, base.Add(time.Hour)),
				verdict("a-3", "cost-bot", "vm-b", model.DecisionEscalated, 40, base.Add(2*time.Hour)),
			} {
				if err := log.Record(ctx, v); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}
			got, err := log.GetByAgent(ctx, "cost-bot", 10)
			if err != nil {
				t.Fatalf("GetByAgent: %v", err)
			}
			if len(got) != 2 || got[0].ActionID != "a-3" || got[1].ActionID != "a-1" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			vs := []*model.GovernanceVerdict{
				verdict("a-1", "bot", "vm-a", model.DecisionApproved, 10, base),
				verdict("a-2", "bot", "vm-a", model.DecisionDenied, 90, base.Add(time.Hour)),
				verdict("a-3", "bot", "vm-b", model.DecisionEscalated, 50, base.Add(2*time.Hour)),
			}
			vs[0].SRI.Policy = 30
			vs[1].SRI.Policy = 60
			vs[1].Violations = []string{"POL-ENV-001", "POL-DR-001"}
			vs[2].Violations = []string{"POL-ENV-001"}
			for _, v := range vs {
				if err := log.Record(ctx, v); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}
			s, err := log.Aggregate(ctx)
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if s.Total != 3 || s.Approved != 1 || s.Escalated != 1 || s.Denied != 1 {
				t.Errorf("summary = %+v", s)
			}
			if s.MinComposite != 10 || s.AvgComposite != 50 || s.MaxComposite != 90 {
				t.Errorf("composite min/avg/max = %v/%v/%v, want 10/50/90",
					s.MinComposite, s.AvgComposite, s.MaxComposite)
			}
			if s.AvgPolicy != 30 {
				t.Errorf("avg policy = %v, want 30", s.AvgPolicy)
			}
			if len(s.TopViolations) != 2 || s.TopViolations[0] != (NamedCount{Name: "POL-ENV-001", Count: 2}) {
				t.Errorf("top violations = %+v", s.TopViolations)
			}
			if len(s.TopResources) != 2 || s.TopResources[0] != (NamedCount{Name: "vm-a", Count: 2}) {
				t.Errorf("top resources = %+v", s.TopResources)
			}
		})
	}
}

// A crafted action ID must not become a path that escapes the
// decisions directory.
func TestFileLogRejectsPathEscapingIDs(t *testing.T) {
	ctx := context.Background()
	log, err := OpenFile(filepath.Join(t.TempDir(), "decisions"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	for _, id := range []string{"../escape", "a/b", `a\b`, ""} {
		v := verdict(id, "bot", "vm-a", model.DecisionApproved, 10, time.Now().UTC())
		if err := log.Record(ctx, v); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("Record(%q) err = %v, want ErrInvalidInput", id, err)
		}
		if _, err := log.GetByID(ctx, id); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("GetByID(%q) err = %v, want ErrInvalidInput", id, err)
		}
	}
}
