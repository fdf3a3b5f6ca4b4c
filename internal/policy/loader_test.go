package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sentinel/internal/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeTemp(t, "policies.json", `{
  "policies": [
    {
      "policy_id": "POL-DR-001",
      "severity": "critical",
      "description": "No destructive changes to DR standbys",
      "predicate": {"kind": "tag_match", "key": "role", "value": "dr-standby", "actions": ["delete_resource", "scale_down"]}
    },
    {
      "policy_id": "POL-TW-001",
      "severity": "high",
      "description": "No restarts in the Friday freeze",
      "predicate": {"kind": "time_window", "day_start": 4, "day_end": 6, "start_minute": 1080, "end_minute": 1380, "actions": ["restart_service"]}
    }
  ]
}`)
	ps, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("got %d policies, want 2", len(ps))
	}
	if ps[0].Predicate.Kind() != "tag_match" || ps[1].Predicate.Kind() != "time_window" {
		t.Errorf("unexpected predicate kinds: %s, %s", ps[0].Predicate.Kind(), ps[1].Predicate.Kind())
	}
	tw, ok := ps[1].Predicate.(TimeWindow)
	if !ok {
		t.Fatalf("predicate is %T, want TimeWindow", ps[1].Predicate)
	}
	if tw.DayStart != 4 || tw.EndMin != 1380 {
		t.Errorf("time window parsed as %+v", tw)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeTemp(t, "policies.yaml", `
policies:
  - policy_id: POL-ENV-001
    severity: medium
    description: Production changes require review
    predicate:
      kind: env_requires_review
`)
	ps, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ps) != 1 || ps[0].Predicate.Kind() != "env_requires_review" {
		t.Fatalf("unexpected policies: %+v", ps)
	}
}

func TestLoadRejectsBadDocs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown kind", `{"policies":[{"policy_id":"P","severity":"low","predicate":{"kind":"regex_match"}}]}`},
		{"unknown severity", `{"policies":[{"policy_id":"P","severity":"urgent","predicate":{"kind":"env_requires_review"}}]}`},
		{"unknown action type", `{"policies":[{"policy_id":"P","severity":"low","predicate":{"kind":"action_in","actions":["explode"]}}]}`},
		{"missing policy id", `{"policies":[{"severity":"low","predicate":{"kind":"env_requires_review"}}]}`},
		{"time window out of range", `{"policies":[{"policy_id":"P","severity":"low","predicate":{"kind":"time_window","day_start":7,"day_end":0,"start_minute":0,"end_minute":60}}]}`},
		{"min_dependents zero", `{"policies":[{"policy_id":"P","severity":"low","predicate":{"kind":"min_dependents","min_dependents":0}}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, "bad.json", tc.doc)
			_, err := Load(path)
			if !errors.Is(err, model.ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestStoreReloadKeepsSnapshotOnError(t *testing.T) {
	path := writeTemp(t, "policies.json",
		`{"policies":[{"policy_id":"P1","severity":"low","predicate":{"kind":"env_requires_review"}}]}`)
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := store.Policies(); len(got) != 1 || got[0].PolicyID != "P1" {
		t.Fatalf("snapshot after failed reload = %+v", got)
	}
}
