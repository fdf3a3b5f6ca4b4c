package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"sentinel/internal/model"
)

// policyDoc is the on-disk shape of one policy.
type policyDoc struct {
	PolicyID    string         `json:"policy_id" yaml:"policy_id"`
	Severity    model.Severity `json:"severity" yaml:"severity"`
	Description string         `json:"description" yaml:"description"`
	Predicate   predicateDoc   `json:"predicate" yaml:"predicate"`
}

// predicateDoc is the union of all predicate variant parameters; Kind
// selects which ones are read.
type predicateDoc struct {
	Kind string `json:"kind" yaml:"kind"`

	// tag_match
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// action_in, and the optional action scope of the other variants
	Actions []model.ActionType `json:"actions,omitempty" yaml:"actions,omitempty"`

	// time_window
	DayStart *int `json:"day_start,omitempty" yaml:"day_start,omitempty"`
	DayEnd   *int `json:"day_end,omitempty" yaml:"day_end,omitempty"`
	StartMin *int `json:"start_minute,omitempty" yaml:"start_minute,omitempty"`
	EndMin   *int `json:"end_minute,omitempty" yaml:"end_minute,omitempty"`

	// resource_type_in
	ResourceTypes []string `json:"resource_types,omitempty" yaml:"resource_types,omitempty"`

	// min_dependents
	MinDependents *int `json:"min_dependents,omitempty" yaml:"min_dependents,omitempty"`
}

type file struct {
	Policies []policyDoc `json:"policies" yaml:"policies"`
}

// Load parses the policy seed file. Unknown predicate kinds and invalid
// parameters are configuration errors: the whole load fails rather than
// silently skipping a rule.
func Load(path string) ([]Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	var f file
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &f)
	default:
		err = json.Unmarshal(raw, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", model.ErrConfig, path, err)
	}
	return build(f.Policies)
}

func build(docs []policyDoc) ([]Policy, error) {
	out := make([]Policy, 0, len(docs))
	for _, d := range docs {
		if d.PolicyID == "" {
			return nil, fmt.Errorf("%w: policy with empty policy_id", model.ErrConfig)
		}
		switch d.Severity {
		case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
		default:
			return nil, fmt.Errorf("%w: policy %s: unknown severity %q", model.ErrConfig, d.PolicyID, d.Severity)
		}
		for _, a := range d.Predicate.Actions {
			if !model.ValidActionType(a) {
				return nil, fmt.Errorf("%w: policy %s: unknown action type %q", model.ErrConfig, d.PolicyID, a)
			}
		}
		pred, err := buildPredicate(d.Predicate)
		if err != nil {
			return nil, fmt.Errorf("%w: policy %s: %v", model.ErrConfig, d.PolicyID, err)
		}
		out = append(out, Policy{
			PolicyID:    d.PolicyID,
			Severity:    d.Severity,
			Description: d.Description,
			Predicate:   pred,
		})
	}
	return out, nil
}

func buildPredicate(d predicateDoc) (Predicate, error) {
	switch d.Kind {
	case "tag_match":
		if d.Key == "" {
			return nil, fmt.Errorf("tag_match requires key")
		}
		return TagMatch{Key: d.Key, Value: d.Value, Actions: d.Actions}, nil

	case "action_in":
		if len(d.Actions) == 0 {
			return nil, fmt.Errorf("action_in requires at least one action")
		}
		return ActionIn{Actions: d.Actions}, nil

	case "time_window":
		if d.DayStart == nil || d.DayEnd == nil || d.StartMin == nil || d.EndMin == nil {
			return nil, fmt.Errorf("time_window requires day_start, day_end, start_minute, end_minute")
		}
		if *d.DayStart < 0 || *d.DayStart > 6 || *d.DayEnd < 0 || *d.DayEnd > 6 {
			return nil, fmt.Errorf("time_window days must be 0 (Monday) through 6 (Sunday)")
		}
		if *d.StartMin < 0 || *d.StartMin >= 24*60 || *d.EndMin < 0 || *d.EndMin >= 24*60 {
			return nil, fmt.Errorf("time_window minutes must be within one day")
		}
		return TimeWindow{
			DayStart: *d.DayStart, DayEnd: *d.DayEnd,
			StartMin: *d.StartMin, EndMin: *d.EndMin,
			Actions: d.Actions,
		}, nil

	case "resource_type_in":
		if len(d.ResourceTypes) == 0 {
			return nil, fmt.Errorf("resource_type_in requires at least one resource type")
		}
		return ResourceTypeIn{Types: d.ResourceTypes, Actions: d.Actions}, nil

	case "env_requires_review":
		return EnvRequiresReview{Actions: d.Actions}, nil

	case "min_dependents":
		if d.MinDependents == nil || *d.MinDependents < 1 {
			return nil, fmt.Errorf("min_dependents requires min_dependents >= 1")
		}
		return MinDependents{N: *d.MinDependents, Actions: d.Actions}, nil

	default:
		return nil, fmt.Errorf("unknown predicate kind %q", d.Kind)
	}
}

// Store serves immutable policy snapshots with hot reload.
type Store struct {
	path string
	snap atomic.Pointer[[]Policy]
}

// NewStore loads the policy file and returns a ready store.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromPolicies builds an in-memory store. Used by tests.
func NewStoreFromPolicies(ps []Policy) *Store {
	s := &Store{}
	s.snap.Store(&ps)
	return s
}

// Policies returns the current policy set. Callers must not mutate it.
func (s *Store) Policies() []Policy {
	return *s.snap.Load()
}

// Reload re-reads the policy file and swaps the snapshot. On failure
// the previous snapshot stays in place.
func (s *Store) Reload() error {
	ps, err := Load(s.path)
	if err != nil {
		return err
	}
	s.snap.Store(&ps)
	return nil
}

// Path returns the backing file path ("" for in-memory stores).
func (s *Store) Path() string { return s.path }
