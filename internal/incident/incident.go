// Package incident serves the historical incident corpus: a snapshot
// store over the seed file plus a ranked full-text search used by the
// dashboard and the MCP surface.
package incident

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"sentinel/internal/model"
)

// Incident is one past operational incident.
type Incident struct {
	IncidentID           string            `json:"incident_id" yaml:"incident_id"`
	Title                string            `json:"title" yaml:"title"`
	Summary              string            `json:"summary" yaml:"summary"`
	ActionType           model.ActionType  `json:"action_type,omitempty" yaml:"action_type,omitempty"`
	ResourceType         string            `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	ResourceName         string            `json:"resource_name,omitempty" yaml:"resource_name,omitempty"`
	Tags                 map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Severity             model.Severity    `json:"severity" yaml:"severity"`
	OutcomeText          string            `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	RecommendedProcedure string            `json:"recommended_procedure,omitempty" yaml:"recommended_procedure,omitempty"`
}

type file struct {
	Incidents []Incident `json:"incidents" yaml:"incidents"`
}

// Store serves immutable incident snapshots with hot reload.
type Store struct {
	path string
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	incidents []Incident
	index     *bm25Index
}

// NewStore loads the incident file and returns a ready store.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromIncidents builds an in-memory store. Used by tests.
func NewStoreFromIncidents(incidents []Incident) *Store {
	s := &Store{}
	s.snap.Store(newSnapshot(incidents))
	return s
}

// Incidents returns the current corpus. Callers must not mutate it.
func (s *Store) Incidents() []Incident {
	return s.snap.Load().incidents
}

// Reload re-reads the incident file and swaps the snapshot. On failure
// the previous snapshot stays in place.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("load incidents: %w", err)
	}
	var f file
	switch filepath.Ext(s.path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &f)
	default:
		err = json.Unmarshal(raw, &f)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.snap.Store(newSnapshot(f.Incidents))
	return nil
}

// Path returns the backing file path ("" for in-memory stores).
func (s *Store) Path() string { return s.path }

func newSnapshot(incidents []Incident) *snapshot {
	docs := make([]string, len(incidents))
	for i, inc := range incidents {
		docs[i] = inc.Title + " " + inc.Summary + " " + inc.OutcomeText + " " +
			string(inc.ActionType) + " " + inc.ResourceType + " " + inc.ResourceName
	}
	return &snapshot{incidents: incidents, index: newBM25Index(docs)}
}

// SearchHit is one ranked full-text search result.
type SearchHit struct {
	Incident Incident `json:"incident"`
	Score    float64  `json:"score"`
}

// Search ranks incidents against a free-text query and returns the top
// results. Ties and equal scores order by incident ID.
func (s *Store) Search(query string, top int) []SearchHit {
	snap := s.snap.Load()
	scored := snap.index.score(query)

	hits := make([]SearchHit, 0, len(scored))
	for i, sc := range scored {
		if sc <= 0 {
			continue
		}
		hits = append(hits, SearchHit{Incident: snap.incidents[i], Score: sc})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Incident.IncidentID < hits[j].Incident.IncidentID
	})
	if top > 0 && len(hits) > top {
		hits = hits[:top]
	}
	return hits
}
