// Package topology serves the resource dependency graph and
// per-resource attributes used by the blast-radius and financial
// evaluators. The graph is read-only at request time; hot reloads
// swap in a fresh immutable snapshot.
package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Resource is one node of the dependency graph.
type Resource struct {
	Name           string            `json:"name" yaml:"name"`
	ID             string            `json:"id,omitempty" yaml:"id,omitempty"`
	Type           string            `json:"type" yaml:"type"`
	Location       string            `json:"location,omitempty" yaml:"location,omitempty"`
	Tags           map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Dependents     []string          `json:"dependents,omitempty" yaml:"dependents,omitempty"`
	Governs        []string          `json:"governs,omitempty" yaml:"governs,omitempty"`
	ServicesHosted []string          `json:"services_hosted,omitempty" yaml:"services_hosted,omitempty"`
	MonthlyCost    *float64          `json:"monthly_cost,omitempty" yaml:"monthly_cost,omitempty"`
}

// Criticality returns the resource's criticality tag value.
func (r *Resource) Criticality() string {
	return r.Tags["criticality"]
}

// Edge is an explicit directed dependency edge not reflected in the
// per-resource fields. Explicit edges are what make cycles expressible.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// File is the persisted topology document.
type File struct {
	Resources       []Resource `json:"resources" yaml:"resources"`
	DependencyEdges []Edge     `json:"dependency_edges,omitempty" yaml:"dependency_edges,omitempty"`
}

// Snapshot is an immutable view of the graph. Safe for concurrent reads.
type Snapshot struct {
	byName map[string]*Resource
	edges  []Edge
}

// Len returns the number of resources in the snapshot.
func (s *Snapshot) Len() int { return len(s.byName) }

// Edges returns the explicit dependency edges.
func (s *Snapshot) Edges() []Edge { return s.edges }

// Find resolves a resource by name. Full cloud resource IDs of the form
// /subscriptions/.../providers/{type}/{name} resolve by their final
// path segment. Returns nil when unknown.
func (s *Snapshot) Find(resourceID string) *Resource {
	if r, ok := s.byName[resourceID]; ok {
		return r
	}
	if i := strings.LastIndex(resourceID, "/"); i >= 0 {
		if r, ok := s.byName[resourceID[i+1:]]; ok {
			return r
		}
	}
	return nil
}

// Neighborhood returns the one-hop neighborhood of the resource:
// dependencies, dependents, governed resources, and both endpoints of
// explicit edges touching it. Deduplicated, insertion-ordered.
func (s *Snapshot) Neighborhood(r *Resource) []string {
	if r == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, d := range r.Dependencies {
		add(d)
	}
	for _, d := range r.Dependents {
		add(d)
	}
	for _, g := range r.Governs {
		add(g)
	}
	for _, e := range s.edges {
		if e.From == r.Name {
			add(e.To)
		} else if e.To == r.Name {
			add(e.From)
		}
	}
	return out
}

// Store serves graph snapshots. Reload replaces the snapshot atomically
// so in-flight readers keep a consistent view.
type Store struct {
	path string
	snap atomic.Pointer[Snapshot]
}

// NewStore loads the topology file and returns a ready store.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromFile builds a store directly from a parsed document.
// Used by tests that do not want to touch the filesystem.
func NewStoreFromFile(f File) *Store {
	s := &Store{}
	s.snap.Store(buildSnapshot(f))
	return s
}

// Snapshot returns the current immutable graph view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Reload re-reads the topology file and swaps the snapshot. On parse
// failure the previous snapshot stays in place.
func (s *Store) Reload() error {
	f, err := loadFile(s.path)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}
	s.snap.Store(buildSnapshot(f))
	return nil
}

// Path returns the backing file path ("" for in-memory stores).
func (s *Store) Path() string { return s.path }

func buildSnapshot(f File) *Snapshot {
	byName := make(map[string]*Resource, len(f.Resources))
	for i := range f.Resources {
		r := &f.Resources[i]
		byName[r.Name] = r
	}
	return &Snapshot{byName: byName, edges: f.DependencyEdges}
}

func loadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return File{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &f); err != nil {
			return File{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return f, nil
}
