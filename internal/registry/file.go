package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"sentinel/internal/model"
)

// FileRegistry is a Registry that keeps one JSON file per agent under
// an agents directory. Local mock mode only.
type FileRegistry struct {
	dir string
	mu  sync.Mutex
}

// OpenFile creates the agents directory if needed and returns a ready
// file-backed registry.
func OpenFile(dir string) (*FileRegistry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create agents dir: %w", err)
	}
	return &FileRegistry{dir: dir}, nil
}

func (r *FileRegistry) path(name string) string {
	return filepath.Join(r.dir, name+".json")
}

// validName rejects agent names that would escape the agents directory
// when used as a file name.
func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

func (r *FileRegistry) Register(ctx context.Context, name, cardURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validName(name) {
		return fmt.Errorf("%w: agent name %q is not a safe file name", model.ErrInvalidInput, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	a, err := r.read(name)
	if err != nil {
		a = &Agent{Name: name, RegisteredAt: now}
	}
	a.CardURL = cardURL
	a.LastSeen = now
	return r.write(a)
}

func (r *FileRegistry) RecordDecision(ctx context.Context, name string, d model.Decision, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validName(name) {
		return fmt.Errorf("%w: agent name %q is not a safe file name", model.ErrInvalidInput, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.read(name)
	if err != nil {
		a = &Agent{Name: name, RegisteredAt: at.UTC()}
	}
	a.Stats.add(d)
	a.LastSeen = at.UTC()
	return r.write(a)
}

func (r *FileRegistry) Get(ctx context.Context, name string) (*Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("%w: agent name %q is not a safe file name", model.ErrInvalidInput, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.read(name)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, model.ErrNotFound)
	}
	return a, nil
}

func (r *FileRegistry) List(ctx context.Context) ([]Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read agents dir: %w", err)
	}
	var out []Agent
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := r.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *FileRegistry) Close() error { return nil }

func (r *FileRegistry) read(name string) (*Agent, error) {
	raw, err := os.ReadFile(r.path(name))
	if err != nil {
		return nil, err
	}
	var a Agent
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode agent %s: %w", name, err)
	}
	a.Stats.Total = a.Stats.Approved + a.Stats.Escalated + a.Stats.Denied
	return &a, nil
}

func (r *FileRegistry) write(a *Agent) error {
	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal agent %s: %w", a.Name, err)
	}
	tmp := r.path(a.Name) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write agent %s: %w", a.Name, err)
	}
	if err := os.Rename(tmp, r.path(a.Name)); err != nil {
		return fmt.Errorf("write agent %s: %w", a.Name, err)
	}
	return nil
}

var _ Registry = (*FileRegistry)(nil)
