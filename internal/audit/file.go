package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"sentinel/internal/model"
)

// FileLog is a Log that writes one JSON file per verdict under a
// decisions directory. Local mock mode only: it trades query speed for
// being inspectable with a text editor.
type FileLog struct {
	dir string
	mu  sync.Mutex
}

// OpenFile creates the decisions directory if needed and returns a
// ready file-backed log.
func OpenFile(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create decisions dir: %w", err)
	}
	return &FileLog{dir: dir}, nil
}

func (l *FileLog) path(actionID string) string {
	return filepath.Join(l.dir, actionID+".json")
}

// validID rejects action IDs that would escape the decisions directory
// when used as a file name.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func (l *FileLog) Record(ctx context.Context, v *model.GovernanceVerdict) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(v.ActionID) {
		return fmt.Errorf("%w: action id %q is not a safe file name", model.ErrInvalidInput, v.ActionID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	// Write-then-rename keeps half-written verdicts out of readers.
	tmp := l.path(v.ActionID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("record verdict: %w", err)
	}
	if err := os.Rename(tmp, l.path(v.ActionID)); err != nil {
		return fmt.Errorf("record verdict: %w", err)
	}
	return nil
}

func (l *FileLog) GetRecent(ctx context.Context, limit int, resourceFilter string) ([]model.GovernanceVerdict, error) {
	all, err := l.readAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.GovernanceVerdict
	for _, v := range all {
		if resourceFilter != "" && !strings.Contains(v.Target.ResourceID, resourceFilter) {
			continue
		}
		out = append(out, v)
	}
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (l *FileLog) GetByID(ctx context.Context, actionID string) (*model.GovernanceVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(actionID) {
		return nil, fmt.Errorf("%w: action id %q is not a safe file name", model.ErrInvalidInput, actionID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := os.ReadFile(l.path(actionID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("verdict %s: %w", actionID, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var v model.GovernanceVerdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode stored verdict: %w", err)
	}
	return &v, nil
}

func (l *FileLog) GetByAgent(ctx context.Context, agentID string, limit int) ([]model.GovernanceVerdict, error) {
	all, err := l.readAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.GovernanceVerdict
	for _, v := range all {
		if v.AgentID != agentID {
			continue
		}
		out = append(out, v)
	}
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (l *FileLog) Aggregate(ctx context.Context) (Summary, error) {
	all, err := l.readAll(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(all), nil
}

func (l *FileLog) Close() error { return nil }

// readAll loads every verdict, newest first, action ID ascending
// within equal timestamps.
func (l *FileLog) readAll(ctx context.Context) ([]model.GovernanceVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read decisions dir: %w", err)
	}
	var out []model.GovernanceVerdict
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var v model.GovernanceVerdict
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ActionID < out[j].ActionID
	})
	return out, nil
}

var _ Log = (*FileLog)(nil)
