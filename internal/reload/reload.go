// Package reload watches seed data files and triggers store reloads.
// Stores swap immutable snapshots, so readers are never blocked while
// a reload is in progress.
package reload

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces the write+rename bursts editors and atomic-save
// tools produce into a single reload.
const debounce = 250 * time.Millisecond

// Reloadable is a store whose backing file can be re-read.
type Reloadable interface {
	Path() string
	Reload() error
}

// Watch reloads each store when its backing file changes, until ctx is
// cancelled. Stores with an empty path (in-memory) are skipped.
func Watch(ctx context.Context, stores ...Reloadable) error {
	byPath := make(map[string]Reloadable)
	dirs := make(map[string]bool)
	for _, s := range stores {
		if s.Path() == "" {
			continue
		}
		abs, err := filepath.Abs(s.Path())
		if err != nil {
			return err
		}
		byPath[abs] = s
		dirs[filepath.Dir(abs)] = true
	}
	if len(byPath) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch directories, not files: rename-over-replace drops the watch
	// on the file itself.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
	}

	go run(ctx, watcher, byPath)
	return nil
}

func run(ctx context.Context, watcher *fsnotify.Watcher, byPath map[string]Reloadable) {
	defer watcher.Close()

	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if _, tracked := byPath[abs]; !tracked {
				continue
			}
			pending[abs] = true
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			for abs := range pending {
				store := byPath[abs]
				if err := store.Reload(); err != nil {
					slog.Warn("hot reload failed, keeping previous snapshot", "path", abs, "err", err)
				} else {
					slog.Info("reloaded seed file", "path", abs)
				}
			}
			pending = make(map[string]bool)
			fire = nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", "err", err)
		}
	}
}
