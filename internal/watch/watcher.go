// Package watch drives rebuilds from filesystem events: changes under
// the project's source tree are debounced into build requests, and
// builds never overlap; a change arriving mid-build coalesces into one
// follow-up build.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce batches editor save bursts into one rebuild.
const defaultDebounce = 300 * time.Millisecond

// BuildFunc runs one build in response to changes.
type BuildFunc func(ctx context.Context) error

// Watcher watches one project root.
type Watcher struct {
	root       string
	ignoreDirs map[string]struct{}
	debounce   time.Duration
	build      BuildFunc
}

// New creates a watcher over root. ignoreDirs are directory names under
// root that never trigger rebuilds (the output and cache directories).
func New(root string, ignoreDirs []string, build BuildFunc) *Watcher {
	ignore := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[filepath.Clean(d)] = struct{}{}
	}
	return &Watcher{
		root:       root,
		ignoreDirs: ignore,
		debounce:   defaultDebounce,
		build:      build,
	}
}

// Run watches until ctx is cancelled. Build failures are logged, not
// fatal: the next change triggers another attempt.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := w.addDirsRecursive(watcher, w.root); err != nil {
		return err
	}

	requests := make(chan struct{}, 1)
	trigger := w.debouncer(requests)
	go w.rebuildWorker(ctx, requests)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(watcher, ev, trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

// debouncer returns a trigger that forwards to requests only after the
// debounce window has passed without further triggers.
func (w *Watcher) debouncer(requests chan<- struct{}) func() {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			select {
			case requests <- struct{}{}:
			default:
			}
		})
	}
}

// rebuildWorker serializes builds; a request during a running build
// coalesces into exactly one follow-up.
func (w *Watcher) rebuildWorker(ctx context.Context, requests chan struct{}) {
	var mu sync.Mutex
	running := false
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-requests:
			mu.Lock()
			if running {
				pending = true
				mu.Unlock()
				continue
			}
			running = true
			mu.Unlock()

			slog.Info("Change detected, rebuilding")
			if err := w.build(ctx); err != nil {
				slog.Warn("Rebuild failed", "error", err)
			}

			mu.Lock()
			running = false
			if pending {
				pending = false
				mu.Unlock()
				select {
				case requests <- struct{}{}:
				default:
				}
			} else {
				mu.Unlock()
			}
		}
	}
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event, trigger func()) {
	if w.shouldIgnore(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addDirsRecursive(watcher, ev.Name)
		}
	}
	slog.Debug("File change", "path", ev.Name, "op", ev.Op.String())
	trigger()
}

func (w *Watcher) addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			slog.Warn("Watch add failed", "dir", path, "error", err)
		}
		return nil
	})
}

// shouldIgnore filters events from hidden files and directories, editor
// temp files, and the ignored directories. Every path component below
// the root is checked, so a write deep inside a hidden directory (the
// cache directory, say) never triggers a rebuild of itself.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#")) {
		return true
	}
	if base == "Thumbs.db" {
		return true
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return strings.HasPrefix(base, ".") && base != "." && base != ".."
	}
	for i, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
		if i == 0 {
			if _, ignored := w.ignoreDirs[part]; ignored {
				return true
			}
		}
	}
	return false
}
