// Package watch rebuilds asset groups when their source files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of events to settle.
const DefaultDebounce = 200 * time.Millisecond

// Target is a directory tree and the rebuild to trigger when it changes.
type Target struct {
	Name    string
	Dir     string
	Rebuild func(ctx context.Context) error
}

// Watcher runs Target rebuilds on file system changes.
type Watcher struct {
	targets  []Target
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
}

// New creates a watcher. A zero debounce selects DefaultDebounce.
func New(targets []Target, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		targets:  targets,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]bool),
	}
}

// Run watches until ctx is cancelled. Rebuild errors are logged, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	for _, t := range w.targets {
		if err := addTree(fw, t.Dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", t.Dir, err)
		}
		w.logger.Info("watching", slog.String("task", t.Name), slog.String("dir", t.Dir))
	}

	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, event, fire)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.Any("error", err))

		case <-fire:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event, fire chan<- struct{}) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addTree(fw, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("dir", event.Name), slog.Any("error", err))
			}
		}
	}

	matched := w.targetsFor(event.Name)
	if len(matched) == 0 {
		return
	}
	w.logger.Debug("change detected", slog.String("file", event.Name), slog.String("op", event.Op.String()))

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, name := range matched {
		w.pending[name] = true
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
}

// targetsFor returns the targets whose directory contains path.
func (w *Watcher) targetsFor(path string) []string {
	var names []string
	for _, t := range w.targets {
		rel, err := filepath.Rel(t.Dir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		names = append(names, t.Name)
	}
	return names
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	for _, t := range w.targets {
		if !pending[t.Name] {
			continue
		}
		w.logger.Info("rebuilding", slog.String("task", t.Name))
		if err := t.Rebuild(ctx); err != nil {
			w.logger.Error("rebuild failed", slog.String("task", t.Name), slog.Any("error", err))
		}
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// addTree adds dir and its subdirectories, skipping hidden ones.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
