// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/runtime-insights/insights-agent/lib/archive"
	"github.com/runtime-insights/insights-agent/lib/clock"
)

// DefaultSettle is how long a file must go without events before it
// is noticed.
const DefaultSettle = 2 * time.Second

// Notifier receives archive addresses. *Noticer implements it.
type Notifier interface {
	Notice(raw string)
}

// Watcher notices archive files in deployment directories: everything
// present at start, then each file created, written or renamed into
// place. Directories are watched non-recursively.
//
// Copies into a watched directory produce a stream of write events;
// a file is only noticed once it has been quiet for the settle period,
// so partially written archives are not fingerprinted.
type Watcher struct {
	dirs     []string
	notifier Notifier
	clock    clock.Clock
	settle   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher returns a Watcher over dirs. A settle of zero notices
// files on their first event.
func NewWatcher(dirs []string, notifier Notifier, clk clock.Clock, settle time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		dirs:     dirs,
		notifier: notifier,
		clock:    clk,
		settle:   settle,
		logger:   logger,
		pending:  make(map[string]time.Time),
	}
}

// Run scans and watches until ctx is cancelled. It returns an error
// only when watching cannot start.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating directory watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	// Watch before scanning so a file landing between the two is seen
	// by at least one of them; address dedup absorbs the overlap.
	for _, dir := range w.dirs {
		w.scan(dir)
	}

	var tick <-chan time.Time
	if w.settle > 0 {
		ticker := w.clock.NewTicker(w.settle)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.observe(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("directory watcher error", "error", err)
		case <-tick:
			w.flush()
		}
	}
}

// scan notices the archive files directly inside dir.
func (w *Watcher) scan(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("scanning deployment directory failed", "dir", dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && archive.IsArchiveName(entry.Name()) {
			w.notifier.Notice(filepath.Join(dir, entry.Name()))
		}
	}
}

// observe records an event for path, or notices it immediately when
// there is no settle period.
func (w *Watcher) observe(path string) {
	if !archive.IsArchiveName(filepath.Base(path)) {
		return
	}
	if w.settle <= 0 {
		w.notifier.Notice(path)
		return
	}
	w.mu.Lock()
	w.pending[path] = w.clock.Now()
	w.mu.Unlock()
}

// flush notices every pending path that has been quiet for the settle
// period, in path order.
func (w *Watcher) flush() {
	now := w.clock.Now()
	var ready []string
	w.mu.Lock()
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		w.notifier.Notice(path)
	}
}

// Pending returns the number of paths waiting to settle.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
