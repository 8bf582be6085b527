// Package watcher watches device directories for accelerator nodes appearing
// or disappearing and reports them in debounced batches.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/szplan/pkg/szplan/logging"
)

// DefaultDebounce is the quiet period after the last matching event before a
// batch is delivered. Driver loads create several nodes in quick succession.
const DefaultDebounce = 500 * time.Millisecond

// DefaultDeviceDir is where accelerator device nodes live.
const DefaultDeviceDir = "/dev"

// DefaultPatterns match NVIDIA device nodes.
var DefaultPatterns = []string{"nvidia*"}

// Event is one change to a watched device node.
type Event struct {
	Path string
	Op   fsnotify.Op
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Op, e.Path)
}

// Watcher watches directories for device node changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	patterns []string
	debounce time.Duration
	paths    map[string]bool
	mu       sync.RWMutex
	closed   bool
	logger   *logging.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPatterns replaces the node name patterns (filepath.Match syntax).
func WithPatterns(patterns ...string) Option {
	return func(w *Watcher) { w.patterns = patterns }
}

// WithDebounce sets the quiet period before a batch is delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a new Watcher.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		patterns: DefaultPatterns,
		debounce: DefaultDebounce,
		paths:    make(map[string]bool),
		logger:   logging.Get("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range w.patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
	}
	return w, nil
}

// Watch adds a directory. Device directories are flat, so subdirectories are
// not followed.
func (w *Watcher) Watch(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[abs] {
		return nil
	}
	if err := w.watcher.Add(abs); err != nil {
		w.logger.Warn("failed to add watch", "path", abs, "error", err)
		return err
	}
	w.paths[abs] = true
	return nil
}

// Unwatch stops watching dir.
func (w *Watcher) Unwatch(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || !w.paths[abs] {
		return
	}
	_ = w.watcher.Remove(abs)
	delete(w.paths, abs)
}

// Matches reports whether a node name matches one of the patterns.
func (w *Watcher) Matches(path string) bool {
	name := filepath.Base(path)
	for _, p := range w.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Run starts the event loop. It blocks until ctx is cancelled or the watcher
// is closed. onChange receives each debounced batch of matching events in
// arrival order; it runs on the event loop, so events arriving meanwhile are
// batched for the next call.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, events []Event)) {
	var (
		pending []Event
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !w.Matches(event.Name) {
				continue
			}
			w.logger.Debug("device node event", "path", event.Name, "op", event.Op.String())
			pending = append(pending, Event{Path: event.Name, Op: event.Op})

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			batch := pending
			pending = nil
			fire = nil
			if onChange != nil {
				onChange(ctx, batch)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Paths returns the watched directories.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	return out
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}
