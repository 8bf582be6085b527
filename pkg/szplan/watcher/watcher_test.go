package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newTestWatcher(t *testing.T, opts ...Option) *Watcher {
	t.Helper()
	w, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestNew(t *testing.T) {
	w := newTestWatcher(t)

	if w.watcher == nil {
		t.Error("New() did not create fsnotify watcher")
	}
	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v, want %v", w.debounce, DefaultDebounce)
	}
}

func TestNewInvalidPattern(t *testing.T) {
	if _, err := New(WithPatterns("[")); err == nil {
		t.Error("New() should reject a malformed pattern")
	}
}

func TestWatch(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()

	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := w.Watch(dir); err != nil {
		t.Fatalf("second Watch() error = %v", err)
	}

	paths := w.Paths()
	if len(paths) != 1 || paths[0] != dir {
		t.Errorf("Paths() = %v, want [%s]", paths, dir)
	}
}

func TestWatchErrors(t *testing.T) {
	w := newTestWatcher(t)

	if err := w.Watch(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Watch() should fail for a missing directory")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(file); err == nil {
		t.Error("Watch() should fail for a regular file")
	}
}

func TestUnwatch(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()

	if err := w.Watch(dir); err != nil {
		t.Fatal(err)
	}
	w.Unwatch(dir)

	if len(w.Paths()) != 0 {
		t.Errorf("Paths() after Unwatch = %v", w.Paths())
	}
}

func TestMatches(t *testing.T) {
	w := newTestWatcher(t)

	tests := []struct {
		path string
		want bool
	}{
		{"/dev/nvidia0", true},
		{"/dev/nvidiactl", true},
		{"/dev/nvidia-uvm", true},
		{"/dev/tty0", false},
		{"/dev/dri/card0", false},
	}
	for _, tt := range tests {
		if got := w.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRunDebouncesMatchingEvents(t *testing.T) {
	w := newTestWatcher(t, WithDebounce(100*time.Millisecond))
	dir := t.TempDir()
	if err := w.Watch(dir); err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		batches [][]Event
	)
	got := make(chan struct{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(_ context.Context, events []Event) {
		mu.Lock()
		batches = append(batches, events)
		mu.Unlock()
		got <- struct{}{}
	})

	// Give the loop a moment to start.
	time.Sleep(20 * time.Millisecond)

	for _, name := range []string{"nvidia0", "ttyS9", "nvidia1"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("no batch delivered")
	}

	// Nothing else should arrive for the same burst.
	select {
	case <-got:
		t.Error("burst was delivered in more than one batch")
	case <-time.After(300 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	var created []string
	for _, e := range batches[0] {
		if e.Op&fsnotify.Create != 0 {
			created = append(created, filepath.Base(e.Path))
		}
	}
	if len(created) != 2 || created[0] != "nvidia0" || created[1] != "nvidia1" {
		t.Errorf("created = %v, want [nvidia0 nvidia1]", created)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestClose(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := w.Watch(t.TempDir()); err != nil {
		t.Errorf("Watch() after Close should be a no-op, got %v", err)
	}
}
