package confloader

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w, err := NewWatcher(WithWatcherLogger(logger.Discard()), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	changed := make(chan string, 4)
	w.OnChange(func(p string) { changed <- p })
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	w.StartAsync()

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case p := <-changed:
		if filepath.Base(p) != "server.yaml" {
			t.Errorf("callback path = %q", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w, err := NewWatcher(WithWatcherLogger(logger.Discard()), WithDebounce(0))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var calls atomic.Int32
	w.OnChange(func(string) { calls.Add(1) })
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	w.StartAsync()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("callbacks = %d, want 0", n)
	}
}

func TestWatcher_WatchMissingDir(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if err := w.Watch("/nonexistent/metalgate/config.yaml"); err == nil {
		t.Error("Watch() should fail for a missing directory")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
