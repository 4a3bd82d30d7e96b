package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsSafeFields(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "crossbridge.json")

	initial := defaultConfig()
	initial.Username = "alice"
	if err := Save(path, initial); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := NewWatcher(path, initial)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	updated := initial
	updated.Debug = true
	updated.InactivityTimeoutSeconds = 42
	updated.Username = "mallory" // unsafe field: must not apply live
	if err := Save(path, updated); err != nil {
		t.Fatalf("Save: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cur := w.Current()
		if cur.Debug && cur.InactivityTimeoutSeconds == 42 {
			if cur.Username != "alice" {
				t.Fatalf("Username changed live = %q, want unchanged %q", cur.Username, "alice")
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watcher did not apply safe field changes within deadline")
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "crossbridge.json")
	if err := Save(path, defaultConfig()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := NewWatcher(path, defaultConfig())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "crossbridge.json")
	if err := Save(path, defaultConfig()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := NewWatcher(path, defaultConfig())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(tmpDir, "unrelated.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if w.Current() != defaultConfig() {
		t.Fatal("watcher reacted to an unrelated file change")
	}
}
