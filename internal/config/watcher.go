package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fogwraith/crossbridge/internal/logging"
)

// safeReloadFields are the BridgeConfig fields a reload copies into the
// Watcher's live configuration (reload also copies the heartbeat and
// connection-check intervals): username, password, device and server
// address changes are only logged and not copied, matching
// the teacher's config_watcher.go which swaps in ServerConfig wholesale
// but warns that port/key/limit changes need a restart.
type safeReloadFields struct {
	Debug             bool
	InactivityTimeout time.Duration
	ConnectionRetries int
}

func (s safeReloadFields) apply(cfg *BridgeConfig) {
	cfg.Debug = s.Debug
	cfg.InactivityTimeoutSeconds = int(s.InactivityTimeout / time.Second)
	cfg.ConnectionRetries = s.ConnectionRetries
}

// Watcher watches a BridgeConfig file for changes and applies the safe
// subset of fields to a live configuration, logging the rest.
type Watcher struct {
	mu   sync.RWMutex
	path string
	cfg  BridgeConfig

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching path's directory for changes, seeded with
// the already-loaded initial configuration.
func NewWatcher(path string, initial BridgeConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		path:    path,
		cfg:     initial,
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.loop()
	logging.Info("config: watching %s for changes", path)
	return w, nil
}

// Current returns the most recently applied configuration.
func (w *Watcher) Current() BridgeConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Stop stops the watcher. Idempotent.
func (w *Watcher) Stop() {
	select {
	case <-w.done:
		return
	default:
		close(w.done)
	}
	w.watcher.Close()
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("config: watcher error: %v", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		logging.Error("config: reload of %s failed: %v", w.path, err)
		return
	}

	safe := safeReloadFields{
		Debug:             next.Debug,
		InactivityTimeout: next.InactivityTimeout(),
		ConnectionRetries: next.ConnectionRetries,
	}

	w.mu.Lock()
	prev := w.cfg
	safe.apply(&w.cfg)
	w.cfg.HeartbeatIntervalSeconds = next.HeartbeatIntervalSeconds
	w.cfg.ConnectionCheckIntervalSeconds = next.ConnectionCheckIntervalSeconds
	w.mu.Unlock()

	logging.Info("config: reloaded %s (debug=%v inactivity_timeout=%s)", w.path, safe.Debug, safe.InactivityTimeout)

	if next.Username != prev.Username || next.Password != prev.Password || next.Device != prev.Device ||
		next.ServerHost != prev.ServerHost || next.ServerPort != prev.ServerPort {
		logging.Warn("config: username/password/device/server_host/server_port changed in %s, restart required to apply", w.path)
	}
}
