// Package config loads the crossbridge daemon's external configuration
// file. Nothing in internal/bridge, internal/modem, internal/handshake or
// internal/endpoint touches this package directly: cmd/crossbridge copies
// the BridgeConfig fields into a supervisor.Config, and the supervisor
// builds the modem and bridge settings from that (spec.md §6 External
// Interfaces is an out-of-scope collaborator from the core's point of
// view).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fogwraith/crossbridge/internal/logging"
)

// BridgeConfig is the on-disk JSON shape for the crossbridge daemon,
// covering every field spec.md §6 lists plus the supervisor fields
// (connection_retries) and the supplemented heartbeat/connection-check
// intervals carried over from original_source/crossbridge.py.
type BridgeConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`

	ServerHost string `json:"server_host"`
	ServerPort int    `json:"server_port"`

	Device   string `json:"device"`
	BaudRate int    `json:"baud_rate"`

	ConnectSpeed int  `json:"connect_speed"`
	EmulateModem bool `json:"emulate_modem"`

	InactivityTimeoutSeconds int `json:"inactivity_timeout"`

	Debug bool `json:"debug"`

	// ConnectionRetries bounds the supervisor's exponential back-off retry
	// loop for the direct-mode dial (spec.md §7).
	ConnectionRetries int `json:"connection_retries"`

	// HeartbeatIntervalSeconds and ConnectionCheckIntervalSeconds drive
	// internal/heartbeat's two cron jobs. Present but unused in the
	// original Python BridgeConfig dataclass; supplemented here.
	HeartbeatIntervalSeconds       int `json:"heartbeat_interval"`
	ConnectionCheckIntervalSeconds int `json:"connection_check_interval"`
}

// InactivityTimeout returns the configured inactivity timeout as a
// Duration, for handing straight to modem.Config/bridge.Options.
func (c BridgeConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the configured heartbeat tick as a Duration.
func (c BridgeConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// ConnectionCheckInterval returns the configured connection-check tick as
// a Duration.
func (c BridgeConfig) ConnectionCheckInterval() time.Duration {
	return time.Duration(c.ConnectionCheckIntervalSeconds) * time.Second
}

// defaultConfig mirrors spec.md §6's defaults.
func defaultConfig() BridgeConfig {
	return BridgeConfig{
		ServerPort:                     6060,
		Device:                         "/dev/ttyS0",
		BaudRate:                       38400,
		ConnectSpeed:                   33600,
		EmulateModem:                   true,
		InactivityTimeoutSeconds:       300,
		ConnectionRetries:              5,
		HeartbeatIntervalSeconds:       60,
		ConnectionCheckIntervalSeconds: 30,
	}
}

// Defaults returns the built-in configuration, for cmd/crossbridge-config's
// -init mode.
func Defaults() BridgeConfig {
	return defaultConfig()
}

// Load reads path as JSON into a BridgeConfig seeded with defaultConfig's
// values, the same defaults-before-unmarshal pattern the teacher's
// LoadServerConfig uses: a missing file is not an error, it just yields
// the defaults.
func Load(path string) (BridgeConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	logging.Info("loaded configuration from %s", path)
	return cfg, nil
}

// Save writes cfg to path as indented JSON, for cmd/crossbridge-config.
func Save(path string, cfg BridgeConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}
