// Package heartbeat schedules the periodic housekeeping ticks described by
// original_source/crossbridge.py's BridgeConfig.heartbeat_interval and
// connection_check_interval fields. Neither field is read anywhere in the
// Python source; this package gives them real behaviour, grounded in the
// teacher's internal/scheduler which drives cron-style jobs the same way.
package heartbeat

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/fogwraith/crossbridge/internal/logging"
)

// LivenessCheck reports whether the active TCP session (if any) still
// looks alive. The supervisor supplies this; heartbeat has no notion of
// what a session is.
type LivenessCheck func() (connected bool, alive bool)

// Scheduler runs the heartbeat log tick and the connection-liveness check
// on independent cron jobs.
type Scheduler struct {
	cron *cron.Cron
}

// Start builds and starts a Scheduler. heartbeatInterval and checkInterval
// are in seconds; a non-positive interval (or a nil check) disables that
// job (useful for tests or a deployment that only wants one of the two).
func Start(heartbeatInterval, checkInterval int, check LivenessCheck) (*Scheduler, error) {
	c := cron.New()

	if heartbeatInterval > 0 {
		spec := fmt.Sprintf("@every %ds", heartbeatInterval)
		if _, err := c.AddFunc(spec, logHeartbeat); err != nil {
			return nil, fmt.Errorf("scheduling heartbeat tick: %w", err)
		}
	}

	if checkInterval > 0 && check != nil {
		spec := fmt.Sprintf("@every %ds", checkInterval)
		if _, err := c.AddFunc(spec, func() { logConnectionCheck(check) }); err != nil {
			return nil, fmt.Errorf("scheduling connection check: %w", err)
		}
	}

	c.Start()
	return &Scheduler{cron: c}, nil
}

// Stop stops the scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func logHeartbeat() {
	logging.Debug("heartbeat: tick")
}

func logConnectionCheck(check LivenessCheck) {
	connected, alive := check()
	if !connected {
		logging.Debug("connection check: no active session")
		return
	}
	if !alive {
		logging.Warn("connection check: active session reports not alive")
		return
	}
	logging.Debug("connection check: session alive")
}
