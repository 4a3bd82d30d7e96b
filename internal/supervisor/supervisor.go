// Package supervisor wires the core (internal/endpoint, internal/handshake,
// internal/bridge, internal/modem) into the two top-level modes spec.md
// §4.7 describes, owns the process lifetime, and reacts to shutdown
// signals. It is the only package that constructs a modem.State or calls
// bridge.Run directly with escape detection disabled.
package supervisor

import (
	"fmt"
	"math"
	"time"

	"github.com/fogwraith/crossbridge/internal/bridge"
	"github.com/fogwraith/crossbridge/internal/endpoint"
	"github.com/fogwraith/crossbridge/internal/handshake"
	"github.com/fogwraith/crossbridge/internal/logging"
	"github.com/fogwraith/crossbridge/internal/modem"
)

// Config collects everything the supervisor needs to run either mode.
type Config struct {
	Username string
	Password string

	ServerHost string
	ServerPort int

	Device   string
	BaudRate int

	ConnectSpeed int
	EmulateModem bool

	InactivityTimeout time.Duration
	DialDeadline      time.Duration

	// ConnectionRetries bounds the direct-mode dial's exponential
	// back-off retry loop (spec.md §7: "supervisor may retry the
	// direct-mode dial up to connection_retries times").
	ConnectionRetries int

	SuppressBanners bool
}

// Supervisor runs one bridge session to completion.
type Supervisor struct {
	cfg   Config
	state *modem.State // only set in emulation mode, for heartbeat's liveness check
}

// New constructs a Supervisor.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Run opens the serial endpoint and drives either direct or emulation mode
// until stopCh is closed or the session ends on its own, returning the
// process exit code spec.md §6 specifies (0 normal, 1 fatal).
func (sv *Supervisor) Run(stopCh <-chan struct{}) int {
	if sv.cfg.DialDeadline <= 0 {
		sv.cfg.DialDeadline = 30 * time.Second
	}

	serial, err := endpoint.Open(sv.cfg.Device, sv.cfg.BaudRate, sv.cfg.DialDeadline)
	if err != nil {
		logging.Error("supervisor: opening %s: %v", sv.cfg.Device, err)
		return 1
	}
	defer serial.Close()

	if sv.cfg.EmulateModem {
		return sv.runEmulation(serial, stopCh)
	}
	return sv.runDirect(serial, stopCh)
}

// runEmulation implements spec.md §4.7's emulation mode: C6 owns the
// serial endpoint for the process lifetime and dials on ATD.
func (sv *Supervisor) runEmulation(serial endpoint.Endpoint, stopCh <-chan struct{}) int {
	mcfg := modem.Config{
		Username:          sv.cfg.Username,
		Password:          sv.cfg.Password,
		ServerHost:        sv.cfg.ServerHost,
		ServerPort:        sv.cfg.ServerPort,
		BaudRate:          sv.cfg.BaudRate,
		ConnectSpeed:      sv.cfg.ConnectSpeed,
		DialDeadline:      sv.cfg.DialDeadline,
		InactivityTimeout: sv.cfg.InactivityTimeout,
		SuppressBanners:   sv.cfg.SuppressBanners,
	}
	sv.state = modem.NewState(serial, mcfg, nil)

	if err := sv.state.Run(stopCh); err != nil {
		logging.Error("supervisor: modem state machine: %v", err)
		return 1
	}
	return 0
}

// LivenessCheck reports the current emulation-mode session's connected and
// alive status, for internal/heartbeat's connection-check job. It is safe
// to call before Run or in direct mode: both report not-connected.
func (sv *Supervisor) LivenessCheck() (connected bool, alive bool) {
	if sv.state == nil {
		return false, false
	}
	return sv.state.Connected(), sv.state.Alive()
}

// runDirect implements spec.md §4.7's direct mode: dial once (retrying
// with exponential back-off up to ConnectionRetries), handshake, then run
// the bridge engine directly with escape detection disabled.
func (sv *Supervisor) runDirect(serial endpoint.Endpoint, stopCh <-chan struct{}) int {
	tcp, result, err := sv.dialWithRetry()
	if err != nil {
		logging.Error("supervisor: direct-mode dial failed: %v", err)
		return 1
	}
	defer tcp.Close()

	logging.Info("supervisor: connected at %d bps (%s)", result.Speed, result.Type)

	opts := bridge.DefaultOptions()
	opts.SniffEscape = false
	if sv.cfg.InactivityTimeout > 0 {
		opts.InactivityTimeout = sv.cfg.InactivityTimeout
	}

	done := make(chan bridge.Outcome, 1)
	go func() { done <- bridge.Run(serial, tcp, opts) }()

	select {
	case outcome := <-done:
		logging.Info("supervisor: bridge returned %s", outcome)
		return 0
	case <-stopCh:
		serial.Close()
		tcp.Close()
		<-done
		return 0
	}
}

func (sv *Supervisor) dialWithRetry() (endpoint.Endpoint, *handshake.Result, error) {
	retries := sv.cfg.ConnectionRetries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			logging.Warn("supervisor: dial attempt %d failed, retrying in %v", attempt, backoff)
			time.Sleep(backoff)
		}

		tcp, err := endpoint.DialPort(sv.cfg.ServerHost, sv.cfg.ServerPort, sv.cfg.DialDeadline)
		if err != nil {
			lastErr = err
			continue
		}

		result, err := handshake.Run(tcp, sv.cfg.Username, sv.cfg.Password, sv.cfg.ConnectSpeed)
		if err != nil {
			// Direct mode has no modem state machine to fall back to a
			// cosmetic CONNECT line the way emulation mode does on a
			// negotiation timeout (modem/state.go's handleDial). §4.3/§7
			// call NegotiationTimeout fatal here, same as any other
			// handshake failure.
			tcp.Close()
			lastErr = err
			continue
		}
		return tcp, result, nil
	}

	return nil, nil, fmt.Errorf("dial failed after %d attempts: %w", retries, lastErr)
}
