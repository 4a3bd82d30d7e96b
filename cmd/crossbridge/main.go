// Command crossbridge runs the VesperNet Crossbridge serial-to-TCP bridge:
// either direct mode (dial once, bridge immediately) or emulation mode
// (present a Hayes-compatible modem on the serial line until ATD).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/fogwraith/crossbridge/internal/config"
	"github.com/fogwraith/crossbridge/internal/heartbeat"
	"github.com/fogwraith/crossbridge/internal/logging"
	"github.com/fogwraith/crossbridge/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "crossbridge.json", "Path to configuration file")
	watch := flag.Bool("watch-config", true, "Reload safe configuration fields on file change")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Println("crossbridge v1.0.0")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("loading %s: %v", *configPath, err)
		os.Exit(1)
	}
	if *debug || os.Getenv("DEBUG") == "1" {
		cfg.Debug = true
	}
	logging.DebugEnabled = cfg.Debug

	if cfg.Password == "" {
		pw, err := promptPassword()
		if err != nil {
			logging.Error("reading password: %v", err)
			os.Exit(1)
		}
		cfg.Password = pw
	}

	var watcher *config.Watcher
	if *watch {
		watcher, err = config.NewWatcher(*configPath, cfg)
		if err != nil {
			logging.Warn("config watcher disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	sv := supervisor.New(supervisor.Config{
		Username:          cfg.Username,
		Password:          cfg.Password,
		ServerHost:        cfg.ServerHost,
		ServerPort:        cfg.ServerPort,
		Device:            cfg.Device,
		BaudRate:          cfg.BaudRate,
		ConnectSpeed:      cfg.ConnectSpeed,
		EmulateModem:      cfg.EmulateModem,
		InactivityTimeout: cfg.InactivityTimeout(),
		ConnectionRetries: cfg.ConnectionRetries,
	})

	hb, err := heartbeat.Start(cfg.HeartbeatIntervalSeconds, cfg.ConnectionCheckIntervalSeconds, sv.LivenessCheck)
	if err != nil {
		logging.Warn("heartbeat scheduler disabled: %v", err)
	} else {
		defer hb.Stop()
	}

	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info("received %s, shutting down", sig)
		close(stopCh)
	}()

	logging.Info("crossbridge starting: device=%s emulate_modem=%v server=%s:%d", cfg.Device, cfg.EmulateModem, cfg.ServerHost, cfg.ServerPort)
	os.Exit(sv.Run(stopCh))
}

// promptPassword reads a password from the controlling terminal without
// echoing it, for operators who don't want a plaintext password sitting in
// the configuration file.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "VesperNet password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
