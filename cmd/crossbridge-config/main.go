// Command crossbridge-config validates and prints a crossbridge
// configuration file without starting the bridge.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fogwraith/crossbridge/internal/config"
)

const (
	version = "1.0.0"
	banner  = `
 __   __                          _   _      _
 \ \ / /__ ___ _ __  ___ _ __ _ _| | | |_ _ _(_)__| |__ _ ___
  \ V / -_|_-</ '_ \/ -_) '_| ' \ || | ' \ '_| / _` + "`" + ` / _` + "`" + ` / -_)
   \_/\___/__/ .__/\___|_| |_||_\_,_|_||_|_| |_\__,_\__, \___|
             |_|         Crossbridge Config Tool     |___/
                     version %s
`
)

func main() {
	var (
		path    = flag.String("config", "crossbridge.json", "Path to configuration file")
		write   = flag.Bool("init", false, "Write defaults to -config if it doesn't already exist")
		showVer = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf(banner, version)
		return
	}

	if *write {
		if _, err := os.Stat(*path); err == nil {
			log.Fatalf("ERROR: %s already exists, refusing to overwrite", *path)
		}
		if err := config.Save(*path, config.Defaults()); err != nil {
			log.Fatalf("ERROR: writing %s: %v", *path, err)
		}
		fmt.Printf("Wrote default configuration to %s\n", *path)
		return
	}

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	fmt.Printf("Configuration loaded from %s:\n", *path)
	fmt.Printf("  device               = %s\n", cfg.Device)
	fmt.Printf("  baud_rate            = %d\n", cfg.BaudRate)
	fmt.Printf("  emulate_modem        = %v\n", cfg.EmulateModem)
	fmt.Printf("  connect_speed        = %d\n", cfg.ConnectSpeed)
	fmt.Printf("  server               = %s:%d\n", cfg.ServerHost, cfg.ServerPort)
	fmt.Printf("  username             = %s\n", cfg.Username)
	fmt.Printf("  password_set         = %v\n", cfg.Password != "")
	fmt.Printf("  inactivity_timeout   = %s\n", cfg.InactivityTimeout())
	fmt.Printf("  connection_retries   = %d\n", cfg.ConnectionRetries)
	fmt.Printf("  heartbeat_interval   = %s\n", cfg.HeartbeatInterval())
	fmt.Printf("  connection_check     = %s\n", cfg.ConnectionCheckInterval())
	fmt.Printf("  debug                = %v\n", cfg.Debug)
}
