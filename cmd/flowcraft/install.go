package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// runInstall writes settings.json from flags so later runs pick them up.
func runInstall(args []string) int {
	def := defaultConfig()
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", def.ListenAddr, "TCP listen address")
	dbPath := fs.String("db-path", "", "database path (default: ~/.flowcraft/flowcraft.db)")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	tick := fs.String("tick-interval", def.TickInterval, "auto-mode simulation tick")
	cors := fs.String("cors-origin", def.CORSOrigin, "Access-Control-Allow-Origin value")
	cron := fs.String("maintenance-cron", def.MaintenanceCron, "five-field cron schedule for event pruning")
	retention := fs.String("event-retention", def.EventRetention, "how long simulation events are kept (0 keeps all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dir := flowcraftDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", dir, err)
		return 1
	}

	cfg := def
	cfg.ListenAddr = *listenAddr
	cfg.LogLevel = *logLevel
	cfg.TickInterval = *tick
	cfg.CORSOrigin = *cors
	cfg.MaintenanceCron = *cron
	cfg.EventRetention = *retention
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	} else {
		cfg.DBPath = filepath.Join(dir, "flowcraft.db")
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", path, err)
		return 1
	}
	fmt.Printf("Config written to %s\n", path)
	return 0
}
