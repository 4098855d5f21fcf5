package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/logging"
	"github.com/rendis/flowcraft/internal/scheduler"
)

// Config holds all flowcraft server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string  `json:"listen_addr"`
	DBPath          string  `json:"db_path"`
	LogLevel        string  `json:"log_level"`
	TickInterval    string  `json:"tick_interval"`
	CanvasWidth     float64 `json:"canvas_width"`
	CanvasHeight    float64 `json:"canvas_height"`
	CORSOrigin      string  `json:"cors_origin"`
	MaintenanceCron string  `json:"maintenance_cron"`
	EventRetention  string  `json:"event_retention"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":5000",
		DBPath:          filepath.Join(flowcraftDir(), "flowcraft.db"),
		LogLevel:        "info",
		TickInterval:    "1s",
		CanvasWidth:     graph.DefaultCanvas.Width,
		CanvasHeight:    graph.DefaultCanvas.Height,
		CORSOrigin:      "*",
		MaintenanceCron: scheduler.DefaultSchedule,
		EventRetention:  "720h",
	}
}

func flowcraftDir() string {
	if v := os.Getenv("FLOWCRAFT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowcraft"
	}
	return filepath.Join(home, ".flowcraft")
}

func settingsPath() string {
	return filepath.Join(flowcraftDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWCRAFT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWCRAFT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWCRAFT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWCRAFT_TICK_INTERVAL"); v != "" {
		cfg.TickInterval = v
	}
	if v := os.Getenv("FLOWCRAFT_CANVAS_WIDTH"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CanvasWidth = n
		}
	}
	if v := os.Getenv("FLOWCRAFT_CANVAS_HEIGHT"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CanvasHeight = n
		}
	}
	if v := os.Getenv("FLOWCRAFT_CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}
	if v := os.Getenv("FLOWCRAFT_MAINTENANCE_CRON"); v != "" {
		cfg.MaintenanceCron = v
	}
	if v := os.Getenv("FLOWCRAFT_EVENT_RETENTION"); v != "" {
		cfg.EventRetention = v
	}

	return cfg
}

// validate reports the first setting that cannot be used.
func (c Config) validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if d, err := time.ParseDuration(c.TickInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid tick_interval %q", c.TickInterval)
	}
	if d, err := time.ParseDuration(c.EventRetention); err != nil || d < 0 {
		return fmt.Errorf("invalid event_retention %q", c.EventRetention)
	}
	if c.CanvasWidth < 0 || c.CanvasHeight < 0 {
		return fmt.Errorf("canvas dimensions must not be negative")
	}
	if _, err := scheduler.Parser.Parse(c.MaintenanceCron); err != nil {
		return fmt.Errorf("invalid maintenance_cron %q: %w", c.MaintenanceCron, err)
	}
	return nil
}

// tick returns the auto-mode tick interval. Call validate first.
func (c Config) tick() time.Duration {
	d, _ := time.ParseDuration(c.TickInterval)
	return d
}

// retention returns the event retention window. Call validate first.
func (c Config) retention() time.Duration {
	d, _ := time.ParseDuration(c.EventRetention)
	return d
}

func (c Config) canvas() graph.Canvas {
	return graph.Canvas{Width: c.CanvasWidth, Height: c.CanvasHeight}
}

// dsn returns the libSQL data source for DBPath.
func (c Config) dsn() string {
	return "file:" + c.DBPath
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	CORSChanged     bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.CORSOrigin != new.CORSOrigin {
		d.CORSChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.TickInterval != new.TickInterval {
		d.RestartNeeded = append(d.RestartNeeded, "tick_interval")
	}
	if old.CanvasWidth != new.CanvasWidth || old.CanvasHeight != new.CanvasHeight {
		d.RestartNeeded = append(d.RestartNeeded, "canvas")
	}
	if old.MaintenanceCron != new.MaintenanceCron || old.EventRetention != new.EventRetention {
		d.RestartNeeded = append(d.RestartNeeded, "maintenance")
	}
	return d
}
