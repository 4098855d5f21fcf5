package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rendis/flowcraft/internal/api"
	"github.com/rendis/flowcraft/internal/flowchart"
	"github.com/rendis/flowcraft/internal/logging"
	"github.com/rendis/flowcraft/internal/metrics"
	"github.com/rendis/flowcraft/internal/scheduler"
	"github.com/rendis/flowcraft/internal/session"
	"github.com/rendis/flowcraft/internal/store"
	"github.com/rendis/flowcraft/internal/streaming"
)

// app is the wired service graph shared by serve and mcp.
type app struct {
	cfg      Config
	level    *slog.LevelVar
	logger   *slog.Logger
	store    *store.LibSQLStore
	events   *store.EventLog
	hub      *streaming.MemoryHub
	service  *flowchart.Service
	sessions *session.Manager
}

// newApp opens the store and builds the services. logOut receives logs.
func newApp(ctx context.Context, cfg Config, logOut *os.File) (*app, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	level := new(slog.LevelVar)
	lvl, _ := logging.ParseLevel(cfg.LogLevel)
	level.Set(lvl)
	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.dsn())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	hub := streaming.NewMemoryHub(0)
	hub.OnDrop = func(streaming.StreamEvent) { metrics.StreamDropped.Inc() }

	events := store.NewEventLog(st)
	return &app{
		cfg:    cfg,
		level:  level,
		logger: logger,
		store:  st,
		events: events,
		hub:    hub,
		service: flowchart.NewService(flowchart.Deps{
			Store: st, Hub: hub, Logger: logger, Canvas: cfg.canvas(),
		}),
		sessions: session.NewManager(session.Config{
			Store: st, Events: events, Hub: hub, Logger: logger,
			Interval: cfg.tick(), Canvas: cfg.canvas(),
		}),
	}, nil
}

func (a *app) close() {
	a.sessions.CloseAll()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}

func (a *app) handler(corsOrigin string) http.Handler {
	return api.NewServer(api.Deps{
		Flowcharts: a.service,
		Sessions:   a.sessions,
		Hub:        a.hub,
		Logger:     a.logger,
		CORSOrigin: corsOrigin,
	}).Handler()
}

// reloadable serves the most recently stored handler.
type reloadable struct {
	current atomic.Pointer[http.Handler]
}

func newReloadable(h http.Handler) *reloadable {
	r := &reloadable{}
	r.Store(h)
	return r
}

func (r *reloadable) Store(h http.Handler) { r.current.Store(&h) }

func (r *reloadable) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	(*r.current.Load()).ServeHTTP(w, req)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", "", "TCP listen address (overrides settings)")
	dbPath := fs.String("db-path", "", "database path (overrides settings)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := loadConfig()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	maint, err := scheduler.New(a.store, scheduler.Config{
		Schedule:  cfg.MaintenanceCron,
		Retention: cfg.retention(),
		Logger:    a.logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := maint.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer maint.Stop()

	handler := newReloadable(a.handler(cfg.CORSOrigin))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go a.watchReload(ctx, hup, handler)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("flowcraft listening", "addr", cfg.ListenAddr, "db", cfg.DBPath, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("graceful shutdown failed", "error", err)
		}
	}
	return 0
}

// watchReload re-reads settings on SIGHUP. Log level and CORS origin apply
// immediately; other changes are reported as needing a restart.
func (a *app) watchReload(ctx context.Context, sig <-chan os.Signal, handler *reloadable) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
		}

		next := loadConfig()
		if err := next.validate(); err != nil {
			a.logger.Warn("reload rejected", "error", err)
			continue
		}
		diff := diffConfigs(a.cfg, next)
		if diff.LogLevelChanged {
			lvl, _ := logging.ParseLevel(next.LogLevel)
			a.level.Set(lvl)
			a.cfg.LogLevel = next.LogLevel
		}
		if diff.CORSChanged {
			handler.Store(a.handler(next.CORSOrigin))
			a.cfg.CORSOrigin = next.CORSOrigin
		}
		if len(diff.RestartNeeded) > 0 {
			a.logger.Warn("settings changed that need a restart", "fields", diff.RestartNeeded)
		}
		a.logger.Info("settings reloaded", "log_level", a.cfg.LogLevel, "cors_origin", a.cfg.CORSOrigin)
	}
}
