package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/flowcraft/pkg/mcp"
)

func runMCP(args []string) int {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	dbPath := fs.String("db-path", "", "database path (overrides settings)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := loadConfig()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol; logs go to stderr.
	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	srv := mcp.NewFlowcraftServer(mcp.FlowcraftServerDeps{
		Flowcharts: a.service,
		Sessions:   a.sessions,
		Store:      a.store,
		Replayer:   a.events,
		Hub:        a.hub,
		Logger:     a.logger,
	})
	a.logger.Info("flowcraft MCP server started", "db", cfg.DBPath, "version", version)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("mcp server failed", "error", err)
		return 1
	}
	return 0
}
