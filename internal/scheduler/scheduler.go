// Package scheduler runs cron-driven maintenance of the flowchart store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowcraft/internal/metrics"
	"github.com/rendis/flowcraft/internal/store"
)

// DefaultSchedule runs maintenance daily at 03:00.
const DefaultSchedule = "0 3 * * *"

// Config configures Maintenance.
type Config struct {
	// Schedule is a five-field cron expression.
	Schedule string
	// Retention is how long simulation events are kept. Zero disables pruning.
	Retention time.Duration
	Logger    *slog.Logger
}

// Report summarizes one maintenance run.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Pruned    int64         `json:"pruned"`
	Vacuumed  bool          `json:"vacuumed"`
	Duration  time.Duration `json:"duration"`
}

// Maintenance prunes old simulation events and vacuums the database on a
// cron schedule.
type Maintenance struct {
	store     store.Store
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	running atomic.Bool
}

// Parser accepts standard five-field cron expressions.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New creates a Maintenance job. An empty schedule selects DefaultSchedule.
func New(s store.Store, cfg Config) (*Maintenance, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{
		store:     s,
		schedule:  schedule,
		retention: cfg.Retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Next returns the next run time after from.
func (m *Maintenance) Next(from time.Time) time.Time {
	return m.schedule.Next(from)
}

// Start launches the background loop.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return fmt.Errorf("maintenance already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(loopCtx, m.done)
	m.logger.Info("maintenance scheduler started", slog.Time("next_run", m.Next(m.now())))
	return nil
}

func (m *Maintenance) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		wait := m.Next(m.now()).Sub(m.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.logger.Error("maintenance run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce prunes events older than the retention window and vacuums the
// database. Overlapping calls return immediately with a zero report.
func (m *Maintenance) RunOnce(ctx context.Context) (Report, error) {
	if !m.running.CompareAndSwap(false, true) {
		return Report{}, nil
	}
	defer m.running.Store(false)

	r := Report{StartedAt: m.now()}
	if m.retention > 0 {
		n, err := m.store.PruneEvents(ctx, r.StartedAt.Add(-m.retention))
		if err != nil {
			return r, fmt.Errorf("prune events: %w", err)
		}
		r.Pruned = n
		metrics.PrunedEvents.Add(float64(n))
	}
	if err := m.store.Vacuum(ctx); err != nil {
		return r, fmt.Errorf("vacuum: %w", err)
	}
	r.Vacuumed = true
	r.Duration = m.now().Sub(r.StartedAt)

	m.logger.Info("maintenance completed",
		slog.Int64("pruned", r.Pruned),
		slog.Duration("duration", r.Duration),
	)
	return r, nil
}

// Stop gracefully shuts down the loop.
func (m *Maintenance) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return nil
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	m.logger.Info("maintenance scheduler stopped")
	return nil
}
