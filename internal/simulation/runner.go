package simulation

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rendis/flowcraft/pkg/schema"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Interval is the automatic tick cadence. Zero means manual stepping.
	Interval time.Duration
	// Chooser resolves paused decisions automatically. Nil leaves every
	// decision to an explicit Choose call.
	Chooser Chooser
	Logger  *slog.Logger
}

// Runner owns the tick schedule of a Machine. All machine access goes
// through the runner's mutex, and at most one tick is in flight. Once Stop
// returns no further tick executes.
type Runner struct {
	mu       sync.Mutex
	machine  *Machine
	interval time.Duration
	chooser  Chooser
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner wraps m.
func NewRunner(m *Machine, cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Runner{
		machine:  m,
		interval: cfg.Interval,
		chooser:  cfg.Chooser,
		logger:   logger,
	}
}

// Start begins a run. With a positive interval a background loop ticks the
// machine until it reaches a terminal status or Stop is called. The loop
// outlives ctx cancellation but keeps its values for logging.
func (r *Runner) Start(ctx context.Context) error {
	// An active run keeps its loop; only a fresh start replaces it.
	r.mu.Lock()
	if s := r.machine.State(); s == schema.SimulationRunning || s == schema.SimulationPaused {
		r.mu.Unlock()
		return invalidTransition("start", s)
	}
	r.mu.Unlock()

	r.halt()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.machine.Start(); err != nil {
		return err
	}
	if r.interval <= 0 {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)
	r.logger.Debug("simulation loop started", "interval", r.interval)
	return nil
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if finished := r.tick(ctx); finished {
				return
			}
		}
	}
}

// tick performs one guarded step and reports whether the loop should end.
func (r *Runner) tick(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Stop may have cancelled while this tick waited for the lock.
	if ctx.Err() != nil {
		return true
	}
	if err := r.stepLocked(ctx); err != nil {
		r.logger.Warn("simulation tick failed", "error", err)
		return true
	}
	return r.machine.State().Terminal()
}

// Step performs one tick manually.
func (r *Runner) Step(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stepLocked(ctx)
}

func (r *Runner) stepLocked(ctx context.Context) error {
	if err := r.machine.Step(); err != nil {
		return err
	}
	if r.machine.State() != schema.SimulationPaused || r.chooser == nil {
		return nil
	}

	node, _ := r.machine.Diagram().Node(r.machine.Current())
	id, ok, err := r.chooser.Choose(ctx, node, r.machine.Options())
	if err != nil {
		r.logger.Warn("decision guard failed, waiting for manual choice", "node_id", node.ID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return r.machine.Choose(id)
}

// Choose resolves a pending decision.
func (r *Runner) Choose(connectorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Choose(connectorID)
}

// Stop cancels the pending tick, waits for the loop to exit and stops the
// machine.
func (r *Runner) Stop() error {
	r.halt()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Stop()
}

// Reset cancels the loop and returns the machine to idle.
func (r *Runner) Reset() error {
	r.halt()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Reset()
}

// Close cancels the loop and leaves the machine in its current status.
func (r *Runner) Close() {
	r.halt()
}

// Snapshot returns the machine view.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Snapshot()
}

// Auto reports whether the runner ticks on its own.
func (r *Runner) Auto() bool { return r.interval > 0 }

// WithMachine runs fn while holding the runner lock.
func (r *Runner) WithMachine(fn func(m *Machine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.machine)
}

// halt cancels the background loop and blocks until it has exited.
func (r *Runner) halt() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
