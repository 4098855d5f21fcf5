// Package session keeps the open simulation sessions of a process. Each
// session owns a private copy of a diagram and the Runner driving it.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcraft/internal/document"
	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/logging"
	"github.com/rendis/flowcraft/internal/metrics"
	"github.com/rendis/flowcraft/internal/simulation"
	"github.com/rendis/flowcraft/internal/store"
	"github.com/rendis/flowcraft/internal/streaming"
	"github.com/rendis/flowcraft/pkg/schema"
)

// Modes accepted by StartOptions.Mode.
const (
	ModeManual = "manual"
	ModeAuto   = "auto"
)

// EventAppender persists simulation events. *store.EventLog satisfies it.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// Config holds the manager's collaborators. Store is required for Open;
// the rest are optional.
type Config struct {
	Store    store.Store
	Events   EventAppender
	Hub      streaming.EventHub
	Logger   *slog.Logger
	Interval time.Duration // default auto-mode tick
	Canvas   graph.Canvas
}

// StartOptions configures a new session.
type StartOptions struct {
	Mode     string         `json:"mode"`
	Interval time.Duration  `json:"-"`
	Guards   string         `json:"guards"`
	Vars     map[string]any `json:"vars"`
}

// Session is one open simulation.
type Session struct {
	ID          string
	FlowchartID string
	Mode        string
	CreatedAt   time.Time

	runs    atomic.Int64
	runner  *simulation.Runner
	diagram *graph.Diagram
}

// View is the JSON form of a session.
type View struct {
	SessionID   string    `json:"session_id"`
	FlowchartID string    `json:"flowchart_id,omitempty"`
	Mode        string    `json:"mode"`
	CreatedAt   time.Time `json:"created_at"`
	Runs        int64     `json:"runs"`
	simulation.Snapshot
}

// Manager owns open sessions. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store    store.Store
	events   EventAppender
	hub      streaming.EventHub
	logger   *slog.Logger
	interval time.Duration
	canvas   graph.Canvas
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	canvas := cfg.Canvas
	if canvas.Width == 0 && canvas.Height == 0 {
		canvas = graph.DefaultCanvas
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    cfg.Store,
		events:   cfg.Events,
		hub:      cfg.Hub,
		logger:   logger,
		interval: interval,
		canvas:   canvas,
	}
}

// Open loads a stored flowchart and starts a simulation on it.
func (m *Manager) Open(ctx context.Context, flowchartID string, opts StartOptions) (View, error) {
	if m.store == nil {
		return View{}, schema.NewError(schema.ErrCodeStore, "no store configured")
	}
	fc, err := m.store.GetFlowchart(ctx, flowchartID)
	if err != nil {
		return View{}, err
	}
	d, _, err := document.FromDocument(fc.Record(), graph.WithCanvas(m.canvas))
	if err != nil {
		return View{}, err
	}
	return m.OpenDiagram(ctx, flowchartID, d, opts)
}

// OpenDiagram starts a simulation on d. The session takes ownership of d.
func (m *Manager) OpenDiagram(ctx context.Context, flowchartID string, d *graph.Diagram, opts StartOptions) (View, error) {
	mode := strings.ToLower(opts.Mode)
	if mode == "" {
		mode = ModeManual
	}
	if mode != ModeManual && mode != ModeAuto {
		return View{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown mode %q", opts.Mode)
	}

	s := &Session{
		ID:          uuid.New().String(),
		FlowchartID: flowchartID,
		Mode:        mode,
		CreatedAt:   time.Now().UTC(),
		diagram:     d,
	}

	cfg := simulation.RunnerConfig{Logger: m.logger.With("session_id", s.ID)}
	if mode == ModeAuto {
		cfg.Interval = opts.Interval
		if cfg.Interval <= 0 {
			cfg.Interval = m.interval
		}
		chooser, err := simulation.NewExpressionChooser(opts.Guards, opts.Vars)
		if err != nil {
			return View{}, err
		}
		cfg.Chooser = chooser
	}

	machine := simulation.New(d)
	listenCtx := logging.WithSessionID(logging.WithFlowchartID(context.WithoutCancel(ctx), flowchartID), s.ID)
	machine.OnEvent(func(ev simulation.Event) { m.record(listenCtx, s, ev) })
	machine.OnBefore(schema.SimulationIdle, schema.SimulationRunning, func(_, _ schema.SimulationStatus) error {
		s.runs.Add(1)
		return nil
	})
	machine.OnAfter(schema.SimulationRunning, schema.SimulationCompleted, func(_, _ schema.SimulationStatus) error {
		m.logger.InfoContext(listenCtx, "simulation run completed", "run", s.runs.Load(), "steps", len(machine.Path()))
		return nil
	})
	s.runner = simulation.NewRunner(machine, cfg)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if err := s.runner.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
		return View{}, err
	}
	metrics.ActiveSessions.Inc()
	m.logger.InfoContext(listenCtx, "simulation session opened", "mode", mode)
	return s.view(), nil
}

// Get returns the session view.
func (m *Manager) Get(id string) (View, error) {
	s, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	return s.view(), nil
}

// List returns all open sessions ordered by creation time.
func (m *Manager) List() []View {
	m.mu.RLock()
	out := make([]View, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.view())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Step advances a session by one tick.
func (m *Manager) Step(ctx context.Context, id string) (View, error) {
	return m.apply(id, func(r *simulation.Runner) error { return r.Step(ctx) })
}

// Choose resolves the pending decision of a session.
func (m *Manager) Choose(id, connectorID string) (View, error) {
	return m.apply(id, func(r *simulation.Runner) error { return r.Choose(connectorID) })
}

// Stop ends the run. The session stays open for inspection.
func (m *Manager) Stop(id string) (View, error) {
	return m.apply(id, func(r *simulation.Runner) error { return r.Stop() })
}

// Reset returns the session to idle.
func (m *Manager) Reset(id string) (View, error) {
	return m.apply(id, func(r *simulation.Runner) error { return r.Reset() })
}

// Restart starts the run again, resetting a finished one first.
func (m *Manager) Restart(ctx context.Context, id string) (View, error) {
	return m.apply(id, func(r *simulation.Runner) error { return r.Start(ctx) })
}

// Relabel changes a node label in the session's diagram. It fails with
// LOCKED while the simulation is running or paused.
func (m *Manager) Relabel(id, nodeID, label string) (View, error) {
	s, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	err = s.runner.WithMachine(func(mc *simulation.Machine) error {
		return mc.Diagram().SetLabel(nodeID, label)
	})
	if err != nil {
		return View{}, err
	}
	return s.view(), nil
}

// Diagram runs fn with the session's diagram and current snapshot while the
// session is held still.
func (m *Manager) Diagram(id string, fn func(d *graph.Diagram, snap simulation.Snapshot) error) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	return s.runner.WithMachine(func(mc *simulation.Machine) error {
		return fn(mc.Diagram(), mc.Snapshot())
	})
}

// Close stops the session's loop and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return notFound(id)
	}
	s.runner.Close()
	metrics.ActiveSessions.Dec()
	m.logger.Info("simulation session closed", "session_id", id)
	return nil
}

// CloseAll closes every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.runner.Close()
		metrics.ActiveSessions.Dec()
	}
}

// CloseFlowchart closes every session opened on flowchartID.
func (m *Manager) CloseFlowchart(flowchartID string) int {
	m.mu.RLock()
	var ids []string
	for id, s := range m.sessions {
		if s.FlowchartID == flowchartID {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}
	return len(ids)
}

func (m *Manager) apply(id string, fn func(r *simulation.Runner) error) (View, error) {
	s, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	if err := fn(s.runner); err != nil {
		return View{}, err
	}
	return s.view(), nil
}

func (m *Manager) lookup(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return s, nil
}

// record fans a machine event out to metrics, the hub and the event log.
// It runs under the runner lock and must not call back into the runner.
func (m *Manager) record(ctx context.Context, s *Session, ev simulation.Event) {
	metrics.SimulationEvents.WithLabelValues(ev.Type).Inc()

	options := make([]string, len(ev.Options))
	for i, c := range ev.Options {
		options[i] = c.ID
	}
	payload := eventPayload{Path: ev.Path, Options: options, Reason: ev.Reason}

	if m.hub != nil {
		if err := m.hub.Publish(ctx, streaming.StreamEvent{
			SessionID:   s.ID,
			FlowchartID: s.FlowchartID,
			EventType:   ev.Type,
			State:       string(ev.State),
			NodeID:      ev.NodeID,
			ConnectorID: ev.ConnectorID,
			Path:        ev.Path,
			Payload:     payload,
			Timestamp:   ev.At,
		}); err != nil {
			m.logger.WarnContext(ctx, "publish simulation event failed", "error", err)
		}
	}

	if m.events == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		m.logger.WarnContext(ctx, "encode simulation event failed", "error", err)
		return
	}
	if err := m.events.AppendEvent(ctx, &store.Event{
		SessionID:   s.ID,
		FlowchartID: s.FlowchartID,
		Type:        ev.Type,
		State:       string(ev.State),
		NodeID:      ev.NodeID,
		ConnectorID: ev.ConnectorID,
		Payload:     raw,
		Timestamp:   ev.At,
	}); err != nil {
		m.logger.WarnContext(logging.WithNodeID(ctx, ev.NodeID), "persist simulation event failed", "error", err)
	}
}

type eventPayload struct {
	Path    []string `json:"path"`
	Options []string `json:"options,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func (s *Session) view() View {
	return View{
		SessionID:   s.ID,
		FlowchartID: s.FlowchartID,
		Mode:        s.Mode,
		CreatedAt:   s.CreatedAt,
		Runs:        s.runs.Load(),
		Snapshot:    s.runner.Snapshot(),
	}
}

func notFound(id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "simulation session %q not found", id)
}
