// Package simulation walks a diagram from its start node, pausing at
// decisions for an external choice.
package simulation

import (
	"slices"
	"time"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/pkg/schema"
)

// Event is emitted on every status change and token move.
type Event struct {
	Type        string                  `json:"type"`
	State       schema.SimulationStatus `json:"state"`
	NodeID      string                  `json:"node_id,omitempty"`
	ConnectorID string                  `json:"connector_id,omitempty"`
	Path        []string                `json:"path"`
	Options     []graph.Connector       `json:"options,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	At          time.Time               `json:"at"`
}

// Listener receives machine events synchronously.
type Listener func(Event)

// NextStep describes one outgoing branch of the current node.
type NextStep struct {
	ConnectorID string `json:"connector_id"`
	Label       string `json:"label"`
	TargetID    string `json:"target_id"`
	TargetLabel string `json:"target_node"`
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	State     schema.SimulationStatus `json:"state"`
	NodeID    string                  `json:"current_node,omitempty"`
	Path      []string                `json:"path"`
	Options   []graph.Connector       `json:"options,omitempty"`
	NextSteps []NextStep              `json:"next_steps"`
}

// Machine is the token-passing state machine. It reads the diagram but only
// changes its label lock: the lock is held while the machine is running or
// paused. A Machine is not safe for concurrent use; Runner serializes access.
type Machine struct {
	diagram *graph.Diagram
	now     func() time.Time

	state   schema.SimulationStatus
	current string
	path    []string
	options []graph.Connector

	hooks     hooks
	listeners []Listener
}

// New creates an idle machine over d.
func New(d *graph.Diagram) *Machine {
	return &Machine{
		diagram: d,
		now:     func() time.Time { return time.Now().UTC() },
		state:   schema.SimulationIdle,
		hooks:   newHooks(),
	}
}

// OnEvent registers a listener.
func (m *Machine) OnEvent(l Listener) {
	m.listeners = append(m.listeners, l)
}

// OnBefore registers a hook called before the given transition.
func (m *Machine) OnBefore(from, to schema.SimulationStatus, hook TransitionHook) {
	key := hookKey{from, to}
	m.hooks.before[key] = append(m.hooks.before[key], hook)
}

// OnAfter registers a hook called after the given transition.
func (m *Machine) OnAfter(from, to schema.SimulationStatus, hook TransitionHook) {
	key := hookKey{from, to}
	m.hooks.after[key] = append(m.hooks.after[key], hook)
}

// State returns the current status.
func (m *Machine) State() schema.SimulationStatus { return m.state }

// Current returns the node holding the token, or "" when idle.
func (m *Machine) Current() string { return m.current }

// Path returns a copy of the visited node ids in order.
func (m *Machine) Path() []string { return slices.Clone(m.path) }

// Options returns the branches awaiting a choice while paused.
func (m *Machine) Options() []graph.Connector { return slices.Clone(m.options) }

// Diagram returns the diagram being simulated.
func (m *Machine) Diagram() *graph.Diagram { return m.diagram }

// Start places the token on the first start node in node order. A machine in
// a terminal state is reset first. Without a start node it fails with
// NO_START_NODE and nothing changes.
func (m *Machine) Start() error {
	if m.state == schema.SimulationRunning || m.state == schema.SimulationPaused {
		return invalidTransition("start", m.state)
	}
	starts := m.diagram.NodesByType(graph.Start)
	if len(starts) == 0 {
		return schema.NewError(schema.ErrCodeNoStartNode, "flowchart has no start node")
	}
	if m.state.Terminal() {
		if err := m.Reset(); err != nil {
			return err
		}
	}

	first := starts[0].ID
	return m.transition(schema.SimulationRunning, func() {
		m.current = first
		m.path = []string{first}
	}, Event{NodeID: first})
}

// Step performs one tick. While paused it does nothing. Otherwise the
// token's node decides the outcome: an end node or a node without outgoing
// connectors completes the run, a decision pauses for a choice, anything
// else follows its first outgoing connector.
func (m *Machine) Step() error {
	switch m.state {
	case schema.SimulationPaused:
		return nil
	case schema.SimulationRunning:
	default:
		return invalidTransition("step", m.state)
	}

	node, ok := m.diagram.Node(m.current)
	if !ok {
		return m.transition(schema.SimulationStopped, nil, Event{
			NodeID: m.current,
			Reason: "current node was removed",
		})
	}

	out := m.diagram.Outgoing(node.ID)
	switch {
	case node.Type == graph.End || len(out) == 0:
		return m.transition(schema.SimulationCompleted, nil, Event{NodeID: node.ID})
	case node.Type == graph.Decision:
		return m.transition(schema.SimulationPaused, func() {
			m.options = out
		}, Event{NodeID: node.ID, Options: out})
	default:
		return m.advance(out[0])
	}
}

// Choose resolves a pending decision by following connectorID. It is only
// valid while paused and only for one of the offered branches.
func (m *Machine) Choose(connectorID string) error {
	if m.state != schema.SimulationPaused {
		return invalidTransition("choose", m.state)
	}
	idx := slices.IndexFunc(m.options, func(c graph.Connector) bool { return c.ID == connectorID })
	if idx < 0 {
		return schema.NewErrorf(schema.ErrCodeInvalidChoice,
			"connector %q is not a branch of %q", connectorID, m.current).
			WithNode(m.current).
			WithDetails(map[string]any{"options": connectorIDs(m.options)})
	}
	m.emit(Event{Type: schema.EventDecisionResolved, NodeID: m.current, ConnectorID: connectorID})
	return m.advance(m.options[idx])
}

// Stop ends the run from any non-terminal status. Diagram content is untouched.
func (m *Machine) Stop() error {
	if m.state.Terminal() {
		return invalidTransition("stop", m.state)
	}
	return m.transition(schema.SimulationStopped, nil, Event{NodeID: m.current, Reason: "stopped"})
}

// Reset clears the token and path and returns to idle.
func (m *Machine) Reset() error {
	if m.state == schema.SimulationIdle {
		m.path, m.current, m.options = nil, "", nil
		return nil
	}
	return m.transition(schema.SimulationIdle, func() {
		m.path, m.current, m.options = nil, "", nil
	}, Event{})
}

// Snapshot captures the current view including the branches leaving the
// token's node.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:     m.state,
		NodeID:    m.current,
		Path:      m.Path(),
		Options:   m.Options(),
		NextSteps: []NextStep{},
	}
	if s.Path == nil {
		s.Path = []string{}
	}
	if m.current == "" {
		return s
	}
	for _, c := range m.diagram.Outgoing(m.current) {
		target, _ := m.diagram.Node(c.TargetID)
		s.NextSteps = append(s.NextSteps, NextStep{
			ConnectorID: c.ID,
			Label:       c.Label,
			TargetID:    c.TargetID,
			TargetLabel: target.Label,
		})
	}
	return s
}

func (m *Machine) advance(c graph.Connector) error {
	return m.transition(schema.SimulationRunning, func() {
		m.current = c.TargetID
		m.path = append(m.path, c.TargetID)
		m.options = nil
	}, Event{NodeID: c.TargetID, ConnectorID: c.ID})
}

// transition validates and applies a status change: before hooks, mutation,
// label lock, event, after hooks.
func (m *Machine) transition(to schema.SimulationStatus, apply func(), ev Event) error {
	from := m.state
	if !isValidTransition(from, to) {
		return invalidTransition("transition to "+string(to), from)
	}

	key := hookKey{from, to}
	for _, hook := range m.hooks.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if apply != nil {
		apply()
	}
	m.state = to
	if to == schema.SimulationRunning || to == schema.SimulationPaused {
		m.diagram.Lock()
	} else {
		m.diagram.Unlock()
	}

	ev.Type = eventType(from, to)
	if ev.NodeID == "" {
		ev.NodeID = m.current
	}
	m.emit(ev)

	for _, hook := range m.hooks.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) emit(ev Event) {
	ev.State = m.state
	ev.Path = m.Path()
	ev.At = m.now()
	for _, l := range m.listeners {
		l(ev)
	}
}

func connectorIDs(cs []graph.Connector) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
