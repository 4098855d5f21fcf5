package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/flowcraft/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-session
// sequence. The write lock is taken before the sequence is read.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := el.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx starts a deferred transaction; a write forces the lock.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM simulation_events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO simulation_events (session_id, flowchart_id, event_type, state, node_id, connector_id, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.SessionID, nullStr(event.FlowchartID), event.Type, event.State,
		nullStr(event.NodeID), nullStr(event.ConnectorID), nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a session with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, sessionID, since)
}

// Decision is a resolved decision recovered from the log.
type Decision struct {
	NodeID      string    `json:"node_id"`
	ConnectorID string    `json:"connector_id"`
	At          time.Time `json:"at"`
}

// Replay is the simulation state reconstructed from a session's events.
type Replay struct {
	SessionID   string                  `json:"session_id"`
	FlowchartID string                  `json:"flowchart_id,omitempty"`
	State       schema.SimulationStatus `json:"state"`
	CurrentNode string                  `json:"current_node"`
	Path        []string                `json:"path"`
	Decisions   []Decision              `json:"decisions"`
	Events      int                     `json:"events"`
}

// Replay rebuilds the status, token position, path and decisions of a
// session. Returns a STORE_ERROR if sequence gaps are detected.
func (el *EventLog) Replay(ctx context.Context, sessionID string) (*Replay, error) {
	events, err := el.store.GetEvents(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	r := &Replay{
		SessionID: sessionID,
		State:     schema.SimulationIdle,
		Path:      []string{},
		Decisions: []Decision{},
		Events:    len(events),
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in session %s: expected %d, got %d", sessionID, expected, e.Sequence)
		}
	}

	for _, e := range events {
		if e.FlowchartID != "" {
			r.FlowchartID = e.FlowchartID
		}
		switch e.Type {
		case schema.EventSimulationStarted:
			r.Path = []string{e.NodeID}
		case schema.EventSimulationAdvanced, schema.EventSimulationResumed:
			if e.ConnectorID != "" {
				r.Path = append(r.Path, e.NodeID)
			}
		case schema.EventSimulationReset:
			r.Path = []string{}
			r.Decisions = []Decision{}
		case schema.EventDecisionResolved:
			r.Decisions = append(r.Decisions, Decision{NodeID: e.NodeID, ConnectorID: e.ConnectorID, At: e.Timestamp})
			continue
		}
		r.State = schema.SimulationStatus(e.State)
		r.CurrentNode = e.NodeID
		if e.Type == schema.EventSimulationReset {
			r.CurrentNode = ""
		}
	}

	return r, nil
}
