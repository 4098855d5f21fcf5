// Package streaming fans simulation events out to live subscribers.
package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time event emitted while a simulation runs or a
// flowchart changes.
type StreamEvent struct {
	SessionID   string    `json:"session_id,omitempty"`
	FlowchartID string    `json:"flowchart_id,omitempty"`
	EventType   string    `json:"event_type"`
	State       string    `json:"state,omitempty"`
	NodeID      string    `json:"node_id,omitempty"`
	ConnectorID string    `json:"connector_id,omitempty"`
	Path        []string  `json:"path,omitempty"`
	Payload     any       `json:"payload,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SessionID   string   `json:"session_id,omitempty"`
	FlowchartID string   `json:"flowchart_id,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time simulation events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
