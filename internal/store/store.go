// Package store persists flowchart documents and the simulation event log.
package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Flowcharts
	CreateFlowchart(ctx context.Context, fc *Flowchart) error
	GetFlowchart(ctx context.Context, id string) (*Flowchart, error)
	UpdateFlowchart(ctx context.Context, fc *Flowchart) error
	ListFlowcharts(ctx context.Context, filter FlowchartFilter) ([]*FlowchartSummary, error)
	DeleteFlowchart(ctx context.Context, id string) error

	// Simulation events (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
