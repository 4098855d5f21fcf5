package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowcraft/pkg/schema"
)

// Flowchart is a persisted diagram document. ID, CreatedAt and UpdatedAt
// are authoritative over Document.ID and Document.Metadata.
type Flowchart struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Document  schema.Document `json:"document"`
	Version   string          `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Record returns the document as served to clients: id, title and
// metadata filled from the row.
func (f *Flowchart) Record() schema.Document {
	doc := f.Document
	doc.ID = f.ID
	doc.Title = f.Title
	if doc.Nodes == nil {
		doc.Nodes = []schema.DocumentNode{}
	}
	if doc.Connections == nil {
		doc.Connections = []schema.DocumentConnection{}
	}
	doc.Metadata = &schema.DocumentMetadata{
		Created:  f.CreatedAt.UTC().Format(time.RFC3339Nano),
		Modified: f.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Version:  f.Version,
	}
	return doc
}

// FlowchartSummary is the list view of a flowchart.
type FlowchartSummary struct {
	ID              string                  `json:"id"`
	Title           string                  `json:"title"`
	NodeCount       int                     `json:"node_count"`
	ConnectionCount int                     `json:"connection_count"`
	Metadata        schema.DocumentMetadata `json:"metadata"`
}

// FlowchartFilter narrows ListFlowcharts.
type FlowchartFilter struct {
	Title  string // case-insensitive substring
	Limit  int
	Offset int
}

// Event is an immutable entry in the simulation event log.
type Event struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	FlowchartID string          `json:"flowchart_id,omitempty"`
	Type        string          `json:"event_type"`
	State       string          `json:"state"`
	NodeID      string          `json:"node_id,omitempty"`
	ConnectorID string          `json:"connector_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	FlowchartID string
	EventType   string
	Since       time.Time
	Limit       int
}
