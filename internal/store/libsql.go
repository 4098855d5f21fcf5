package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowcraft/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flowcraft.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Flowcharts ---

// storedDocument is the document column payload.
type storedDocument struct {
	Nodes       []schema.DocumentNode       `json:"nodes"`
	Connections []schema.DocumentConnection `json:"connections"`
}

func encodeDocument(doc schema.Document) (string, error) {
	sd := storedDocument{Nodes: doc.Nodes, Connections: doc.Connections}
	if sd.Nodes == nil {
		sd.Nodes = []schema.DocumentNode{}
	}
	if sd.Connections == nil {
		sd.Connections = []schema.DocumentConnection{}
	}
	b, err := json.Marshal(sd)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(b), nil
}

// CreateFlowchart inserts fc, assigning a UUID when ID is empty and
// defaulting the title and version.
func (s *LibSQLStore) CreateFlowchart(ctx context.Context, fc *Flowchart) error {
	if fc.ID == "" {
		fc.ID = uuid.New().String()
	}
	if fc.Title == "" {
		fc.Title = schema.DefaultTitle
	}
	if fc.Version == "" {
		fc.Version = schema.DocumentVersion
	}
	fc.CreatedAt = timeOrNow(fc.CreatedAt)
	fc.UpdatedAt = fc.CreatedAt

	body, err := encodeDocument(fc.Document)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flowcharts (id, title, document, node_count, connection_count, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fc.ID, fc.Title, body, len(fc.Document.Nodes), len(fc.Document.Connections),
		fc.Version, fc.CreatedAt, fc.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeDuplicateID, "flowchart %q already exists", fc.ID).WithCause(err)
	}
	return err
}

// GetFlowchart loads a flowchart by id.
func (s *LibSQLStore) GetFlowchart(ctx context.Context, id string) (*Flowchart, error) {
	fc := &Flowchart{}
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, document, version, created_at, updated_at FROM flowcharts WHERE id = ?`, id,
	).Scan(&fc.ID, &fc.Title, &body, &fc.Version, &fc.CreatedAt, &fc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("flowchart", id)
	}
	if err != nil {
		return nil, err
	}

	var sd storedDocument
	if err := json.Unmarshal([]byte(body), &sd); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	fc.Document = schema.Document{Title: fc.Title, Nodes: sd.Nodes, Connections: sd.Connections}
	return fc, nil
}

// UpdateFlowchart replaces the title and content of an existing flowchart.
// CreatedAt is preserved and UpdatedAt is bumped.
func (s *LibSQLStore) UpdateFlowchart(ctx context.Context, fc *Flowchart) error {
	if fc.Title == "" {
		fc.Title = schema.DefaultTitle
	}
	body, err := encodeDocument(fc.Document)
	if err != nil {
		return err
	}
	fc.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE flowcharts SET title = ?, document = ?, node_count = ?, connection_count = ?, updated_at = ?
		 WHERE id = ?`,
		fc.Title, body, len(fc.Document.Nodes), len(fc.Document.Connections), fc.UpdatedAt, fc.ID,
	)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "flowchart", fc.ID); err != nil {
		return err
	}

	return s.db.QueryRowContext(ctx,
		`SELECT version, created_at FROM flowcharts WHERE id = ?`, fc.ID,
	).Scan(&fc.Version, &fc.CreatedAt)
}

// ListFlowcharts returns summaries ordered by most recently updated.
func (s *LibSQLStore) ListFlowcharts(ctx context.Context, filter FlowchartFilter) ([]*FlowchartSummary, error) {
	query := `SELECT id, title, node_count, connection_count, version, created_at, updated_at FROM flowcharts`
	var args []any
	if filter.Title != "" {
		query += ` WHERE LOWER(title) LIKE ?`
		args = append(args, "%"+strings.ToLower(filter.Title)+"%")
	}
	query += ` ORDER BY updated_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FlowchartSummary
	for rows.Next() {
		fs := &FlowchartSummary{}
		var created, updated time.Time
		if err := rows.Scan(&fs.ID, &fs.Title, &fs.NodeCount, &fs.ConnectionCount, &fs.Metadata.Version, &created, &updated); err != nil {
			return nil, err
		}
		fs.Metadata.Created = created.UTC().Format(time.RFC3339Nano)
		fs.Metadata.Modified = updated.UTC().Format(time.RFC3339Nano)
		out = append(out, fs)
	}
	return out, rows.Err()
}

// DeleteFlowchart removes a flowchart and its simulation events.
func (s *LibSQLStore) DeleteFlowchart(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM flowcharts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "flowchart", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM simulation_events WHERE flowchart_id = ?`, id); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return tx.Commit()
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-session
// sequence and fills event.Sequence and event.Timestamp.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

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

const eventColumns = `id, session_id, flowchart_id, event_type, state, node_id, connector_id, payload, timestamp, sequence`

// GetEvents returns events for a session with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM simulation_events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEvents returns events matching the filter, oldest first.
func (s *LibSQLStore) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any
	if filter.FlowchartID != "" {
		where = append(where, "flowchart_id = ?")
		args = append(args, filter.FlowchartID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since)
	}

	query := `SELECT ` + eventColumns + ` FROM simulation_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// PruneEvents deletes events older than before and returns how many were removed.
func (s *LibSQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM simulation_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var flowchartID, nodeID, connectorID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &flowchartID, &e.Type, &e.State,
			&nodeID, &connectorID, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.FlowchartID = flowchartID.String
		e.NodeID = nodeID.String
		e.ConnectorID = connectorID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
