// Package flowchart implements the flowchart operations shared by the HTTP
// API, the MCP server and the CLI.
package flowchart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rendis/flowcraft/internal/document"
	"github.com/rendis/flowcraft/internal/expressions"
	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/logging"
	"github.com/rendis/flowcraft/internal/metrics"
	"github.com/rendis/flowcraft/internal/render"
	"github.com/rendis/flowcraft/internal/store"
	"github.com/rendis/flowcraft/internal/streaming"
	"github.com/rendis/flowcraft/internal/validation"
	"github.com/rendis/flowcraft/pkg/schema"
)

// Deps holds the service's collaborators. Hub is optional.
type Deps struct {
	Store  store.Store
	Hub    streaming.EventHub
	Logger *slog.Logger
	Canvas graph.Canvas
}

// Service performs flowchart CRUD, validation, export and queries.
type Service struct {
	store  store.Store
	hub    streaming.EventHub
	logger *slog.Logger
	canvas graph.Canvas
	jq     *expressions.GoJQEngine
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	canvas := deps.Canvas
	if canvas.Width == 0 && canvas.Height == 0 {
		canvas = graph.DefaultCanvas
	}
	return &Service{
		store:  deps.Store,
		hub:    deps.Hub,
		logger: logger,
		canvas: canvas,
		jq:     expressions.NewGoJQEngine(),
	}
}

// Canvas returns the canvas new diagrams are bounded by.
func (s *Service) Canvas() graph.Canvas { return s.canvas }

// Create parses data as a document and stores it under a new id.
func (s *Service) Create(ctx context.Context, data []byte) (*store.Flowchart, []schema.ValidationIssue, error) {
	d, issues, err := s.parse(data)
	if err != nil {
		return nil, nil, err
	}
	fc := &store.Flowchart{Title: d.Title, Document: document.ToDocument(d)}
	err = s.store.CreateFlowchart(ctx, fc)
	metrics.ObserveOperation("create", err)
	if err != nil {
		return nil, nil, err
	}
	s.saved(ctx, fc.ID)
	return fc, issues, nil
}

// Update replaces the title and content of an existing flowchart.
func (s *Service) Update(ctx context.Context, id string, data []byte) (*store.Flowchart, []schema.ValidationIssue, error) {
	d, issues, err := s.parse(data)
	if err != nil {
		return nil, nil, err
	}
	fc := &store.Flowchart{ID: id, Title: d.Title, Document: document.ToDocument(d)}
	err = s.store.UpdateFlowchart(ctx, fc)
	metrics.ObserveOperation("update", err)
	if err != nil {
		return nil, nil, err
	}
	s.saved(ctx, id)
	return fc, issues, nil
}

// Save creates the flowchart when id is empty and updates it otherwise.
func (s *Service) Save(ctx context.Context, id string, data []byte) (*store.Flowchart, []schema.ValidationIssue, error) {
	if id == "" {
		return s.Create(ctx, data)
	}
	return s.Update(ctx, id, data)
}

// Get returns the stored record with metadata filled in.
func (s *Service) Get(ctx context.Context, id string) (schema.Document, error) {
	fc, err := s.store.GetFlowchart(ctx, id)
	metrics.ObserveOperation("get", err)
	if err != nil {
		return schema.Document{}, err
	}
	return fc.Record(), nil
}

// List returns flowchart summaries.
func (s *Service) List(ctx context.Context, filter store.FlowchartFilter) ([]*store.FlowchartSummary, error) {
	out, err := s.store.ListFlowcharts(ctx, filter)
	metrics.ObserveOperation("list", err)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*store.FlowchartSummary{}
	}
	return out, nil
}

// Delete removes a flowchart and its simulation events.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.DeleteFlowchart(ctx, id)
	metrics.ObserveOperation("delete", err)
	if err != nil {
		return err
	}
	s.publish(ctx, streaming.StreamEvent{FlowchartID: id, EventType: schema.EventFlowchartDeleted})
	logging.LogWith(logging.WithFlowchartID(ctx, id), s.logger).Info("flowchart deleted")
	return nil
}

// Load returns the stored flowchart as a diagram along with load warnings.
func (s *Service) Load(ctx context.Context, id string) (*graph.Diagram, []schema.ValidationIssue, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return document.FromDocument(doc, graph.WithCanvas(s.canvas))
}

// Validate checks a stored flowchart. Load warnings are included in the report.
func (s *Service) Validate(ctx context.Context, id string, opts validation.Options) (*schema.ValidationResult, error) {
	d, issues, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.validate(d, issues, opts), nil
}

// ValidateDocument checks an inline document.
func (s *Service) ValidateDocument(data []byte, opts validation.Options) (*schema.ValidationResult, error) {
	d, issues, err := s.parse(data)
	if err != nil {
		return nil, err
	}
	return s.validate(d, issues, opts), nil
}

// Export renders a stored flowchart in the given format.
func (s *Service) Export(ctx context.Context, id, format string) (*render.Output, error) {
	d, _, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return render.Render(ctx, render.Build(d, nil), format)
}

// Query runs a jq expression against the stored record.
func (s *Service) Query(ctx context.Context, id, expression string) ([]any, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := toMap(doc)
	if err != nil {
		return nil, err
	}
	results, err := s.jq.EvaluateAll(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []any{}
	}
	return results, nil
}

func (s *Service) parse(data []byte) (*graph.Diagram, []schema.ValidationIssue, error) {
	return document.Parse(data, graph.WithCanvas(s.canvas))
}

func (s *Service) validate(d *graph.Diagram, issues []schema.ValidationIssue, opts validation.Options) *schema.ValidationResult {
	r := validation.Validate(d, opts)
	for _, is := range issues {
		r.Add(is)
	}
	metrics.ObserveValidation(r)
	return r
}

func (s *Service) saved(ctx context.Context, id string) {
	s.publish(ctx, streaming.StreamEvent{FlowchartID: id, EventType: schema.EventFlowchartSaved})
	logging.LogWith(logging.WithFlowchartID(ctx, id), s.logger).Info("flowchart saved")
}

func (s *Service) publish(ctx context.Context, ev streaming.StreamEvent) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish flowchart event failed", "event_type", ev.EventType, "error", err)
	}
}

func toMap(doc schema.Document) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return m, nil
}
