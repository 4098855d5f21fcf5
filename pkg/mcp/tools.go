package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/render"
	"github.com/rendis/flowcraft/internal/session"
	"github.com/rendis/flowcraft/internal/simulation"
	"github.com/rendis/flowcraft/internal/store"
	"github.com/rendis/flowcraft/internal/validation"
	"github.com/rendis/flowcraft/pkg/schema"
)

// handleSave creates or replaces a flowchart document.
func (s *FlowcraftServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := mcp.ParseStringMap(req, "document", nil)
	if doc == nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}

	fc, issues, err := s.flowcharts.Save(ctx, req.GetString("id", ""), data)
	if err != nil {
		return toolError("save failed", err), nil
	}
	if issues == nil {
		issues = []schema.ValidationIssue{}
	}
	return marshalResult(map[string]any{
		"id":       fc.ID,
		"warnings": issues,
	})
}

// handleLoad returns a stored document.
func (s *FlowcraftServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	doc, err := s.flowcharts.Get(ctx, id)
	if err != nil {
		return toolError("load failed", err), nil
	}
	return marshalResult(doc)
}

// handleList lists flowchart summaries.
func (s *FlowcraftServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.flowcharts.List(ctx, store.FlowchartFilter{
		Title:  req.GetString("title", ""),
		Limit:  req.GetInt("limit", 50),
		Offset: req.GetInt("offset", 0),
	})
	if err != nil {
		return toolError("list failed", err), nil
	}
	return marshalResult(map[string]any{"flowcharts": list})
}

// handleDelete deletes a flowchart and closes its sessions.
func (s *FlowcraftServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	if err := s.flowcharts.Delete(ctx, id); err != nil {
		return toolError("delete failed", err), nil
	}
	closed := 0
	if s.sessions != nil {
		closed = s.sessions.CloseFlowchart(id)
	}
	return marshalResult(map[string]any{
		"ok":              true,
		"id":              id,
		"closed_sessions": closed,
	})
}

// handleValidate validates a stored flowchart or an inline document.
func (s *FlowcraftServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := validation.Options{Deep: req.GetBool("deep", false)}

	var (
		res *schema.ValidationResult
		err error
	)
	if doc := mcp.ParseStringMap(req, "document", nil); doc != nil {
		data, mErr := json.Marshal(doc)
		if mErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", mErr)), nil
		}
		res, err = s.flowcharts.ValidateDocument(data, opts)
	} else {
		id := req.GetString("id", "")
		if id == "" {
			return mcp.NewToolResultError("one of id or document is required"), nil
		}
		res, err = s.flowcharts.Validate(ctx, id, opts)
	}
	if err != nil {
		return toolError("validation failed", err), nil
	}

	errs, warns := res.Errors, res.Warnings
	if errs == nil {
		errs = []schema.ValidationIssue{}
	}
	if warns == nil {
		warns = []schema.ValidationIssue{}
	}
	return marshalResult(map[string]any{
		"valid":    res.Valid(),
		"errors":   errs,
		"warnings": warns,
	})
}

// handleSimulate dispatches simulation actions to the session manager.
func (s *FlowcraftServer) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	if s.sessions == nil {
		return mcp.NewToolResultError("simulations are not available"), nil
	}

	switch action {
	case "list":
		return marshalResult(map[string]any{"sessions": s.sessions.List()})
	case "start":
		flowchartID, err := req.RequireString("flowchart_id")
		if err != nil {
			return mcp.NewToolResultError("flowchart_id is required for start"), nil
		}
		view, err := s.sessions.Open(ctx, flowchartID, session.StartOptions{
			Mode:     req.GetString("mode", session.ModeManual),
			Interval: time.Duration(req.GetInt("interval_ms", 0)) * time.Millisecond,
			Guards:   req.GetString("guards", ""),
			Vars:     mcp.ParseStringMap(req, "vars", nil),
		})
		if err != nil {
			return toolError("start failed", err), nil
		}
		s.captureSession(ctx, view.SessionID)
		return marshalResult(view)
	}

	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session_id is required for %s", action)), nil
	}

	var view session.View
	switch action {
	case "status":
		view, err = s.sessions.Get(sessionID)
	case "step":
		view, err = s.sessions.Step(ctx, sessionID)
	case "choose":
		connectorID, cErr := req.RequireString("connector_id")
		if cErr != nil {
			return mcp.NewToolResultError("connector_id is required for choose"), nil
		}
		view, err = s.sessions.Choose(sessionID, connectorID)
	case "stop":
		view, err = s.sessions.Stop(sessionID)
	case "reset":
		view, err = s.sessions.Reset(sessionID)
	case "restart":
		view, err = s.sessions.Restart(ctx, sessionID)
	case "close":
		if err := s.sessions.Close(sessionID); err != nil {
			return toolError("close failed", err), nil
		}
		s.watchers.Forget(sessionID)
		return marshalResult(map[string]any{"ok": true, "session_id": sessionID})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
	if err != nil {
		return toolError(action+" failed", err), nil
	}
	s.captureSession(ctx, sessionID)
	return marshalResult(view)
}

// handleDiagram renders a stored flowchart or a live session.
func (s *FlowcraftServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := req.GetString("format", "mermaid")
	id := req.GetString("id", "")
	sessionID := req.GetString("session_id", "")

	var (
		out *render.Output
		err error
	)
	switch {
	case sessionID != "":
		if s.sessions == nil {
			return mcp.NewToolResultError("simulations are not available"), nil
		}
		var model *render.Model
		err = s.sessions.Diagram(sessionID, func(d *graph.Diagram, snap simulation.Snapshot) error {
			model = render.Build(d, render.OverlayFromSnapshot(snap))
			return nil
		})
		if err == nil {
			out, err = render.Render(ctx, model, format)
		}
	case id != "":
		out, err = s.flowcharts.Export(ctx, id, format)
	default:
		return mcp.NewToolResultError("one of id or session_id is required"), nil
	}
	if err != nil {
		return toolError("diagram failed", err), nil
	}

	if out.Format == string(render.FormatPNG) {
		encoded := base64.StdEncoding.EncodeToString(out.Body)
		return mcp.NewToolResultImage("flowchart diagram", encoded, out.ContentType), nil
	}
	return mcp.NewToolResultText(string(out.Body)), nil
}

// handleQuery runs a jq expression against a stored document.
func (s *FlowcraftServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	results, err := s.flowcharts.Query(ctx, id, expression)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"results": results})
}

// handleEvents reads the simulation event log.
func (s *FlowcraftServer) handleEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("event log is not available"), nil
	}

	if sessionID := req.GetString("session_id", ""); sessionID != "" {
		if req.GetBool("replay", false) {
			if s.replayer == nil {
				return mcp.NewToolResultError("replay is not available"), nil
			}
			r, err := s.replayer.Replay(ctx, sessionID)
			if err != nil {
				return toolError("replay failed", err), nil
			}
			return marshalResult(r)
		}
		events, err := s.store.GetEvents(ctx, sessionID, 0)
		if err != nil {
			return toolError("query failed", err), nil
		}
		return marshalResult(map[string]any{"events": nonNil(events)})
	}

	filter := mcp.ParseStringMap(req, "filter", nil)
	ef := store.EventFilter{Limit: extractInt(filter, "limit", 100)}
	if fcID, ok := filter["flowchart_id"].(string); ok {
		ef.FlowchartID = fcID
	}
	if eventType, ok := filter["event_type"].(string); ok {
		ef.EventType = eventType
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			ef.Since = t
		}
	}
	events, err := s.store.ListEvents(ctx, ef)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"events": nonNil(events)})
}

// --- Internal helpers ---

// toolError formats err with its code when it carries one.
func toolError(prefix string, err error) *mcp.CallToolResult {
	if code := schema.CodeOf(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s [%s]: %v", prefix, code, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func nonNil(events []*store.Event) []*store.Event {
	if events == nil {
		return []*store.Event{}
	}
	return events
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession records the calling client as a watcher of a simulation.
func (s *FlowcraftServer) captureSession(ctx context.Context, simulationID string) {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		s.watchers.Watch(simulationID, cs.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
