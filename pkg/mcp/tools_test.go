package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcraft/internal/flowchart"
	"github.com/rendis/flowcraft/internal/session"
	"github.com/rendis/flowcraft/internal/store"
	"github.com/rendis/flowcraft/internal/streaming"
	"github.com/rendis/flowcraft/pkg/schema"
)

func linearDocument() map[string]any {
	node := func(id, typ, text string, y float64) map[string]any {
		return map[string]any{
			"id": id, "type": typ, "text": text,
			"position": map[string]any{"x": 10.0, "y": y},
			"size":     map[string]any{"width": 120.0, "height": 60.0},
		}
	}
	return map[string]any{
		"title": "Linear",
		"nodes": []any{
			node("start_1", "start", "Start", 10),
			node("process_1", "process", "Work", 150),
			node("end_1", "end", "End", 300),
		},
		"connections": []any{
			map[string]any{"id": "connector_1", "source": "start_1", "target": "process_1", "type": "vertical", "label": ""},
			map[string]any{"id": "connector_2", "source": "process_1", "target": "end_1", "type": "vertical", "label": "done"},
		},
	}
}

func newTestServer(t *testing.T) *FlowcraftServer {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := streaming.NewMemoryHub(0)
	events := store.NewEventLog(st)
	sessions := session.NewManager(session.Config{
		Store: st, Events: events, Hub: hub, Logger: logger, Interval: 5 * time.Millisecond,
	})
	t.Cleanup(sessions.CloseAll)

	return NewFlowcraftServer(FlowcraftServerDeps{
		Flowcharts: flowchart.NewService(flowchart.Deps{Store: st, Hub: hub, Logger: logger}),
		Sessions:   sessions,
		Store:      st,
		Replayer:   events,
		Hub:        hub,
		Logger:     logger,
	})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func saveLinear(t *testing.T, s *FlowcraftServer) string {
	t.Helper()
	result, err := s.handleSave(context.Background(), buildRequest("flowcraft.save", map[string]any{
		"document": linearDocument(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out struct {
		ID string `json:"id"`
	}
	unmarshalResult(t, result, &out)
	require.NotEmpty(t, out.ID)
	return out.ID
}

func TestSaveLoadList(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := saveLinear(t, s)

	result, err := s.handleLoad(ctx, buildRequest("flowcraft.load", map[string]any{"id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var doc schema.Document
	unmarshalResult(t, result, &doc)
	assert.Equal(t, "Linear", doc.Title)
	assert.Len(t, doc.Nodes, 3)

	renamed := linearDocument()
	renamed["title"] = "Renamed"
	result, err = s.handleSave(ctx, buildRequest("flowcraft.save", map[string]any{"id": id, "document": renamed}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleList(ctx, buildRequest("flowcraft.list", map[string]any{"title": "ren"}))
	require.NoError(t, err)
	var list struct {
		Flowcharts []store.FlowchartSummary `json:"flowcharts"`
	}
	unmarshalResult(t, result, &list)
	require.Len(t, list.Flowcharts, 1)
	assert.Equal(t, id, list.Flowcharts[0].ID)
}

func TestSaveMissingDocument(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSave(context.Background(), buildRequest("flowcraft.save", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestLoadNotFound(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleLoad(context.Background(), buildRequest("flowcraft.load", map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeNotFound)
}

func TestValidateTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := saveLinear(t, s)

	result, err := s.handleValidate(ctx, buildRequest("flowcraft.validate", map[string]any{"id": id, "deep": true}))
	require.NoError(t, err)
	var out struct {
		Valid  bool                     `json:"valid"`
		Errors []schema.ValidationIssue `json:"errors"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Valid)

	result, err = s.handleValidate(ctx, buildRequest("flowcraft.validate", map[string]any{
		"document": map[string]any{"title": "empty", "nodes": []any{}, "connections": []any{}},
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	assert.False(t, out.Valid)
	assert.NotEmpty(t, out.Errors)

	result, err = s.handleValidate(ctx, buildRequest("flowcraft.validate", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSimulateManualRun(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := saveLinear(t, s)

	result, err := s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{
		"action": "start", "flowchart_id": id,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var view session.View
	unmarshalResult(t, result, &view)
	assert.Equal(t, "start_1", view.NodeID)
	sid := view.SessionID

	for range 3 {
		result, err = s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{
			"action": "step", "session_id": sid,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError, extractText(t, result))
	}
	unmarshalResult(t, result, &view)
	assert.Equal(t, schema.SimulationCompleted, view.State)

	result, err = s.handleEvents(ctx, buildRequest("flowcraft.events", map[string]any{
		"session_id": sid, "replay": true,
	}))
	require.NoError(t, err)
	var replay store.Replay
	unmarshalResult(t, result, &replay)
	assert.Equal(t, schema.SimulationCompleted, replay.State)
	assert.Equal(t, []string{"start_1", "process_1", "end_1"}, replay.Path)

	result, err = s.handleEvents(ctx, buildRequest("flowcraft.events", map[string]any{
		"filter": map[string]any{"flowchart_id": id, "event_type": schema.EventSimulationAdvanced},
	}))
	require.NoError(t, err)
	var events struct {
		Events []store.Event `json:"events"`
	}
	unmarshalResult(t, result, &events)
	assert.Len(t, events.Events, 2)

	result, err = s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{
		"action": "close", "session_id": sid,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{
		"action": "status", "session_id": sid,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSimulateMissingParams(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{"action": "start"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{"action": "step"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{"action": "choose", "session_id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := saveLinear(t, s)

	result, err := s.handleDiagram(ctx, buildRequest("flowcraft.diagram", map[string]any{"id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.True(t, strings.HasPrefix(extractText(t, result), "flowchart TD"))

	result, err = s.handleDiagram(ctx, buildRequest("flowcraft.diagram", map[string]any{"id": id, "format": "text"}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "--- connections ---")

	result, err = s.handleDiagram(ctx, buildRequest("flowcraft.diagram", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleDiagram(ctx, buildRequest("flowcraft.diagram", map[string]any{"id": id, "format": "gif"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryAndDeleteTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := saveLinear(t, s)

	result, err := s.handleQuery(ctx, buildRequest("flowcraft.query", map[string]any{
		"id": id, "expression": ".connections | length",
	}))
	require.NoError(t, err)
	var q struct {
		Results []any `json:"results"`
	}
	unmarshalResult(t, result, &q)
	assert.Equal(t, []any{2.0}, q.Results)

	_, err = s.handleSimulate(ctx, buildRequest("flowcraft.simulate", map[string]any{"action": "start", "flowchart_id": id}))
	require.NoError(t, err)

	result, err = s.handleDelete(ctx, buildRequest("flowcraft.delete", map[string]any{"id": id}))
	require.NoError(t, err)
	var del struct {
		OK     bool `json:"ok"`
		Closed int  `json:"closed_sessions"`
	}
	unmarshalResult(t, result, &del)
	assert.True(t, del.OK)
	assert.Equal(t, 1, del.Closed)

	result, err = s.handleDelete(ctx, buildRequest("flowcraft.delete", map[string]any{"id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExtractInt(t *testing.T) {
	f := map[string]any{"a": 3.0, "b": 4, "c": "5", "d": true}
	assert.Equal(t, 3, extractInt(f, "a", 0))
	assert.Equal(t, 4, extractInt(f, "b", 0))
	assert.Equal(t, 5, extractInt(f, "c", 0))
	assert.Equal(t, 9, extractInt(f, "d", 9))
	assert.Equal(t, 7, extractInt(nil, "a", 7))
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
