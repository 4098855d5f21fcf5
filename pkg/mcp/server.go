// Package mcp exposes flowcharts and simulations as MCP tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcraft/internal/flowchart"
	"github.com/rendis/flowcraft/internal/session"
	"github.com/rendis/flowcraft/internal/store"
	"github.com/rendis/flowcraft/internal/streaming"
)

// Replayer rebuilds simulation state from the event log. *store.EventLog
// satisfies it.
type Replayer interface {
	Replay(ctx context.Context, sessionID string) (*store.Replay, error)
}

// FlowcraftServerDeps holds the dependencies for creating a FlowcraftServer.
// Store and Replayer back the events tool; Hub feeds client notifications.
type FlowcraftServerDeps struct {
	Flowcharts *flowchart.Service
	Sessions   *session.Manager
	Store      store.Store
	Replayer   Replayer
	Hub        streaming.EventHub
	Logger     *slog.Logger
}

// FlowcraftServer wraps an MCP server with flowcraft tool handlers.
type FlowcraftServer struct {
	flowcharts *flowchart.Service
	sessions   *session.Manager
	store      store.Store
	replayer   Replayer
	hub        streaming.EventHub
	logger     *slog.Logger

	watchers  *WatchRegistry
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

// NewFlowcraftServer creates a new FlowcraftServer with all tools registered.
func NewFlowcraftServer(deps FlowcraftServerDeps) *FlowcraftServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowcraftServer{
		flowcharts: deps.Flowcharts,
		sessions:   deps.Sessions,
		store:      deps.Store,
		replayer:   deps.Replayer,
		hub:        deps.Hub,
		logger:     logger,
		watchers:   NewWatchRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"flowcraft",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowcraft stores flowchart diagrams and simulates them. Use flowcraft.save and flowcraft.load to edit documents, flowcraft.validate to check them, flowcraft.simulate to walk a token through a flowchart, flowcraft.diagram to render one and flowcraft.query to run jq over a stored document."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.watchers)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowcraftServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		go s.forward(ctx)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowcraftServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// forward pushes simulation events to the clients watching each session.
func (s *FlowcraftServer) forward(ctx context.Context) {
	ch, unsub, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		s.logger.Warn("subscribe for notifications failed", "error", err)
		return
	}
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.SessionID == "" {
				continue
			}
			if err := s.notifier.Notify(ctx, ev); err != nil {
				s.logger.Debug("notification failed", "session_id", ev.SessionID, "error", err)
			}
		}
	}
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowcraftServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: eventsTool(), Handler: s.handleEvents},
	}
}

// --- Tool definitions ---

func saveTool() mcp.Tool {
	return mcp.NewTool("flowcraft.save",
		mcp.WithDescription("Create or replace a flowchart document"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Flowchart document with title, nodes and connections")),
		mcp.WithString("id", mcp.Description("Existing flowchart ID to replace (omit to create)")),
	)
}

func loadTool() mcp.Tool {
	return mcp.NewTool("flowcraft.load",
		mcp.WithDescription("Load a stored flowchart document"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Flowchart ID")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("flowcraft.list",
		mcp.WithDescription("List stored flowcharts, most recently modified first"),
		mcp.WithString("title", mcp.Description("Case-insensitive title filter")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		mcp.WithNumber("offset", mcp.Description("Number of results to skip")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("flowcraft.delete",
		mcp.WithDescription("Delete a flowchart, its event log and its open simulations"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Flowchart ID")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flowcraft.validate",
		mcp.WithDescription("Validate a stored flowchart or an inline document"),
		mcp.WithString("id", mcp.Description("Stored flowchart ID")),
		mcp.WithObject("document", mcp.Description("Inline document to validate instead of a stored one")),
		mcp.WithBoolean("deep", mcp.Description("Also report cycles and unreachable nodes")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("flowcraft.simulate",
		mcp.WithDescription("Run and control flowchart simulations"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("start", "step", "choose", "stop", "reset", "restart", "status", "close", "list"),
			mcp.Description("Simulation action"),
		),
		mcp.WithString("flowchart_id", mcp.Description("Flowchart to simulate (start)")),
		mcp.WithString("session_id", mcp.Description("Simulation session (all actions but start and list)")),
		mcp.WithString("connector_id", mcp.Description("Connector to follow out of a decision (choose)")),
		mcp.WithString("mode", mcp.Enum("manual", "auto"), mcp.Description("Run mode (start, default manual)")),
		mcp.WithString("guards", mcp.Enum("expr", "cel"), mcp.Description("Guard language for decision labels in auto mode (default expr)")),
		mcp.WithObject("vars", mcp.Description("Variables visible to decision guards")),
		mcp.WithNumber("interval_ms", mcp.Description("Auto-mode tick interval in milliseconds")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowcraft.diagram",
		mcp.WithDescription("Render a flowchart as Mermaid, text, PNG or SVG. With session_id the simulation position is overlaid"),
		mcp.WithString("id", mcp.Description("Stored flowchart ID")),
		mcp.WithString("session_id", mcp.Description("Simulation session to render with its overlay")),
		mcp.WithString("format", mcp.Enum("mermaid", "text", "png", "svg"), mcp.Description("Output format (default mermaid)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("flowcraft.query",
		mcp.WithDescription("Run a jq expression against a stored flowchart document"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Flowchart ID")),
		mcp.WithString("expression", mcp.Required(), mcp.Description("jq expression, e.g. [.nodes[] | select(.type == \"decision\") | .text]")),
	)
}

func eventsTool() mcp.Tool {
	return mcp.NewTool("flowcraft.events",
		mcp.WithDescription("Read the simulation event log"),
		mcp.WithString("session_id", mcp.Description("Session whose events to return")),
		mcp.WithBoolean("replay", mcp.Description("Return the state rebuilt from the session's events instead of the raw events")),
		mcp.WithObject("filter", mcp.Description("Filter criteria without a session (flowchart_id, event_type, since, limit)")),
	)
}
