package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcraft/internal/streaming"
)

// MCPNotifier pushes simulation events to the clients watching them.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	watchers  *WatchRegistry
}

// NewMCPNotifier creates a notifier backed by an MCP server.
func NewMCPNotifier(mcpServer *server.MCPServer, watchers *WatchRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, watchers: watchers}
}

// Notify sends ev to every watcher of its session. Clients that went away
// are dropped from the registry. Returns the first other send error.
func (n *MCPNotifier) Notify(_ context.Context, ev streaming.StreamEvent) error {
	payload := map[string]any{
		"session_id":   ev.SessionID,
		"flowchart_id": ev.FlowchartID,
		"event_type":   ev.EventType,
		"state":        ev.State,
		"node_id":      ev.NodeID,
		"path":         ev.Path,
	}
	if ev.ConnectorID != "" {
		payload["connector_id"] = ev.ConnectorID
	}

	var firstErr error
	for _, clientID := range n.watchers.WatchersOf(ev.SessionID) {
		err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.watchers.Remove(clientID)
			continue
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
