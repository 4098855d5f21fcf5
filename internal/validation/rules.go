package validation

import (
	"fmt"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/pkg/schema"
)

func checkStart(d *graph.Diagram, r *schema.ValidationResult) {
	starts := d.NodesByType(graph.Start)
	switch {
	case len(starts) == 0:
		r.AddError("nodes", schema.IssueMissingStart, "flowchart must have a start node")
	case len(starts) > 1:
		r.Add(schema.ValidationIssue{
			Path:     "nodes",
			Code:     schema.IssueMultipleStarts,
			Message:  fmt.Sprintf("flowchart has %d start nodes", len(starts)),
			Severity: schema.SeverityWarning,
			NodeIDs:  nodeIDs(starts),
		})
	}
}

func checkEnd(d *graph.Diagram, r *schema.ValidationResult) {
	if len(d.NodesByType(graph.End)) == 0 {
		r.AddError("nodes", schema.IssueMissingEnd, "flowchart must have at least one end node")
	}
}

// checkDisconnected flags every node lacking a required incoming or outgoing
// connector. Start nodes need no incoming edge and End nodes no outgoing one.
func checkDisconnected(d *graph.Diagram, r *schema.ValidationResult) {
	for i, n := range d.Nodes() {
		var missing []string
		if n.Type != graph.Start && len(d.ConnectorsTo(n.ID)) == 0 {
			missing = append(missing, "incoming")
		}
		if n.Type != graph.End && len(d.ConnectorsFrom(n.ID)) == 0 {
			missing = append(missing, "outgoing")
		}
		if len(missing) == 0 {
			continue
		}
		r.Add(schema.ValidationIssue{
			Path:     fmt.Sprintf("nodes[%d]", i),
			Code:     schema.IssueDisconnectedNode,
			Message:  fmt.Sprintf("node %q is missing %s connections", n.ID, joinSides(missing)),
			Severity: schema.SeverityError,
			NodeIDs:  []string{n.ID},
			Details: map[string]any{
				"missing_incoming": contains(missing, "incoming"),
				"missing_outgoing": contains(missing, "outgoing"),
			},
		})
	}
}

func checkDecisionFanOut(d *graph.Diagram, r *schema.ValidationResult) {
	for i, n := range d.Nodes() {
		if n.Type != graph.Decision {
			continue
		}
		out := len(d.Outgoing(n.ID))
		if out >= 2 {
			continue
		}
		r.Add(schema.ValidationIssue{
			Path:     fmt.Sprintf("nodes[%d]", i),
			Code:     schema.IssueDecisionWithoutBranches,
			Message:  fmt.Sprintf("decision %q needs at least 2 outgoing connections, has %d", n.ID, out),
			Severity: schema.SeverityError,
			NodeIDs:  []string{n.ID},
			Details:  map[string]any{"outgoing": out},
		})
	}
}

// checkPotentialCycles reports direct two-node cycles only: A->B with B->A.
// Each direction is reported once.
func checkPotentialCycles(d *graph.Diagram, r *schema.ValidationResult) {
	conns := d.Connectors()
	type pair struct{ from, to string }
	reverse := make(map[pair]string, len(conns))
	for _, c := range conns {
		if _, ok := reverse[pair{c.SourceID, c.TargetID}]; !ok {
			reverse[pair{c.SourceID, c.TargetID}] = c.ID
		}
	}
	for i, c := range conns {
		if c.SourceID == c.TargetID {
			continue
		}
		back, ok := reverse[pair{c.TargetID, c.SourceID}]
		if !ok {
			continue
		}
		r.Add(schema.ValidationIssue{
			Path:         fmt.Sprintf("connections[%d]", i),
			Code:         schema.IssuePotentialCycle,
			Message:      fmt.Sprintf("connection %s -> %s has a reverse connection", c.SourceID, c.TargetID),
			Severity:     schema.SeverityWarning,
			NodeIDs:      []string{c.SourceID, c.TargetID},
			ConnectorIDs: []string{c.ID, back},
		})
	}
}

func checkSelfLoops(d *graph.Diagram, r *schema.ValidationResult) {
	for i, c := range d.Connectors() {
		if c.SourceID != c.TargetID {
			continue
		}
		r.Add(schema.ValidationIssue{
			Path:         fmt.Sprintf("connections[%d]", i),
			Code:         schema.IssueSelfLoop,
			Message:      fmt.Sprintf("connection %q links node %q to itself", c.ID, c.SourceID),
			Severity:     schema.SeverityError,
			NodeIDs:      []string{c.SourceID},
			ConnectorIDs: []string{c.ID},
		})
	}
}

func nodeIDs(nodes []graph.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func joinSides(sides []string) string {
	if len(sides) == 2 {
		return "incoming and outgoing"
	}
	return sides[0]
}
