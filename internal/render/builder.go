package render

import (
	"slices"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/simulation"
	"github.com/rendis/flowcraft/pkg/schema"
)

// Build constructs a Model from a diagram and an optional overlay. Nodes keep
// diagram order; Levels is a breadth-first layering from the start nodes with
// unreachable nodes collected in a final level.
func Build(d *graph.Diagram, overlay *Overlay) *Model {
	title := d.Title
	if title == "" {
		title = schema.DefaultTitle
	}
	m := &Model{Title: title}

	for _, n := range d.Nodes() {
		m.Nodes = append(m.Nodes, &Node{ID: n.ID, Label: n.Label, Kind: n.Type})
	}
	for _, c := range d.Connectors() {
		m.Edges = append(m.Edges, Edge{ID: c.ID, From: c.SourceID, To: c.TargetID, Label: c.Label})
	}
	m.Levels = buildLevels(d)

	if overlay != nil {
		applyOverlay(m, overlay)
	}
	return m
}

// OverlayFromSnapshot converts a simulation snapshot into an overlay.
func OverlayFromSnapshot(s simulation.Snapshot) *Overlay {
	o := &Overlay{Current: s.NodeID, Path: s.Path}
	for _, c := range s.Options {
		o.Options = append(o.Options, c.ID)
	}
	return o
}

func applyOverlay(m *Model, o *Overlay) {
	for _, id := range o.Path {
		if n := m.node(id); n != nil {
			n.Mark = MarkVisited
		}
	}
	if n := m.node(o.Current); n != nil {
		n.Mark = MarkCurrent
	}

	// A step along the path marks the first connector joining the pair.
	for i := 1; i < len(o.Path); i++ {
		from, to := o.Path[i-1], o.Path[i]
		for j := range m.Edges {
			if m.Edges[j].From == from && m.Edges[j].To == to {
				m.Edges[j].Taken = true
				break
			}
		}
	}
	for j := range m.Edges {
		if slices.Contains(o.Options, m.Edges[j].ID) {
			m.Edges[j].Option = true
		}
	}
}

func buildLevels(d *graph.Diagram) [][]string {
	seen := make(map[string]bool)
	var frontier []string
	for _, s := range d.NodesByType(graph.Start) {
		frontier = append(frontier, s.ID)
		seen[s.ID] = true
	}

	var levels [][]string
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		var next []string
		for _, id := range frontier {
			for _, c := range d.Outgoing(id) {
				if !seen[c.TargetID] {
					seen[c.TargetID] = true
					next = append(next, c.TargetID)
				}
			}
		}
		frontier = next
	}

	var rest []string
	for _, n := range d.Nodes() {
		if !seen[n.ID] {
			rest = append(rest, n.ID)
		}
	}
	if len(rest) > 0 {
		levels = append(levels, rest)
	}
	return levels
}
