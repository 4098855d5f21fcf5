// Package render turns diagrams into Mermaid, plain text and Graphviz images,
// optionally overlaid with the state of a simulation.
package render

import "github.com/rendis/flowcraft/internal/graph"

// Mark is the simulation overlay state of a node.
type Mark string

const (
	MarkNone    Mark = ""
	MarkCurrent Mark = "current"
	MarkVisited Mark = "visited"
)

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one diagram node as seen by a renderer.
type Node struct {
	ID    string
	Label string
	Kind  graph.NodeType
	Mark  Mark
}

// Edge is one connector as seen by a renderer. Taken is set for connectors
// the simulation token has traversed; Option for branches offered at a
// pending decision.
type Edge struct {
	ID     string
	From   string
	To     string
	Label  string
	Taken  bool
	Option bool
}

// Overlay is the simulation state drawn on top of a diagram.
type Overlay struct {
	Current string
	Path    []string
	Options []string
}

func (m *Model) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
