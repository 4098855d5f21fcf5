package render

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcraft/internal/graph"
)

// RenderMermaid renders a Model as a Mermaid flowchart string.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("flowchart TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}

	var taken []int
	for i, edge := range model.Edges {
		arrow := "-->"
		if edge.Option {
			arrow = "-.->"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n", mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To))
		if edge.Taken {
			taken = append(taken, i)
		}
	}

	var marked []*Node
	for _, node := range model.Nodes {
		if node.Mark != MarkNone {
			marked = append(marked, node)
		}
	}
	if len(marked) == 0 && len(taken) == 0 {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString("    classDef current fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef visited fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	for _, node := range marked {
		fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), node.Mark)
	}
	for _, i := range taken {
		fmt.Fprintf(&b, "    linkStyle %d stroke:#2d6a2d,stroke-width:3px\n", i)
	}
	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape of the node type.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case graph.Start, graph.End:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case graph.Decision:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case graph.InputOutput:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces characters that terminate Mermaid labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;")
	return r.Replace(s)
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
