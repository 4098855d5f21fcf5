package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rendis/flowcraft/internal/graph"
)

// markTag returns a short indicator for an overlay mark.
func markTag(m Mark) string {
	switch m {
	case MarkCurrent:
		return "[*]"
	case MarkVisited:
		return "[v]"
	default:
		return ""
	}
}

// kindTag returns the bracket pair used for a node type in outlines.
func kindTag(k graph.NodeType) (string, string) {
	switch k {
	case graph.Start, graph.End:
		return "(", ")"
	case graph.Decision:
		return "<", ">"
	case graph.InputOutput:
		return "/", "/"
	default:
		return "[", "]"
	}
}

// RenderText renders a Model as boxed levels followed by an edge list.
func RenderText(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []textBox
		for _, nodeID := range level {
			if node := model.node(nodeID); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if levelIdx < len(model.Levels)-1 {
			b.WriteString("       │\n")
			b.WriteString("       ▼\n")
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\n--- connections ---\n")
	}
	for _, edge := range model.Edges {
		arrow := "─→"
		switch {
		case edge.Taken:
			arrow = "═⇒"
		case edge.Option:
			arrow = "┈→"
		}
		line := fmt.Sprintf("  %s %s %s", edge.From, arrow, edge.To)
		if edge.Label != "" {
			line += fmt.Sprintf(" (%s)", edge.Label)
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

// textBox holds the rendered lines of a single box.
type textBox struct {
	lines []string
	width int
}

func makeBox(node *Node) textBox {
	open, close := kindTag(node.Kind)
	content := []string{open + firstLine(node.Label) + close, node.ID}
	if tag := markTag(node.Mark); tag != "" {
		content = append(content, tag)
	}

	maxLen := 0
	for _, line := range content {
		maxLen = max(maxLen, utf8.RuneCountInString(line))
	}
	width := maxLen + 4

	lines := []string{"┌" + strings.Repeat("─", width-2) + "┐"}
	for _, line := range content {
		padded := line + strings.Repeat(" ", maxLen-utf8.RuneCountInString(line))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return textBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []textBox) {
	height := 0
	for _, box := range boxes {
		height = max(height, len(box.lines))
	}
	for row := 0; row < height; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}
