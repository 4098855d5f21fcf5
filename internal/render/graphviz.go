package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/pkg/schema"
)

// ImageFormat selects the Graphviz output encoding.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
)

func (f ImageFormat) graphviz() (graphviz.Format, error) {
	switch f {
	case FormatPNG, "":
		return graphviz.PNG, nil
	case FormatSVG:
		return graphviz.SVG, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unsupported image format %q", f)
	}
}

// RenderImage lays out a Model with dot and encodes it as PNG or SVG.
func RenderImage(ctx context.Context, model *Model, format ImageFormat) ([]byte, error) {
	gvFormat, err := format.graphviz()
	if err != nil {
		return nil, err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("render: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("render: create graph: %w", err)
	}
	defer g.Close()

	g.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		g.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := g.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("render: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(firstLine(node.Label))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		from, to := gvNodes[edge.From], gvNodes[edge.To]
		if from == nil || to == nil {
			continue
		}
		e, eErr := g.CreateEdgeByName(edge.ID, from, to)
		if eErr != nil {
			return nil, fmt.Errorf("render: create edge %s: %w", edge.ID, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		switch {
		case edge.Taken:
			e.SetColor("#2d6a2d")
			e.SetStyle(cgraph.BoldEdgeStyle)
		case edge.Option:
			e.SetStyle(cgraph.DashedEdgeStyle)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("render: encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes from node type and overlay mark.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case graph.Start, graph.End:
		gvNode.SetShape(cgraph.EllipseShape)
	case graph.Decision:
		gvNode.SetShape(cgraph.DiamondShape)
	case graph.InputOutput:
		gvNode.SetShape(cgraph.ParallelogramShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	switch node.Mark {
	case MarkCurrent:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case MarkVisited:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	}
}
