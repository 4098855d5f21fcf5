// Package graph holds the authoritative in-memory flowchart model.
package graph

import (
	"strings"
	"time"

	"github.com/rendis/flowcraft/internal/geometry"
	"github.com/rendis/flowcraft/pkg/schema"
)

// NodeType is the semantic kind of a node.
type NodeType int

const (
	Process NodeType = iota
	Start
	End
	Decision
	InputOutput
)

var nodeTypeNames = map[NodeType]string{
	Start:       schema.NodeTypeStart,
	End:         schema.NodeTypeEnd,
	Process:     schema.NodeTypeProcess,
	Decision:    schema.NodeTypeDecision,
	InputOutput: schema.NodeTypeInputOutput,
}

// NodeTypes lists every node type in a stable order.
var NodeTypes = []NodeType{Start, End, Process, Decision, InputOutput}

// String returns the document form of the type.
func (t NodeType) String() string {
	if s, ok := nodeTypeNames[t]; ok {
		return s
	}
	return schema.NodeTypeProcess
}

// ParseNodeType maps a document type string to a NodeType.
func ParseNodeType(s string) (NodeType, bool) {
	for t, name := range nodeTypeNames {
		if name == s {
			return t, true
		}
	}
	return Process, false
}

// Prefix is the human-readable id prefix for generated node ids.
func (t NodeType) Prefix() string {
	switch t {
	case Start:
		return "start_"
	case End:
		return "end_"
	case Decision:
		return "decision_"
	case InputOutput:
		return "input_"
	default:
		return "process_"
	}
}

// Shape returns the silhouette used for connector routing.
func (t NodeType) Shape() geometry.Shape {
	switch t {
	case Start, End:
		return geometry.ShapeRoundedRect
	case Decision:
		return geometry.ShapeDiamond
	case InputOutput:
		return geometry.ShapeParallelogram
	default:
		return geometry.ShapeRect
	}
}

// DefaultSize is the footprint of a freshly created node.
func (t NodeType) DefaultSize() Size {
	switch t {
	case Start, End:
		return Size{Width: 120, Height: 50}
	case Decision:
		return Size{Width: 160, Height: 100}
	case InputOutput:
		return Size{Width: 150, Height: 60}
	default:
		return Size{Width: 140, Height: 60}
	}
}

// DefaultLabel is the text a freshly created node carries.
func (t NodeType) DefaultLabel() string {
	switch t {
	case Start:
		return "Start"
	case End:
		return "End"
	case Decision:
		return "Decision"
	case InputOutput:
		return "Input/Output"
	default:
		return "Process"
	}
}

// TypeFromID infers a type from a conventional id prefix. It is only used
// when a document omits the type field.
func TypeFromID(id string) (NodeType, bool) {
	for _, t := range NodeTypes {
		if strings.HasPrefix(id, t.Prefix()) {
			return t, true
		}
	}
	return Process, false
}

// Size is a node footprint.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is one flowchart step.
type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"-"`
	Label    string         `json:"text"`
	Position geometry.Point `json:"position"`
	Size     Size           `json:"size"`

	// UnknownType keeps an unrecognized document type string so it can be
	// written back unchanged.
	UnknownType string `json:"-"`
}

// Box returns the node's bounding box.
func (n Node) Box() geometry.Box {
	return geometry.Box{X: n.Position.X, Y: n.Position.Y, Width: n.Size.Width, Height: n.Size.Height}
}

// Endpoint returns the node as a routing endpoint.
func (n Node) Endpoint() geometry.Endpoint {
	return geometry.Endpoint{Shape: n.Type.Shape(), Box: n.Box()}
}

// Connector is a directed link between two nodes.
type Connector struct {
	ID       string               `json:"id"`
	SourceID string               `json:"source"`
	TargetID string               `json:"target"`
	Kind     geometry.Orientation `json:"type"`
	Label    string               `json:"label"`
}

// Metadata tracks diagram timestamps and the format version.
type Metadata struct {
	Created  time.Time
	Modified time.Time
	Version  string
}

// Canvas bounds node placement. A zero dimension disables clamping on that axis.
type Canvas struct {
	Width  float64
	Height float64
}

// DefaultCanvas matches the editor's drawing surface.
var DefaultCanvas = Canvas{Width: 2000, Height: 1500}
