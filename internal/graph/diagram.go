package graph

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/flowcraft/internal/geometry"
	"github.com/rendis/flowcraft/pkg/schema"
)

const connectorPrefix = "connector_"

// Diagram owns a set of nodes and the connectors between them. Every
// connector endpoint references an existing node after every call returns.
// A Diagram is not safe for concurrent use.
type Diagram struct {
	Title    string
	Metadata Metadata

	canvas Canvas
	now    func() time.Time

	nodes     []*Node
	nodeIndex map[string]*Node
	conns     []*Connector
	connIndex map[string]*Connector

	counters    map[NodeType]int
	connCounter int
	locked      bool
}

// Option configures a Diagram.
type Option func(*Diagram)

// WithCanvas sets the placement bounds.
func WithCanvas(c Canvas) Option {
	return func(d *Diagram) { d.canvas = c }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Diagram) { d.now = now }
}

// New creates an empty diagram. An empty title becomes the default title.
func New(title string, opts ...Option) *Diagram {
	if title == "" {
		title = schema.DefaultTitle
	}
	d := &Diagram{
		Title:     title,
		canvas:    DefaultCanvas,
		now:       func() time.Time { return time.Now().UTC() },
		nodeIndex: make(map[string]*Node),
		connIndex: make(map[string]*Connector),
		counters:  make(map[NodeType]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	ts := d.now()
	d.Metadata = Metadata{Created: ts, Modified: ts, Version: schema.DocumentVersion}
	return d
}

// Canvas returns the placement bounds.
func (d *Diagram) Canvas() Canvas { return d.canvas }

// Lock rejects label edits until Unlock is called. Simulation holds the lock
// while it is active.
func (d *Diagram) Lock() { d.locked = true }

// Unlock re-enables label edits.
func (d *Diagram) Unlock() { d.locked = false }

// Locked reports whether label edits are rejected.
func (d *Diagram) Locked() bool { return d.locked }

func (d *Diagram) touch() { d.Metadata.Modified = d.now() }

// --- Nodes ---

// AddNode creates a node of type t at pos with a generated id, the type's
// default label and size.
func (d *Diagram) AddNode(t NodeType, pos geometry.Point) Node {
	n := &Node{
		ID:       d.nextNodeID(t),
		Type:     t,
		Label:    t.DefaultLabel(),
		Position: pos,
		Size:     t.DefaultSize(),
	}
	n.Position = d.clamp(n.Position, n.Size)
	d.appendNode(n)
	return *n
}

// InsertNode adds a node with a caller-chosen id, as when loading a document.
// Zero sizes are replaced by the type default and the position is clamped.
func (d *Diagram) InsertNode(n Node) error {
	if n.ID == "" {
		return schema.NewError(schema.ErrCodeMalformedDocument, "node id is required")
	}
	if _, exists := d.nodeIndex[n.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateID, "node %q already exists", n.ID).WithNode(n.ID)
	}
	if n.Size.Width <= 0 || n.Size.Height <= 0 {
		n.Size = n.Type.DefaultSize()
	}
	n.Position = d.clamp(n.Position, n.Size)
	d.observeNodeID(n.ID)
	d.appendNode(&n)
	return nil
}

func (d *Diagram) appendNode(n *Node) {
	d.nodes = append(d.nodes, n)
	d.nodeIndex[n.ID] = n
	d.touch()
}

// RemoveNode deletes a node together with every connector touching it and
// returns the removed connectors.
func (d *Diagram) RemoveNode(id string) ([]Connector, error) {
	if _, ok := d.nodeIndex[id]; !ok {
		return nil, notFound("node", id)
	}

	var removed []Connector
	kept := d.conns[:0]
	for _, c := range d.conns {
		if c.SourceID == id || c.TargetID == id {
			removed = append(removed, *c)
			delete(d.connIndex, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	clear(d.conns[len(kept):])
	d.conns = kept

	for i, n := range d.nodes {
		if n.ID == id {
			d.nodes = append(d.nodes[:i], d.nodes[i+1:]...)
			break
		}
	}
	delete(d.nodeIndex, id)
	d.touch()
	return removed, nil
}

// Node returns a copy of the node with the given id.
func (d *Diagram) Node(id string) (Node, bool) {
	n, ok := d.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of all nodes in insertion order.
func (d *Diagram) Nodes() []Node {
	out := make([]Node, len(d.nodes))
	for i, n := range d.nodes {
		out[i] = *n
	}
	return out
}

// NodesByType returns the nodes of type t in insertion order.
func (d *Diagram) NodesByType(t NodeType) []Node {
	var out []Node
	for _, n := range d.nodes {
		if n.Type == t {
			out = append(out, *n)
		}
	}
	return out
}

// NodeCount returns the number of nodes.
func (d *Diagram) NodeCount() int { return len(d.nodes) }

// MoveNode repositions a node, clamped to the canvas.
func (d *Diagram) MoveNode(id string, pos geometry.Point) (Node, error) {
	n, ok := d.nodeIndex[id]
	if !ok {
		return Node{}, notFound("node", id)
	}
	n.Position = d.clamp(pos, n.Size)
	d.touch()
	return *n, nil
}

// ResizeNode changes a node's footprint. Non-positive dimensions are rejected.
func (d *Diagram) ResizeNode(id string, size Size) (Node, error) {
	n, ok := d.nodeIndex[id]
	if !ok {
		return Node{}, notFound("node", id)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return Node{}, schema.NewErrorf(schema.ErrCodeValidation,
			"size %.0fx%.0f must be positive", size.Width, size.Height).WithNode(id)
	}
	n.Size = size
	n.Position = d.clamp(n.Position, n.Size)
	d.touch()
	return *n, nil
}

// SetLabel changes a node's text. It fails with LOCKED while the diagram is locked.
func (d *Diagram) SetLabel(id, label string) error {
	if d.locked {
		return schema.NewError(schema.ErrCodeLocked, "labels cannot change while a simulation is active").WithNode(id)
	}
	n, ok := d.nodeIndex[id]
	if !ok {
		return notFound("node", id)
	}
	n.Label = label
	d.touch()
	return nil
}

// --- Connectors ---

// AddConnector links source to target with a generated id. The kind is fixed
// here from the current node geometry.
func (d *Diagram) AddConnector(sourceID, targetID string) (Connector, error) {
	c := Connector{SourceID: sourceID, TargetID: targetID}
	if err := d.checkEndpoints(c); err != nil {
		return Connector{}, err
	}
	d.connCounter++
	c.ID = connectorPrefix + strconv.Itoa(d.connCounter)
	for d.connIndex[c.ID] != nil {
		d.connCounter++
		c.ID = connectorPrefix + strconv.Itoa(d.connCounter)
	}
	d.appendConnector(&c)
	return c, nil
}

// InsertConnector adds a connector with a caller-chosen id. An empty or
// unrecognized kind is derived from the endpoint geometry.
func (d *Diagram) InsertConnector(c Connector) error {
	if c.ID == "" {
		return schema.NewError(schema.ErrCodeMalformedDocument, "connector id is required")
	}
	if _, exists := d.connIndex[c.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateID, "connector %q already exists", c.ID)
	}
	if err := d.checkEndpoints(c); err != nil {
		return err
	}
	if n, ok := counterSuffix(c.ID, connectorPrefix); ok && n > d.connCounter {
		d.connCounter = n
	}
	d.appendConnector(&c)
	return nil
}

func (d *Diagram) checkEndpoints(c Connector) error {
	for _, id := range []string{c.SourceID, c.TargetID} {
		if _, ok := d.nodeIndex[id]; !ok {
			return schema.NewErrorf(schema.ErrCodeUnknownEndpoint, "node %q does not exist", id).
				WithNode(id).
				WithDetails(map[string]any{"source": c.SourceID, "target": c.TargetID})
		}
	}
	return nil
}

func (d *Diagram) appendConnector(c *Connector) {
	if c.Kind != geometry.Horizontal && c.Kind != geometry.Vertical {
		c.Kind = geometry.Classify(d.nodeIndex[c.SourceID].Box(), d.nodeIndex[c.TargetID].Box())
	}
	d.conns = append(d.conns, c)
	d.connIndex[c.ID] = c
	d.touch()
}

// RemoveConnector deletes a single connector.
func (d *Diagram) RemoveConnector(id string) error {
	if _, ok := d.connIndex[id]; !ok {
		return notFound("connector", id)
	}
	for i, c := range d.conns {
		if c.ID == id {
			d.conns = append(d.conns[:i], d.conns[i+1:]...)
			break
		}
	}
	delete(d.connIndex, id)
	d.touch()
	return nil
}

// SetConnectorLabel changes a connector's label. It fails with LOCKED while
// the diagram is locked.
func (d *Diagram) SetConnectorLabel(id, label string) error {
	if d.locked {
		return schema.NewErrorf(schema.ErrCodeLocked, "connector %q cannot be relabeled while a simulation is active", id)
	}
	c, ok := d.connIndex[id]
	if !ok {
		return notFound("connector", id)
	}
	c.Label = label
	d.touch()
	return nil
}

// Connector returns a copy of the connector with the given id.
func (d *Diagram) Connector(id string) (Connector, bool) {
	c, ok := d.connIndex[id]
	if !ok {
		return Connector{}, false
	}
	return *c, true
}

// Connectors returns copies of all connectors in creation order.
func (d *Diagram) Connectors() []Connector {
	out := make([]Connector, len(d.conns))
	for i, c := range d.conns {
		out[i] = *c
	}
	return out
}

// ConnectorCount returns the number of connectors.
func (d *Diagram) ConnectorCount() int { return len(d.conns) }

// ConnectorsFrom returns connectors leaving nodeID in creation order.
func (d *Diagram) ConnectorsFrom(nodeID string) []Connector {
	var out []Connector
	for _, c := range d.conns {
		if c.SourceID == nodeID {
			out = append(out, *c)
		}
	}
	return out
}

// ConnectorsTo returns connectors entering nodeID in creation order.
func (d *Diagram) ConnectorsTo(nodeID string) []Connector {
	var out []Connector
	for _, c := range d.conns {
		if c.TargetID == nodeID {
			out = append(out, *c)
		}
	}
	return out
}

// Outgoing returns the successors of nodeID in creation order. The simulator
// follows the first entry on non-decision nodes.
func (d *Diagram) Outgoing(nodeID string) []Connector {
	return d.ConnectorsFrom(nodeID)
}

// --- Routing ---

// Route computes the drawn path of a connector from current node geometry.
func (d *Diagram) Route(connectorID string) (geometry.Path, error) {
	c, ok := d.connIndex[connectorID]
	if !ok {
		return geometry.Path{}, notFound("connector", connectorID)
	}
	src, tgt := d.nodeIndex[c.SourceID], d.nodeIndex[c.TargetID]
	return geometry.Route(src.Endpoint(), tgt.Endpoint()), nil
}

// RoutesFor recomputes the paths of every connector incident to nodeID.
func (d *Diagram) RoutesFor(nodeID string) map[string]geometry.Path {
	out := make(map[string]geometry.Path)
	for _, c := range d.conns {
		if c.SourceID != nodeID && c.TargetID != nodeID {
			continue
		}
		out[c.ID] = geometry.Route(d.nodeIndex[c.SourceID].Endpoint(), d.nodeIndex[c.TargetID].Endpoint())
	}
	return out
}

// --- ids and bounds ---

func (d *Diagram) nextNodeID(t NodeType) string {
	for {
		d.counters[t]++
		id := t.Prefix() + strconv.Itoa(d.counters[t])
		if _, taken := d.nodeIndex[id]; !taken {
			return id
		}
	}
}

// observeNodeID advances the matching type counter past a loaded id so it is
// never generated again.
func (d *Diagram) observeNodeID(id string) {
	for _, t := range NodeTypes {
		if n, ok := counterSuffix(id, t.Prefix()); ok && n > d.counters[t] {
			d.counters[t] = n
		}
	}
}

func counterSuffix(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (d *Diagram) clamp(p geometry.Point, s Size) geometry.Point {
	p.X = clampAxis(p.X, s.Width, d.canvas.Width)
	p.Y = clampAxis(p.Y, s.Height, d.canvas.Height)
	return p
}

func clampAxis(v, extent, bound float64) float64 {
	if bound > 0 {
		v = math.Min(v, bound-extent)
	}
	return math.Max(v, 0)
}

func notFound(kind, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", kind, id)
}
