package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcraft/internal/geometry"
	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/pkg/schema"
)

func sampleDiagram(t *testing.T) *graph.Diagram {
	t.Helper()
	d := graph.New("Checkout")
	s := d.AddNode(graph.Start, geometry.Point{X: 100, Y: 20})
	in := d.AddNode(graph.InputOutput, geometry.Point{X: 90, Y: 120})
	dec := d.AddNode(graph.Decision, geometry.Point{X: 80, Y: 240})
	p := d.AddNode(graph.Process, geometry.Point{X: 400, Y: 260})
	e := d.AddNode(graph.End, geometry.Point{X: 100, Y: 420})
	require.NoError(t, d.SetLabel(dec.ID, "paid?"))

	mustConnect := func(a, b, label string) {
		c, err := d.AddConnector(a, b)
		require.NoError(t, err)
		require.NoError(t, d.SetConnectorLabel(c.ID, label))
	}
	mustConnect(s.ID, in.ID, "")
	mustConnect(in.ID, dec.ID, "")
	mustConnect(dec.ID, p.ID, "no")
	mustConnect(dec.ID, e.ID, "yes")
	mustConnect(p.ID, dec.ID, "")
	return d
}

func TestRoundTrip(t *testing.T) {
	d := sampleDiagram(t)

	doc := ToDocument(d)
	got, warnings, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, d.Title, got.Title)
	assert.Equal(t, d.Nodes(), got.Nodes())
	assert.Equal(t, d.Connectors(), got.Connectors(), "connector ids are stable across a round trip")
	assert.Equal(t, d.Metadata.Created.Truncate(time.Microsecond), got.Metadata.Created.Truncate(time.Microsecond))
	assert.Equal(t, schema.DocumentVersion, got.Metadata.Version)
}

func TestRoundTrip_ThroughJSON(t *testing.T) {
	d := sampleDiagram(t)

	data, err := Marshal(d)
	require.NoError(t, err)

	got, warnings, err := Parse(data)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, d.Nodes(), got.Nodes())
	assert.Equal(t, d.Connectors(), got.Connectors())

	again, err := Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestToDocument_Shape(t *testing.T) {
	d := sampleDiagram(t)
	doc := ToDocument(d)

	require.Len(t, doc.Nodes, 5)
	assert.Equal(t, "start_1", doc.Nodes[0].ID)
	assert.Equal(t, "start", doc.Nodes[0].Type)
	assert.Equal(t, "input_output", doc.Nodes[1].Type)
	assert.Equal(t, "paid?", doc.Nodes[2].Text)
	assert.Equal(t, schema.Size{Width: 160, Height: 100}, doc.Nodes[2].Size)

	require.Len(t, doc.Connections, 5)
	assert.Equal(t, "connector_3", doc.Connections[2].ID)
	assert.Equal(t, "no", doc.Connections[2].Label)
	assert.Equal(t, "horizontal", doc.Connections[2].Type)
	assert.NotEmpty(t, doc.Metadata.Created)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"title", "nodes", "connections", "metadata"} {
		assert.Contains(t, raw, key)
	}
}

func TestToDocument_EmptyDiagramHasArrays(t *testing.T) {
	data, err := Marshal(graph.New(""))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{}, raw["nodes"])
	assert.Equal(t, []any{}, raw["connections"])
	assert.Equal(t, schema.DefaultTitle, raw["title"])
}

func TestFromDocument_MissingArrays(t *testing.T) {
	_, _, err := FromDocument(schema.Document{Connections: []schema.DocumentConnection{}})
	assert.Equal(t, schema.ErrCodeMalformedDocument, schema.CodeOf(err))

	_, _, err = FromDocument(schema.Document{Nodes: []schema.DocumentNode{}})
	assert.Equal(t, schema.ErrCodeMalformedDocument, schema.CodeOf(err))
}

func TestFromDocument_DuplicateNodeID(t *testing.T) {
	doc := schema.Document{
		Nodes: []schema.DocumentNode{
			{ID: "process_1", Type: "process"},
			{ID: "process_1", Type: "process"},
		},
		Connections: []schema.DocumentConnection{},
	}
	d, _, err := FromDocument(doc)
	assert.Nil(t, d)
	assert.Equal(t, schema.ErrCodeMalformedDocument, schema.CodeOf(err))
}

func TestFromDocument_DanglingConnectionSkipped(t *testing.T) {
	doc := schema.Document{
		Nodes: []schema.DocumentNode{
			{ID: "start_1", Type: "start"},
			{ID: "end_1", Type: "end", Position: schema.Position{Y: 200}},
		},
		Connections: []schema.DocumentConnection{
			{ID: "connector_1", Source: "start_1", Target: "ghost"},
			{ID: "connector_2", Source: "start_1", Target: "end_1"},
		},
	}
	d, warnings, err := FromDocument(doc)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Equal(t, schema.IssueDanglingConnection, warnings[0].Code)
	assert.Equal(t, []string{"ghost"}, warnings[0].NodeIDs)
	assert.Equal(t, 1, d.ConnectorCount())
	_, ok := d.Connector("connector_2")
	assert.True(t, ok)
}

func TestFromDocument_ConnectionsResolvedAfterNodes(t *testing.T) {
	// Connection references a node listed later in the array order.
	doc := schema.Document{
		Nodes: []schema.DocumentNode{
			{ID: "start_1", Type: "start"},
		},
		Connections: []schema.DocumentConnection{
			{ID: "connector_1", Source: "start_1", Target: "end_1"},
		},
	}
	doc.Nodes = append(doc.Nodes, schema.DocumentNode{ID: "end_1", Type: "end", Position: schema.Position{Y: 300}})

	d, warnings, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 1, d.ConnectorCount())
}

func TestFromDocument_TypeFallbacks(t *testing.T) {
	doc := schema.Document{
		Nodes: []schema.DocumentNode{
			{ID: "decision_3"},
			{ID: "mystery"},
			{ID: "sub_1", Type: "subroutine", Text: "call"},
		},
		Connections: []schema.DocumentConnection{},
	}
	d, warnings, err := FromDocument(doc)
	require.NoError(t, err)

	n, _ := d.Node("decision_3")
	assert.Equal(t, graph.Decision, n.Type, "missing type falls back to the id prefix")
	assert.Equal(t, graph.Decision.DefaultSize(), n.Size)

	n, _ = d.Node("mystery")
	assert.Equal(t, graph.Process, n.Type)

	n, _ = d.Node("sub_1")
	assert.Equal(t, graph.Process, n.Type)
	assert.Equal(t, "subroutine", n.UnknownType)

	require.Len(t, warnings, 1)
	assert.Equal(t, schema.IssueUnknownNodeType, warnings[0].Code)

	out := ToDocument(d)
	assert.Equal(t, "subroutine", out.Nodes[2].Type, "original type string is preserved")
	assert.Equal(t, "decision", out.Nodes[0].Type)
}

func TestFromDocument_ConnectorIDs(t *testing.T) {
	doc := schema.Document{
		Nodes: []schema.DocumentNode{
			{ID: "start_1", Type: "start"},
			{ID: "process_1", Type: "process", Position: schema.Position{Y: 150}},
			{ID: "end_1", Type: "end", Position: schema.Position{Y: 300}},
		},
		Connections: []schema.DocumentConnection{
			{ID: "connector_4", Source: "start_1", Target: "process_1", Type: "vertical"},
			{Source: "process_1", Target: "end_1", Label: "done"},
			{ID: "connector_4", Source: "start_1", Target: "end_1", Label: "skip"},
		},
	}
	d, warnings, err := FromDocument(doc)
	require.NoError(t, err)

	conns := d.Connectors()
	require.Len(t, conns, 3)
	assert.Equal(t, "connector_4", conns[0].ID)
	assert.Equal(t, "connector_5", conns[1].ID, "missing ids are generated past loaded ones")
	assert.Equal(t, "done", conns[1].Label)
	assert.Equal(t, "connector_6", conns[2].ID)
	assert.Equal(t, "skip", conns[2].Label, "reassigned connectors keep their label")

	require.Len(t, warnings, 1)
	assert.Equal(t, schema.IssueDuplicateConnector, warnings[0].Code)
}

func TestFromDocument_LoadedCountersAdvance(t *testing.T) {
	doc := schema.Document{
		Nodes:       []schema.DocumentNode{{ID: "process_12", Type: "process"}},
		Connections: []schema.DocumentConnection{},
	}
	d, _, err := FromDocument(doc)
	require.NoError(t, err)

	n := d.AddNode(graph.Process, geometry.Point{})
	assert.Equal(t, "process_13", n.ID)
}

func TestFromDocument_Metadata(t *testing.T) {
	doc := schema.Document{
		Title:       "legacy",
		Nodes:       []schema.DocumentNode{},
		Connections: []schema.DocumentConnection{},
		Metadata: &schema.DocumentMetadata{
			Created:  "2023-05-01T10:20:30.123456",
			Modified: "2023-05-02T10:20:30Z",
			Version:  "1.0",
		},
	}
	d, _, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 1, 10, 20, 30, 123456000, time.UTC), d.Metadata.Created)
	assert.Equal(t, time.Date(2023, 5, 2, 10, 20, 30, 0, time.UTC), d.Metadata.Modified)
}

func TestFromDocument_DefaultTitle(t *testing.T) {
	d, _, err := FromDocument(schema.Document{Nodes: []schema.DocumentNode{}, Connections: []schema.DocumentConnection{}})
	require.NoError(t, err)
	assert.Equal(t, schema.DefaultTitle, d.Title)
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{
		`{"title": "x"}`,
		`{"nodes": null, "connections": []}`,
		`not json`,
	} {
		d, _, err := Parse([]byte(raw))
		assert.Nil(t, d)
		assert.Equal(t, schema.ErrCodeMalformedDocument, schema.CodeOf(err), raw)
	}
}
