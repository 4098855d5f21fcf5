package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcraft/internal/geometry"
	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/simulation"
	"github.com/rendis/flowcraft/pkg/schema"
)

// branching builds start_1 -> decision_1 -> {process_1 (yes), end_1 (no)},
// process_1 -> end_1, plus an unreachable input_1.
func branching(t *testing.T) *graph.Diagram {
	t.Helper()
	d := graph.New("Approval")
	s := d.AddNode(graph.Start, geometry.Point{X: 100, Y: 0})
	dec := d.AddNode(graph.Decision, geometry.Point{X: 100, Y: 150})
	p := d.AddNode(graph.Process, geometry.Point{X: 0, Y: 300})
	e := d.AddNode(graph.End, geometry.Point{X: 200, Y: 450})
	d.AddNode(graph.InputOutput, geometry.Point{X: 400, Y: 0})

	connect := func(from, to, label string) {
		c, err := d.AddConnector(from, to)
		require.NoError(t, err)
		if label != "" {
			require.NoError(t, d.SetConnectorLabel(c.ID, label))
		}
	}
	connect(s.ID, dec.ID, "")
	connect(dec.ID, p.ID, "yes")
	connect(dec.ID, e.ID, "no")
	connect(p.ID, e.ID, "")
	return d
}

func TestBuild_Levels(t *testing.T) {
	m := Build(branching(t), nil)

	assert.Equal(t, "Approval", m.Title)
	assert.Len(t, m.Nodes, 5)
	assert.Len(t, m.Edges, 4)
	assert.Equal(t, [][]string{
		{"start_1"},
		{"decision_1"},
		{"process_1", "end_1"},
		{"input_1"},
	}, m.Levels)
}

func TestBuild_DefaultTitle(t *testing.T) {
	m := Build(graph.New(""), nil)
	assert.Equal(t, schema.DefaultTitle, m.Title)
	assert.Empty(t, m.Levels)
}

func TestBuild_OverlayFromSimulation(t *testing.T) {
	d := branching(t)
	mc := simulation.New(d)
	require.NoError(t, mc.Start())
	require.NoError(t, mc.Step())
	require.NoError(t, mc.Step())
	require.Equal(t, schema.SimulationPaused, mc.State())

	m := Build(d, OverlayFromSnapshot(mc.Snapshot()))

	assert.Equal(t, MarkVisited, m.node("start_1").Mark)
	assert.Equal(t, MarkCurrent, m.node("decision_1").Mark)
	assert.Equal(t, MarkNone, m.node("end_1").Mark)

	assert.True(t, m.Edges[0].Taken)
	assert.False(t, m.Edges[0].Option)
	assert.True(t, m.Edges[1].Option)
	assert.True(t, m.Edges[2].Option)
	assert.False(t, m.Edges[3].Option)
}

func TestRenderMermaid(t *testing.T) {
	out := RenderMermaid(Build(branching(t), nil))

	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"))
	assert.Contains(t, out, "%% Approval")
	assert.Contains(t, out, `start_1(["Start"])`)
	assert.Contains(t, out, `decision_1{"Decision"}`)
	assert.Contains(t, out, `process_1["Process"]`)
	assert.Contains(t, out, `input_1[/"Input/Output"/]`)
	assert.Contains(t, out, "decision_1 -->|yes| process_1")
	assert.Contains(t, out, "start_1 --> decision_1")
	assert.NotContains(t, out, "classDef", "no overlay means no classes")
}

func TestRenderMermaid_Overlay(t *testing.T) {
	m := Build(branching(t), &Overlay{
		Current: "decision_1",
		Path:    []string{"start_1", "decision_1"},
		Options: []string{"connector_2", "connector_3"},
	})
	out := RenderMermaid(m)

	assert.Contains(t, out, "class decision_1 current")
	assert.Contains(t, out, "class start_1 visited")
	assert.Contains(t, out, "decision_1 -.->|yes| process_1")
	assert.Contains(t, out, "linkStyle 0 ")
}

func TestMermaidEscapeLabel(t *testing.T) {
	assert.Equal(t, "say #quot;hi#quot; #124; bye", mermaidEscapeLabel(`say "hi" | bye`))
	assert.Equal(t, "a_b_c", mermaidSafeID("a.b-c"))
}

func TestRenderText(t *testing.T) {
	m := Build(branching(t), &Overlay{Current: "process_1", Path: []string{"start_1", "decision_1", "process_1"}})
	out := RenderText(m)

	assert.Contains(t, out, "=== Approval ===")
	assert.Contains(t, out, "(Start)")
	assert.Contains(t, out, "<Decision>")
	assert.Contains(t, out, "[*]")
	assert.Contains(t, out, "[v]")
	assert.Contains(t, out, "decision_1 ═⇒ process_1 (yes)")
	assert.Contains(t, out, "decision_1 ─→ end_1 (no)")
}

func TestRender_Dispatch(t *testing.T) {
	m := Build(branching(t), nil)
	ctx := context.Background()

	out, err := Render(ctx, m, "")
	require.NoError(t, err)
	assert.Equal(t, "mermaid", out.Format)
	assert.Equal(t, "text/plain; charset=utf-8", out.ContentType)

	out, err = Render(ctx, m, "TEXT")
	require.NoError(t, err)
	assert.Equal(t, "text", out.Format)

	_, err = Render(ctx, m, "gif")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRenderImage(t *testing.T) {
	m := Build(branching(t), &Overlay{Current: "decision_1", Path: []string{"start_1", "decision_1"}})

	png, err := RenderImage(context.Background(), m, FormatPNG)
	require.NoError(t, err)
	require.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	svg, err := RenderImage(context.Background(), m, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	_, err = RenderImage(context.Background(), m, "bmp")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
