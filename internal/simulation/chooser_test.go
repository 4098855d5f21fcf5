package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/pkg/schema"
)

func decisionOptions(labels ...string) (graph.Node, []graph.Connector) {
	node := graph.Node{ID: "decision_1", Type: graph.Decision, Label: "route"}
	opts := make([]graph.Connector, len(labels))
	for i, l := range labels {
		opts[i] = graph.Connector{ID: "connector_" + string(rune('a'+i)), SourceID: node.ID, TargetID: "t", Label: l}
	}
	return node, opts
}

func TestExpressionChooser_FirstTrueGuardWins(t *testing.T) {
	c, err := NewExpressionChooser("expr", map[string]any{"amount": 150})
	require.NoError(t, err)

	node, opts := decisionOptions("amount < 100", "amount >= 100", "amount > 0")
	id, ok, err := c.Choose(context.Background(), node, opts)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, opts[1].ID, id)
}

func TestExpressionChooser_ElseFallback(t *testing.T) {
	c, err := NewExpressionChooser("expr", map[string]any{"amount": 10})
	require.NoError(t, err)

	node, opts := decisionOptions("else", "amount > 100")
	id, ok, err := c.Choose(context.Background(), node, opts)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, opts[0].ID, id)
}

func TestExpressionChooser_NoMatchWaits(t *testing.T) {
	c, err := NewExpressionChooser("expr", nil)
	require.NoError(t, err)

	node, opts := decisionOptions("yes", "no", "")
	_, ok, err := c.Choose(context.Background(), node, opts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpressionChooser_CEL(t *testing.T) {
	c, err := NewExpressionChooser("cel", map[string]any{"tier": "gold"})
	require.NoError(t, err)

	node, opts := decisionOptions(`vars.tier == "silver"`, `vars.tier == "gold" && node.type == "decision"`)
	id, ok, err := c.Choose(context.Background(), node, opts)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, opts[1].ID, id)
}

func TestExpressionChooser_GuardError(t *testing.T) {
	c, err := NewExpressionChooser("cel", nil)
	require.NoError(t, err)

	node, opts := decisionOptions("undeclared > 1")
	_, _, err = c.Choose(context.Background(), node, opts)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestNewExpressionChooser_UnknownEngine(t *testing.T) {
	_, err := NewExpressionChooser("lua", nil)
	assert.Error(t, err)
}
