package simulation

import (
	"context"
	"strings"

	"github.com/rendis/flowcraft/internal/expressions"
	"github.com/rendis/flowcraft/internal/graph"
)

// Chooser picks a branch for a paused decision. ok is false when no branch
// applies and the decision should wait for an external choice.
type Chooser interface {
	Choose(ctx context.Context, node graph.Node, options []graph.Connector) (connectorID string, ok bool, err error)
}

// fallbackLabels mark the branch taken when no guard holds.
var fallbackLabels = map[string]bool{"else": true, "default": true, "otherwise": true}

// ExpressionChooser treats each branch label as a boolean guard evaluated
// against session variables. The first true guard wins; an else/default
// branch is the fallback. Blank labels never match.
type ExpressionChooser struct {
	Engine expressions.Engine
	Vars   map[string]any
}

// NewExpressionChooser builds a chooser for the named engine ("expr" or "cel").
func NewExpressionChooser(engine string, vars map[string]any) (*ExpressionChooser, error) {
	e, err := expressions.NewEngine(engine)
	if err != nil {
		return nil, err
	}
	return &ExpressionChooser{Engine: e, Vars: vars}, nil
}

// Choose evaluates guards in creation order.
func (c *ExpressionChooser) Choose(ctx context.Context, node graph.Node, options []graph.Connector) (string, bool, error) {
	fallback := ""
	for _, opt := range options {
		label := strings.TrimSpace(opt.Label)
		if label == "" {
			continue
		}
		if fallbackLabels[strings.ToLower(label)] {
			if fallback == "" {
				fallback = opt.ID
			}
			continue
		}
		ok, err := expressions.EvaluateBool(ctx, c.Engine, label, c.data(node, opt))
		if err != nil {
			return "", false, err
		}
		if ok {
			return opt.ID, true, nil
		}
	}
	if fallback != "" {
		return fallback, true, nil
	}
	return "", false, nil
}

// data shapes the evaluation environment. CEL reads vars, node and connector
// as maps; expr additionally sees every variable at top level.
func (c *ExpressionChooser) data(node graph.Node, opt graph.Connector) map[string]any {
	vars := c.Vars
	if vars == nil {
		vars = map[string]any{}
	}
	data := make(map[string]any, len(vars)+3)
	if c.Engine.Name() != "cel" {
		for k, v := range vars {
			data[k] = v
		}
	}
	data["vars"] = vars
	data["node"] = map[string]any{"id": node.ID, "text": node.Label, "type": node.Type.String()}
	data["connector"] = map[string]any{"id": opt.ID, "label": opt.Label, "target": opt.TargetID}
	return data
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(ctx context.Context, node graph.Node, options []graph.Connector) (string, bool, error)

// Choose calls f.
func (f ChooserFunc) Choose(ctx context.Context, node graph.Node, options []graph.Connector) (string, bool, error) {
	return f(ctx, node, options)
}
