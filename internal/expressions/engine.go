// Package expressions evaluates decision guards and document queries.
package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/flowcraft/pkg/schema"
)

// Engine evaluates an expression against a data map.
// Three implementations: Expr and CEL (decision guards), GoJQ (document queries).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// NewEngine returns the engine registered under name: "expr", "cel" or "jq".
func NewEngine(name string) (Engine, error) {
	switch name {
	case "", "expr":
		return NewExprEngine(), nil
	case "cel":
		return NewCELEngine()
	case "jq":
		return NewGoJQEngine(), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name)
	}
}

// EvaluateBool evaluates expression and requires a boolean result. A nil
// result, as from an undefined expr variable, counts as false.
func EvaluateBool(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	if out == nil {
		return false, nil
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"%s expression %q returned %s, want bool", e.Name(), expression, typeName(out)).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
