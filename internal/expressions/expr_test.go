package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcraft/pkg/schema"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_Guards(t *testing.T) {
	e := NewExprEngine()
	vars := map[string]any{"amount": 150, "vip": false, "country": "CL"}

	tests := []struct {
		expression string
		want       any
	}{
		{"amount > 100", true},
		{"amount > 100 && vip", false},
		{`country in ["CL", "AR"]`, true},
		{"amount * 2", 300},
		{`missing ?? "fallback"`, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expression, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExpr_NilData(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), "1 + 1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestExpr_EmptyExpression(t *testing.T) {
	_, err := NewExprEngine().Evaluate(context.Background(), "", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), "amount >", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
	assert.Zero(t, e.cache.len(), "failed compilations are not cached")
}

func TestExpr_ProgramCaching(t *testing.T) {
	e := NewExprEngine()
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), "x + 1", map[string]any{"x": i})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.cache.len())
}

func TestExpr_Concurrent(t *testing.T) {
	e := NewExprEngine()
	var wg sync.WaitGroup
	results := make([]any, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), "n * 2", map[string]any{"n": i})
			if err == nil {
				results[i] = out
			}
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		assert.Equal(t, i*2, r)
	}
}

func TestEvaluateBool(t *testing.T) {
	e := NewExprEngine()

	ok, err := EvaluateBool(context.Background(), e, "n >= 3", map[string]any{"n": 3})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateBool(context.Background(), e, "yes", nil)
	require.NoError(t, err)
	assert.False(t, ok, "undefined identifiers are false")

	_, err = EvaluateBool(context.Background(), e, "n + 1", map[string]any{"n": 3})
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
}

func TestNewEngine(t *testing.T) {
	for _, name := range []string{"expr", "cel", "jq"} {
		e, err := NewEngine(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name())
	}

	e, err := NewEngine("")
	require.NoError(t, err)
	assert.Equal(t, "expr", e.Name())

	_, err = NewEngine("lua")
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}
