// Package validation checks flowchart diagrams and raw documents.
package validation

import (
	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/pkg/schema"
)

// Options tunes a validation run.
type Options struct {
	// Deep adds whole-graph analysis: cycles of any length and nodes
	// unreachable from a start node, both reported as warnings.
	Deep bool
}

// Check is one independent rule run against a diagram snapshot.
type Check func(d *graph.Diagram, r *schema.ValidationResult)

// DefaultChecks is the fixed rule battery run on every validation.
var DefaultChecks = []Check{
	checkStart,
	checkEnd,
	checkDisconnected,
	checkDecisionFanOut,
	checkPotentialCycles,
	checkSelfLoops,
}

// Validate runs every check against d and returns the aggregated report.
// It never mutates d.
func Validate(d *graph.Diagram, opts Options) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if d == nil {
		result.AddError("/", schema.ErrCodeValidation, "diagram is nil")
		return result
	}
	for _, check := range DefaultChecks {
		check(d, result)
	}
	if opts.Deep {
		result.Merge(analyzeGraph(d))
	}
	return result
}
