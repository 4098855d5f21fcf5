package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcraft/pkg/schema"
)

func TestAnalyzeGraph_LinearNoFindings(t *testing.T) {
	d, _ := build(t, "S:start", "P:process", "E:end", "S>P", "P>E")
	result := analyzeGraph(d)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestAnalyzeGraph_LongCycle(t *testing.T) {
	d, ids := build(t, "S:start", "A:process", "B:process", "C:process", "E:end",
		"S>A", "A>B", "B>C", "C>A", "C>E")
	result := analyzeGraph(d)

	assert.True(t, result.Valid(), "cycles are warnings")
	cycles := result.WarningsWithCode(schema.IssueCycleDetected)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{ids["A"], ids["B"], ids["C"]}, cycles[0].NodeIDs)
}

func TestAnalyzeGraph_DisjointCyclesReportedSeparately(t *testing.T) {
	d, ids := build(t, "S:start", "A:process", "B:process", "X:process", "Y:process", "C:process", "E:end",
		"S>A", "A>B", "B>A", "S>X", "X>Y", "Y>X", "B>C", "Y>C", "C>E")
	result := analyzeGraph(d)

	cycles := result.WarningsWithCode(schema.IssueCycleDetected)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{ids["A"], ids["B"]}, cycles[0].NodeIDs)
	assert.Equal(t, []string{ids["X"], ids["Y"]}, cycles[1].NodeIDs)
	assert.Empty(t, result.WarningsWithCode(schema.IssueUnreachableNode))
}

func TestAnalyzeGraph_SelfLoopIgnored(t *testing.T) {
	d, _ := build(t, "S:start", "P:process", "E:end", "S>P", "P>P", "P>E")
	result := analyzeGraph(d)
	assert.Empty(t, result.WarningsWithCode(schema.IssueCycleDetected))
}

func TestAnalyzeGraph_Unreachable(t *testing.T) {
	d, ids := build(t, "S:start", "E:end", "X:process", "S>E", "X>E")
	result := analyzeGraph(d)

	unreachable := result.WarningsWithCode(schema.IssueUnreachableNode)
	require.Len(t, unreachable, 1)
	assert.Equal(t, []string{ids["X"]}, unreachable[0].NodeIDs)
}

func TestAnalyzeGraph_NoStartSkipsReachability(t *testing.T) {
	d, _ := build(t, "P:process", "E:end", "P>E")
	result := analyzeGraph(d)
	assert.Empty(t, result.WarningsWithCode(schema.IssueUnreachableNode))
}

func TestValidate_DeepOption(t *testing.T) {
	d, _ := build(t, "S:start", "A:process", "B:process", "C:process", "E:end",
		"S>A", "A>B", "B>C", "C>A", "C>E")

	shallow := Validate(d, Options{})
	assert.Empty(t, shallow.WarningsWithCode(schema.IssueCycleDetected),
		"the default battery only sees direct two-node cycles")

	deep := Validate(d, Options{Deep: true})
	assert.Len(t, deep.WarningsWithCode(schema.IssueCycleDetected), 1)
	assert.Equal(t, shallow.Valid(), deep.Valid())
}
