package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/pkg/schema"
)

// analyzeGraph performs whole-graph analysis: cycle detection (strongly
// connected components) and reachability (BFS from start nodes). Findings
// are warnings because loops are legitimate in flowcharts.
func analyzeGraph(d *graph.Diagram) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	nodes := d.Nodes()

	// successors[id] = distinct targets of id, self-loops excluded.
	successors := make(map[string][]string, len(nodes))
	seen := make(map[[2]string]bool)
	for _, c := range d.Connectors() {
		key := [2]string{c.SourceID, c.TargetID}
		if c.SourceID == c.TargetID || seen[key] {
			continue
		}
		seen[key] = true
		successors[c.SourceID] = append(successors[c.SourceID], c.TargetID)
	}

	for _, members := range cycleComponents(nodes, successors) {
		result.Add(schema.ValidationIssue{
			Path:     "connections",
			Code:     schema.IssueCycleDetected,
			Message:  fmt.Sprintf("nodes %s form a cycle", strings.Join(members, ", ")),
			Severity: schema.SeverityWarning,
			NodeIDs:  members,
		})
	}

	starts := d.NodesByType(graph.Start)
	if len(starts) == 0 {
		return result // reachability is meaningless without an entry point
	}

	reachable := make(map[string]bool, len(nodes))
	bfs := make([]string, 0, len(nodes))
	for _, s := range starts {
		reachable[s.ID] = true
		bfs = append(bfs, s.ID)
	}
	for len(bfs) > 0 {
		id := bfs[0]
		bfs = bfs[1:]
		for _, next := range successors[id] {
			if !reachable[next] {
				reachable[next] = true
				bfs = append(bfs, next)
			}
		}
	}

	for i, n := range nodes {
		if reachable[n.ID] {
			continue
		}
		result.Add(schema.ValidationIssue{
			Path:     fmt.Sprintf("nodes[%d]", i),
			Code:     schema.IssueUnreachableNode,
			Message:  fmt.Sprintf("node %q is unreachable from any start node", n.ID),
			Severity: schema.SeverityWarning,
			NodeIDs:  []string{n.ID},
		})
	}
	return result
}

// cycleComponents returns every strongly connected component with more than
// one node (Tarjan). Components are ordered by their first member in node
// order and members keep node order.
func cycleComponents(nodes []graph.Node, successors map[string][]string) [][]string {
	order := make(map[string]int, len(nodes))
	for i, n := range nodes {
		order[n.ID] = i
	}

	index := make(map[string]int, len(nodes))
	low := make(map[string]int, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	var stack []string
	var components [][]string
	next := 0

	var visit func(id string)
	visit = func(id string) {
		index[id] = next
		low[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true

		for _, succ := range successors[id] {
			if _, done := index[succ]; !done {
				visit(succ)
				low[id] = min(low[id], low[succ])
			} else if onStack[succ] {
				low[id] = min(low[id], index[succ])
			}
		}

		if low[id] != index[id] {
			return
		}
		var members []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			members = append(members, top)
			if top == id {
				break
			}
		}
		if len(members) > 1 {
			sort.Slice(members, func(i, j int) bool { return order[members[i]] < order[members[j]] })
			components = append(components, members)
		}
	}

	for _, n := range nodes {
		if _, done := index[n.ID]; !done {
			visit(n.ID)
		}
	}

	sort.Slice(components, func(i, j int) bool {
		return order[components[i][0]] < order[components[j][0]]
	})
	return components
}
