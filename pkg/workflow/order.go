// Package workflow orchestrates graph execution, trigger dispatch and deferred jobs.
package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/flowforge/pkg/models"
)

// CyclicGraphError reports nodes that could not be ordered because they sit on or behind a cycle.
type CyclicGraphError struct {
	WorkflowSlug string
	NodeIDs      []string
}

func (e *CyclicGraphError) Error() string {
	if e.WorkflowSlug != "" {
		return fmt.Sprintf("workflow %s contains a cycle involving nodes: %s", e.WorkflowSlug, strings.Join(e.NodeIDs, ", "))
	}

	return "graph contains a cycle involving nodes: " + strings.Join(e.NodeIDs, ", ")
}

// Order returns nodes in a topological order using Kahn's algorithm. Nodes that
// become ready at the same time keep their declaration order. Edges pointing
// at unknown nodes are ignored.
//
// When a cycle exists the nodes that could be ordered are returned together
// with a *CyclicGraphError naming the rest.
func Order(nodes []*models.Node, edges []*models.Edge) ([]*models.Node, error) {
	index := make(map[string]int, len(nodes))
	for i, node := range nodes {
		index[node.ID] = i
	}

	inDegree := make([]int, len(nodes))
	successors := make([][]int, len(nodes))

	for _, edge := range edges {
		source, okSource := index[edge.Source]
		target, okTarget := index[edge.Target]

		if !okSource || !okTarget {
			continue
		}

		successors[source] = append(successors[source], target)
		inDegree[target]++
	}

	for _, next := range successors {
		sort.Ints(next)
	}

	queue := make([]int, 0, len(nodes))

	for i := range nodes {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	ordered := make([]*models.Node, 0, len(nodes))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		ordered = append(ordered, nodes[current])

		for _, next := range successors[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(ordered) == len(nodes) {
		return ordered, nil
	}

	residual := make([]string, 0, len(nodes)-len(ordered))

	for i, node := range nodes {
		if inDegree[i] > 0 {
			residual = append(residual, node.ID)
		}
	}

	return ordered, &CyclicGraphError{NodeIDs: residual}
}
