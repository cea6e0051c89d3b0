package workflow

import (
	"testing"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodesFor(ids ...string) []*models.Node {
	nodes := make([]*models.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, &models.Node{ID: id, Type: "log"})
	}

	return nodes
}

func edge(source, target string) *models.Edge {
	return &models.Edge{Source: source, Target: target}
}

func ids(nodes []*models.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.ID)
	}

	return out
}

func assertTopological(t *testing.T, ordered []*models.Node, edges []*models.Edge) {
	t.Helper()

	position := make(map[string]int, len(ordered))
	for i, node := range ordered {
		position[node.ID] = i
	}

	for _, e := range edges {
		src, okSrc := position[e.Source]
		dst, okDst := position[e.Target]

		if okSrc && okDst {
			assert.Less(t, src, dst, "edge %s -> %s out of order", e.Source, e.Target)
		}
	}
}

func TestOrder_TopologicalValidity(t *testing.T) {
	tests := []struct {
		name  string
		nodes []*models.Node
		edges []*models.Edge
		want  []string
	}{
		{
			name:  "linear chain declared backwards",
			nodes: nodesFor("c", "b", "a"),
			edges: []*models.Edge{edge("a", "b"), edge("b", "c")},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "diamond keeps declaration order for siblings",
			nodes: nodesFor("start", "left", "right", "join"),
			edges: []*models.Edge{edge("start", "right"), edge("start", "left"), edge("left", "join"), edge("right", "join")},
			want:  []string{"start", "left", "right", "join"},
		},
		{
			name:  "disconnected nodes run in declaration order",
			nodes: nodesFor("x", "y", "z"),
			edges: nil,
			want:  []string{"x", "y", "z"},
		},
		{
			name:  "dangling edge is ignored",
			nodes: nodesFor("a", "b"),
			edges: []*models.Edge{edge("a", "ghost"), edge("a", "b")},
			want:  []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ordered, err := Order(tt.nodes, tt.edges)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(ordered))
			assertTopological(t, ordered, tt.edges)
		})
	}
}

func TestOrder_Cycle(t *testing.T) {
	nodes := nodesFor("trigger", "a", "b", "after")
	edges := []*models.Edge{edge("trigger", "a"), edge("a", "b"), edge("b", "a"), edge("b", "after")}

	ordered, err := Order(nodes, edges)

	var cyclic *CyclicGraphError
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, []string{"a", "b", "after"}, cyclic.NodeIDs)
	assert.Equal(t, []string{"trigger"}, ids(ordered))
	assert.Contains(t, err.Error(), "cycle")
}

func TestOrder_SelfLoop(t *testing.T) {
	_, err := Order(nodesFor("a"), []*models.Edge{edge("a", "a")})

	var cyclic *CyclicGraphError
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, []string{"a"}, cyclic.NodeIDs)
}
