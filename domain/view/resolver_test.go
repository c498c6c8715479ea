package view

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/navigation"
)

func mkNode(t testing.TB, owner, id, parent string) *entities.Node {
	t.Helper()
	raw := map[string]interface{}{}
	if parent != "" {
		raw["parentId"] = parent
	}
	payload, err := valueobjects.NewPayload(raw)
	require.NoError(t, err)
	n, err := entities.NewNode(valueobjects.MustNodeID(id), owner, entities.NodeKindDefault, id, valueobjects.Origin, payload, time.Now())
	require.NoError(t, err)
	return n
}

func mkEdge(t testing.TB, owner, src, tgt string) *entities.Edge {
	t.Helper()
	s, d := valueobjects.MustNodeID(src), valueobjects.MustNodeID(tgt)
	e, err := entities.NewEdge(entities.EdgeIDFor(s, d), owner, s, d, entities.EdgeKindDefault, time.Now())
	require.NoError(t, err)
	return e
}

func ids(nodes []*entities.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID().String()
	}
	return out
}

func edgeIDs(edges []*entities.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.ID()
	}
	return out
}

func TestResolve_FinanceScenario(t *testing.T) {
	n1 := mkNode(t, "o", "n1", "")
	n2 := mkNode(t, "o", "n2", "n1")
	nodes := []*entities.Node{n1, n2}

	root := Resolve(nodes, nil, nil)
	assert.Equal(t, []string{"n1"}, ids(root.Nodes))

	inside := Resolve(nodes, nil, navigation.Path{{NodeID: "n1", Label: "Finance"}})
	assert.Equal(t, []string{"n2"}, ids(inside.Nodes))
	assert.Equal(t, "n1", inside.ParentID)
}

func TestResolve_EdgesNeedBothEndpointsVisible(t *testing.T) {
	nodes := []*entities.Node{
		mkNode(t, "o", "a", ""),
		mkNode(t, "o", "b", ""),
		mkNode(t, "o", "c", "a"),
	}
	edges := []*entities.Edge{
		mkEdge(t, "o", "a", "b"),
		mkEdge(t, "o", "a", "c"),
		mkEdge(t, "o", "ghost", "b"),
	}

	root := Resolve(nodes, edges, nil)
	assert.Equal(t, []string{"edge-a-b"}, edgeIDs(root.Edges))

	inside := Resolve(nodes, edges, navigation.Path{{NodeID: "a"}})
	assert.Empty(t, inside.Edges, "cross-canvas edge is hidden, not deleted")
	assert.Len(t, edges, 3)
}

func TestResolve_EmptyInputs(t *testing.T) {
	v := Resolve(nil, nil, nil)
	assert.NotNil(t, v.Nodes)
	assert.NotNil(t, v.Edges)
	assert.Empty(t, v.Nodes)
}

func TestResolveFor_NeverLeaksOtherOwners(t *testing.T) {
	nodes := []*entities.Node{
		mkNode(t, "alice", "a", ""),
		mkNode(t, "bob", "b", ""),
		mkNode(t, "bob", "a2", ""),
	}
	edges := []*entities.Edge{
		mkEdge(t, "bob", "a", "b"),
		mkEdge(t, "alice", "a", "a"),
	}

	v := ResolveFor("alice", nodes, edges, nil)
	for _, n := range v.Nodes {
		assert.Equal(t, "alice", n.OwnerID())
	}
	for _, e := range v.Edges {
		assert.Equal(t, "alice", e.OwnerID())
	}
	assert.Equal(t, []string{"a"}, ids(v.Nodes))
}

// randomGraph builds a forest with random nesting and random edges.
func randomGraph(t testing.TB, r *rand.Rand, size int) ([]*entities.Node, []*entities.Edge) {
	nodes := make([]*entities.Node, 0, size)
	for i := 0; i < size; i++ {
		parent := ""
		if i > 0 && r.Intn(3) > 0 {
			parent = fmt.Sprintf("n%d", r.Intn(i))
		}
		nodes = append(nodes, mkNode(t, "o", fmt.Sprintf("n%d", i), parent))
	}
	var edges []*entities.Edge
	for i := 0; i < size*2; i++ {
		edges = append(edges, mkEdge(t, "o", fmt.Sprintf("n%d", r.Intn(size)), fmt.Sprintf("n%d", r.Intn(size))))
	}
	return nodes, edges
}

func TestResolve_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 25; round++ {
		nodes, edges := randomGraph(t, r, 30)
		byID := make(map[string]*entities.Node, len(nodes))
		for _, n := range nodes {
			byID[n.ID().String()] = n
		}
		ix := BuildChildIndex(nodes)

		paths := []navigation.Path{nil}
		for _, n := range nodes {
			paths = append(paths, navigation.Path{{NodeID: n.ID().String()}})
		}

		for _, p := range paths {
			v := Resolve(nodes, edges, p)

			visible := map[string]bool{}
			for _, n := range v.Nodes {
				visible[n.ID().String()] = true
				assert.Equal(t, p.CurrentParentID(), n.ParentKey())
			}
			for _, e := range v.Edges {
				assert.True(t, visible[e.Source().String()] && visible[e.Target().String()])
			}

			again := Resolve(nodes, edges, p)
			assert.Equal(t, ids(v.Nodes), ids(again.Nodes), "deterministic")

			indexed := ix.Resolve(byID, edges, p)
			assert.ElementsMatch(t, ids(v.Nodes), ids(indexed.Nodes))
			assert.ElementsMatch(t, edgeIDs(v.Edges), edgeIDs(indexed.Edges))
		}
	}
}

func TestChildIndex_Incremental(t *testing.T) {
	ix := NewChildIndex()
	ix.Add("a", "")
	ix.Add("b", "a")
	ix.Add("c", "a")
	ix.Add("d", "c")

	assert.Equal(t, []string{"a"}, ix.Roots())
	assert.Equal(t, []string{"b", "c"}, ix.Children("a"))
	assert.True(t, ix.HasChildren("a"))
	assert.Equal(t, []string{"b", "c", "d"}, ix.Descendants("a"))

	ix.Move("c", "")
	assert.Equal(t, []string{"a", "c"}, ix.Roots())
	assert.Equal(t, []string{"b"}, ix.Children("a"))

	ix.Remove("a")
	assert.Equal(t, []string{"c"}, ix.Roots())
	assert.Equal(t, []string{"b"}, ix.Children("a"), "orphans stay indexed under the missing parent")
	parent, ok := ix.Parent("b")
	assert.True(t, ok)
	assert.Equal(t, "a", parent)
	assert.Equal(t, 3, ix.Len())
}

func TestChildIndex_DescendantsSurvivesLoops(t *testing.T) {
	ix := NewChildIndex()
	ix.Add("a", "b")
	ix.Add("b", "a")

	assert.Equal(t, []string{"b"}, ix.Descendants("a"))
}
