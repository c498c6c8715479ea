// Package view derives the visible slice of a canvas from a navigation path.
package view

import (
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/navigation"
)

// View is the visible slice of one owner's graph for a navigation path
type View struct {
	ParentID string
	Nodes    []*entities.Node
	Edges    []*entities.Edge
}

// Resolve returns the nodes whose parent is the last entry of path (root
// nodes for the empty path) and the edges whose endpoints are both visible.
// It is pure: inputs are not modified and input order is preserved.
func Resolve(nodes []*entities.Node, edges []*entities.Edge, path navigation.Path) View {
	parent := path.CurrentParentID()

	v := View{ParentID: parent, Nodes: []*entities.Node{}, Edges: []*entities.Edge{}}
	visible := make(map[string]struct{})
	for _, n := range nodes {
		if n.ParentKey() == parent {
			v.Nodes = append(v.Nodes, n)
			visible[n.ID().String()] = struct{}{}
		}
	}

	v.Edges = visibleEdges(edges, visible)
	return v
}

// ResolveFor is Resolve restricted to the entries owned by owner.
func ResolveFor(owner string, nodes []*entities.Node, edges []*entities.Edge, path navigation.Path) View {
	ownedNodes := make([]*entities.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.OwnerID() == owner {
			ownedNodes = append(ownedNodes, n)
		}
	}
	ownedEdges := make([]*entities.Edge, 0, len(edges))
	for _, e := range edges {
		if e.OwnerID() == owner {
			ownedEdges = append(ownedEdges, e)
		}
	}
	return Resolve(ownedNodes, ownedEdges, path)
}

func visibleEdges(edges []*entities.Edge, visible map[string]struct{}) []*entities.Edge {
	out := []*entities.Edge{}
	for _, e := range edges {
		_, src := visible[e.Source().String()]
		_, tgt := visible[e.Target().String()]
		if src && tgt {
			out = append(out, e)
		}
	}
	return out
}
