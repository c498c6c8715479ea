package view

import (
	"sort"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/navigation"
)

// rootKey is the parent key of root-canvas nodes
const rootKey = ""

// ChildIndex maps parent ids to child ids and is maintained incrementally as
// nodes are added, moved and removed, so view resolution does not scan the
// whole graph. Children of a missing parent stay indexed under that parent id.
//
// ChildIndex is not safe for concurrent use; owners guard it with their lock.
type ChildIndex struct {
	children map[string]map[string]struct{}
	parentOf map[string]string
}

// NewChildIndex returns an empty index
func NewChildIndex() *ChildIndex {
	return &ChildIndex{
		children: make(map[string]map[string]struct{}),
		parentOf: make(map[string]string),
	}
}

// BuildChildIndex indexes nodes in one pass
func BuildChildIndex(nodes []*entities.Node) *ChildIndex {
	ix := NewChildIndex()
	for _, n := range nodes {
		ix.Add(n.ID().String(), n.ParentKey())
	}
	return ix
}

// Add indexes nodeID under parentID ("" for root). Re-adding moves the node.
func (ix *ChildIndex) Add(nodeID, parentID string) {
	if old, ok := ix.parentOf[nodeID]; ok {
		if old == parentID {
			return
		}
		ix.detach(nodeID, old)
	}
	set, ok := ix.children[parentID]
	if !ok {
		set = make(map[string]struct{})
		ix.children[parentID] = set
	}
	set[nodeID] = struct{}{}
	ix.parentOf[nodeID] = parentID
}

// Move re-parents nodeID
func (ix *ChildIndex) Move(nodeID, newParentID string) {
	ix.Add(nodeID, newParentID)
}

// Remove drops nodeID. Its own children keep pointing at it.
func (ix *ChildIndex) Remove(nodeID string) {
	if parent, ok := ix.parentOf[nodeID]; ok {
		ix.detach(nodeID, parent)
		delete(ix.parentOf, nodeID)
	}
}

// Parent returns the indexed parent of nodeID
func (ix *ChildIndex) Parent(nodeID string) (string, bool) {
	p, ok := ix.parentOf[nodeID]
	return p, ok
}

// Children returns the ids of the direct children of parentID, sorted
func (ix *ChildIndex) Children(parentID string) []string {
	set := ix.children[parentID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Roots returns the ids of root-canvas nodes, sorted
func (ix *ChildIndex) Roots() []string {
	return ix.Children(rootKey)
}

// HasChildren reports whether any node is nested directly under nodeID
func (ix *ChildIndex) HasChildren(nodeID string) bool {
	return len(ix.children[nodeID]) > 0
}

// Descendants returns every node nested under nodeID at any depth, parents
// before children. Nesting loops are visited once.
func (ix *ChildIndex) Descendants(nodeID string) []string {
	var out []string
	seen := map[string]bool{nodeID: true}
	queue := []string{nodeID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range ix.Children(current) {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// Len returns the number of indexed nodes
func (ix *ChildIndex) Len() int {
	return len(ix.parentOf)
}

// Resolve computes the same View as the package-level Resolve using the
// index: only the children of the current parent are looked up.
func (ix *ChildIndex) Resolve(byID map[string]*entities.Node, edges []*entities.Edge, path navigation.Path) View {
	parent := path.CurrentParentID()

	v := View{ParentID: parent, Nodes: []*entities.Node{}}
	visible := make(map[string]struct{})
	for _, id := range ix.Children(parent) {
		if n, ok := byID[id]; ok {
			v.Nodes = append(v.Nodes, n)
			visible[id] = struct{}{}
		}
	}
	v.Edges = visibleEdges(edges, visible)
	return v
}

func (ix *ChildIndex) detach(nodeID, parentID string) {
	if set, ok := ix.children[parentID]; ok {
		delete(set, nodeID)
		if len(set) == 0 {
			delete(ix.children, parentID)
		}
	}
}
