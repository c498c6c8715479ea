package canvasclient

import (
	"sort"
	"sync"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/domain/view"
	"github.com/MartinFunctu/lifeos/pkg/api"
)

// Mirror is the client's copy of one owner's graph. Stored entities are
// never modified after insertion: updates swap in a new value. Callers may
// keep the pointers they get back but must not mutate them.
type Mirror struct {
	mu     sync.RWMutex
	nodes  map[string]*entities.Node
	edges  map[string]*entities.Edge
	index  *view.ChildIndex
	latest map[string]int64

	// pending holds, per node, the union of update fields not yet settled
	pending map[string]api.UpdateNodeRequest
}

// NewMirror returns an empty mirror
func NewMirror() *Mirror {
	return &Mirror{
		nodes:   make(map[string]*entities.Node),
		edges:   make(map[string]*entities.Edge),
		index:   view.NewChildIndex(),
		latest:  make(map[string]int64),
		pending: make(map[string]api.UpdateNodeRequest),
	}
}

func nodeKey(id string) string { return "node:" + id }
func edgeKey(id string) string { return "edge:" + id }

// Replace swaps the whole content, as after a fresh load. Sequence numbers
// of pending mutations are kept so their late results are still discarded.
func (m *Mirror) Replace(nodes []*entities.Node, edges []*entities.Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes = make(map[string]*entities.Node, len(nodes))
	m.edges = make(map[string]*entities.Edge, len(edges))
	m.index = view.BuildChildIndex(nodes)
	for _, n := range nodes {
		m.nodes[n.ID().String()] = n
	}
	for _, e := range edges {
		m.edges[e.ID()] = e
	}
}

// Node returns the node with id
func (m *Mirror) Node(id string) (*entities.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok
}

// Edge returns the edge with id
func (m *Mirror) Edge(id string) (*entities.Edge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[id]
	return e, ok
}

// Nodes returns every node sorted by id
func (m *Mirror) Nodes() []*entities.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entities.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().String() < out[j].ID().String() })
	return out
}

// Edges returns every edge sorted by id
func (m *Mirror) Edges() []*entities.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.edgeList()
}

// HasChildren reports whether any node is nested under id
func (m *Mirror) HasChildren(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.HasChildren(id)
}

// Children returns the direct children of parentID ("" for root), sorted by id
func (m *Mirror) Children(parentID string) []*entities.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.index.Children(parentID)
	out := make([]*entities.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := m.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// View resolves the visible slice for path
func (m *Mirror) View(path navigation.Path) view.View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Resolve(m.nodes, m.edgeList(), path)
}

// Len returns the number of nodes and edges
func (m *Mirror) Len() (nodes, edges int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes), len(m.edges)
}

// The helpers below expect m.mu to be held for writing.

func (m *Mirror) edgeList() []*entities.Edge {
	out := make([]*entities.Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (m *Mirror) putNode(n *entities.Node) {
	id := n.ID().String()
	m.nodes[id] = n
	m.index.Add(id, n.ParentKey())
}

func (m *Mirror) removeNode(id string) {
	delete(m.nodes, id)
	m.index.Remove(id)
}

func (m *Mirror) putEdge(e *entities.Edge) {
	m.edges[e.ID()] = e
}

func (m *Mirror) removeEdge(id string) {
	delete(m.edges, id)
}

// edgesTouching returns the edges with id as source or target
func (m *Mirror) edgesTouching(id string) []*entities.Edge {
	var out []*entities.Edge
	for _, e := range m.edges {
		if e.Source().String() == id || e.Target().String() == id {
			out = append(out, e)
		}
	}
	return out
}
