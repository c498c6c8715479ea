// Package memory provides an in-process GraphRepository. It is the default
// store for local development and the reference the other stores are tested
// against.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/view"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

type ownerGraph struct {
	nodes map[string]*entities.Node
	edges map[string]*entities.Edge
	index *view.ChildIndex
}

func newOwnerGraph() *ownerGraph {
	return &ownerGraph{
		nodes: make(map[string]*entities.Node),
		edges: make(map[string]*entities.Edge),
		index: view.NewChildIndex(),
	}
}

// GraphRepository keeps every owner's graph in memory behind one lock. All
// multi-record writes, including cascades, are atomic.
type GraphRepository struct {
	mu     sync.RWMutex
	owners map[string]*ownerGraph
	now    func() time.Time
}

var (
	_ ports.GraphRepository = (*GraphRepository)(nil)
	_ ports.HealthChecker   = (*GraphRepository)(nil)
)

// NewGraphRepository creates an empty repository
func NewGraphRepository() *GraphRepository {
	return &GraphRepository{
		owners: make(map[string]*ownerGraph),
		now:    time.Now,
	}
}

// graph returns owner's graph, creating it when create is set. Callers hold mu.
func (r *GraphRepository) graph(owner string, create bool) *ownerGraph {
	g, ok := r.owners[owner]
	if !ok && create {
		g = newOwnerGraph()
		r.owners[owner] = g
	}
	return g
}

// Ping implements ports.HealthChecker
func (r *GraphRepository) Ping(context.Context) error { return nil }

func (r *GraphRepository) ListNodes(_ context.Context, owner string) ([]*entities.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g := r.graph(owner, false)
	if g == nil {
		return []*entities.Node{}, nil
	}
	nodes := make([]*entities.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n.Clone())
	}
	sortNodes(nodes)
	return nodes, nil
}

func (r *GraphRepository) GetNode(_ context.Context, owner string, id valueobjects.NodeID) (*entities.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g := r.graph(owner, false)
	if g == nil {
		return nil, pkgerrors.NewNodeNotFoundError(id.String())
	}
	n, ok := g.nodes[id.String()]
	if !ok {
		return nil, pkgerrors.NewNodeNotFoundError(id.String())
	}
	return n.Clone(), nil
}

func (r *GraphRepository) ListChildren(_ context.Context, owner string, parent valueobjects.NodeID) ([]*entities.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	children := []*entities.Node{}
	g := r.graph(owner, false)
	if g == nil {
		return children, nil
	}
	for _, id := range g.index.Children(parent.String()) {
		if n, ok := g.nodes[id]; ok {
			children = append(children, n.Clone())
		}
	}
	return children, nil
}

func (r *GraphRepository) CreateNode(_ context.Context, owner string, node *entities.Node) (*entities.Node, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.graph(owner, true)
	if existing, ok := g.nodes[node.ID().String()]; ok {
		return existing.Clone(), false, nil
	}
	if parent, ok := node.ParentID(); ok {
		if _, exists := g.nodes[parent.String()]; !exists {
			return nil, false, pkgerrors.NewParentNotFoundError(parent.String())
		}
	}

	stored := node.Clone()
	g.nodes[stored.ID().String()] = stored
	g.index.Add(stored.ID().String(), stored.ParentKey())
	return stored.Clone(), true, nil
}

func (r *GraphRepository) UpdateNode(_ context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (*entities.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.graph(owner, false)
	if g == nil {
		return nil, pkgerrors.NewNodeNotFoundError(id.String())
	}
	current, ok := g.nodes[id.String()]
	if !ok {
		return nil, pkgerrors.NewNodeNotFoundError(id.String())
	}
	if parent, touched := patch.NewParent(); touched && !parent.IsZero() && !parent.Equals(id) {
		if _, exists := g.nodes[parent.String()]; !exists {
			return nil, pkgerrors.NewParentNotFoundError(parent.String())
		}
	}

	updated := current.Clone()
	if err := updated.Apply(patch, r.now()); err != nil {
		return nil, err
	}
	updated.MarkEventsAsCommitted()

	g.nodes[id.String()] = updated
	g.index.Move(id.String(), updated.ParentKey())
	return updated.Clone(), nil
}

func (r *GraphRepository) DeleteNode(_ context.Context, owner string, id valueobjects.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.graph(owner, false)
	if g == nil {
		return pkgerrors.NewNodeNotFoundError(id.String())
	}
	if _, ok := g.nodes[id.String()]; !ok {
		return pkgerrors.NewNodeNotFoundError(id.String())
	}
	delete(g.nodes, id.String())
	g.index.Remove(id.String())
	return nil
}

func (r *GraphRepository) ListEdges(_ context.Context, owner string) ([]*entities.Edge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g := r.graph(owner, false)
	if g == nil {
		return []*entities.Edge{}, nil
	}
	edges := make([]*entities.Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e.Clone())
	}
	sortEdges(edges)
	return edges, nil
}

func (r *GraphRepository) ListEdgesForNode(_ context.Context, owner string, id valueobjects.NodeID) ([]*entities.Edge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	edges := []*entities.Edge{}
	g := r.graph(owner, false)
	if g == nil {
		return edges, nil
	}
	for _, e := range g.edges {
		if e.Touches(id) {
			edges = append(edges, e.Clone())
		}
	}
	sortEdges(edges)
	return edges, nil
}

func (r *GraphRepository) CreateEdge(_ context.Context, owner string, edge *entities.Edge) (*entities.Edge, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.graph(owner, true)
	if existing, ok := g.edges[edge.ID()]; ok {
		return existing.Clone(), false, nil
	}
	for _, endpoint := range []valueobjects.NodeID{edge.Source(), edge.Target()} {
		if _, ok := g.nodes[endpoint.String()]; !ok {
			return nil, false, pkgerrors.NewEndpointNotFoundError(endpoint.String())
		}
	}

	stored := edge.Clone()
	g.edges[stored.ID()] = stored
	return stored.Clone(), true, nil
}

func (r *GraphRepository) DeleteEdge(_ context.Context, owner string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.graph(owner, false)
	if g == nil {
		return pkgerrors.NewEdgeNotFoundError(id)
	}
	if _, ok := g.edges[id]; !ok {
		return pkgerrors.NewEdgeNotFoundError(id)
	}
	delete(g.edges, id)
	return nil
}

// CascadeNodes applies the whole request under the write lock
func (r *GraphRepository) CascadeNodes(_ context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	if len(req.Delete) == 0 {
		return []string{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	target := req.Delete[0]
	g := r.graph(owner, false)
	if g == nil {
		return nil, pkgerrors.NewNodeNotFoundError(target.String())
	}
	if _, ok := g.nodes[target.String()]; !ok {
		return nil, pkgerrors.NewNodeNotFoundError(target.String())
	}

	doomed := make(map[string]bool, len(req.Delete))
	for _, id := range req.Delete {
		doomed[id.String()] = true
	}

	removed := []string{}
	for id, e := range g.edges {
		if doomed[e.Source().String()] || doomed[e.Target().String()] {
			delete(g.edges, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)

	now := r.now()
	for _, id := range req.Reparent {
		n, ok := g.nodes[id.String()]
		if !ok || doomed[id.String()] {
			continue
		}
		moved := n.Clone()
		moved.Reparent(now)
		moved.MarkEventsAsCommitted()
		g.nodes[id.String()] = moved
		g.index.Move(id.String(), "")
	}

	for id := range doomed {
		delete(g.nodes, id)
		g.index.Remove(id)
	}
	return removed, nil
}

func sortNodes(nodes []*entities.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if !a.CreatedAt().Equal(b.CreatedAt()) {
			return a.CreatedAt().Before(b.CreatedAt())
		}
		return a.ID().String() < b.ID().String()
	})
}

func sortEdges(edges []*entities.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if !a.CreatedAt().Equal(b.CreatedAt()) {
			return a.CreatedAt().Before(b.CreatedAt())
		}
		return a.ID() < b.ID()
	})
}
