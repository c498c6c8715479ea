package canvasclient

import (
	"context"
	"sync"
	"time"

	"github.com/MartinFunctu/lifeos/pkg/api"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// fakeTransport is an in-memory service. fail makes the next call for an id
// return an error; gate, when set, blocks calls until it is closed.
type fakeTransport struct {
	mu      sync.Mutex
	nodes   map[string]api.Node
	edges   map[string]api.Edge
	fail    map[string]error
	gates   map[string]chan struct{}
	updates []api.UpdateNodeRequest
	calls   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nodes: make(map[string]api.Node),
		edges: make(map[string]api.Edge),
		fail:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeTransport) failNext(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[id] = err
}

func (f *fakeTransport) gate(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakeTransport) enter(ctx context.Context, id string) error {
	f.mu.Lock()
	f.calls++
	gate := f.gates[id]
	delete(f.gates, id)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[id]; ok {
		delete(f.fail, id)
		return err
	}
	return nil
}

func (f *fakeTransport) ListNodes(ctx context.Context) ([]api.Node, error) {
	if err := f.enter(ctx, "list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeTransport) ListEdges(ctx context.Context) ([]api.Edge, error) {
	if err := f.enter(ctx, "list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.Edge, 0, len(f.edges))
	for _, e := range f.edges {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeTransport) CreateNode(ctx context.Context, req api.CreateNodeRequest) (api.Node, error) {
	if err := f.enter(ctx, req.ID); err != nil {
		return api.Node{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.nodes[req.ID]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	n := api.Node{
		ID: req.ID, OwnerID: "alice", Kind: req.Kind, Label: req.Label,
		X: req.X, Y: req.Y, Payload: req.Payload, CreatedAt: now, UpdatedAt: now,
	}
	if n.Kind == "" {
		n.Kind = "default"
	}
	f.nodes[n.ID] = n
	return n, nil
}

func (f *fakeTransport) UpdateNode(ctx context.Context, id string, req api.UpdateNodeRequest) (api.Node, error) {
	if err := f.enter(ctx, id); err != nil {
		return api.Node{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	n, ok := f.nodes[id]
	if !ok {
		return api.Node{}, pkgerrors.NewNodeNotFoundError(id)
	}
	if req.Seq > 0 && req.Seq < n.Seq {
		return api.Node{}, pkgerrors.NewStaleMutationError(id, req.Seq, n.Seq)
	}
	if req.X.Set {
		n.X = req.X.Value
	}
	if req.Y.Set {
		n.Y = req.Y.Value
	}
	if req.Label.Set {
		n.Label = req.Label.Value
	}
	if req.Payload.Set {
		n.Payload = req.Payload.Value
	}
	if req.Seq > n.Seq {
		n.Seq = req.Seq
	}
	f.nodes[id] = n
	return n, nil
}

func (f *fakeTransport) DeleteNode(ctx context.Context, id string) error {
	if err := f.enter(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[id]; !ok {
		return pkgerrors.NewNodeNotFoundError(id)
	}
	delete(f.nodes, id)
	for eid, e := range f.edges {
		if e.Source == id || e.Target == id {
			delete(f.edges, eid)
		}
	}
	return nil
}

func (f *fakeTransport) CreateEdge(ctx context.Context, req api.CreateEdgeRequest) (api.Edge, error) {
	if err := f.enter(ctx, req.ID); err != nil {
		return api.Edge{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, endpoint := range []string{req.Source, req.Target} {
		if _, ok := f.nodes[endpoint]; !ok {
			return api.Edge{}, pkgerrors.NewEndpointNotFoundError(endpoint)
		}
	}
	e := api.Edge{ID: req.ID, OwnerID: "alice", Source: req.Source, Target: req.Target, Kind: req.Kind, CreatedAt: time.Now().UTC()}
	if e.Kind == "" {
		e.Kind = "default"
	}
	f.edges[e.ID] = e
	return e, nil
}

func (f *fakeTransport) DeleteEdge(ctx context.Context, id string) error {
	if err := f.enter(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.edges[id]; !ok {
		return pkgerrors.NewEdgeNotFoundError(id)
	}
	delete(f.edges, id)
	return nil
}
