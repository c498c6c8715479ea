package canvasclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/pkg/api"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

const (
	defaultConcurrency   = 8
	notificationCapacity = 64
)

// Op names a mutation
type Op string

const (
	OpCreateNode Op = "create_node"
	OpUpdateNode Op = "update_node"
	OpDeleteNode Op = "delete_node"
	OpCreateEdge Op = "create_edge"
	OpDeleteEdge Op = "delete_edge"
)

// Mutation is one change to the canvas. Build it with the constructors below.
type Mutation struct {
	op    Op
	id    string
	node  api.Node
	patch api.UpdateNodeRequest
	edge  api.Edge
}

// CreateNode creates n. An empty id gets a fresh node id.
func CreateNode(n api.Node) Mutation {
	return Mutation{op: OpCreateNode, id: n.ID, node: n}
}

// UpdateNode applies a partial update to node id. Seq is set by the client.
func UpdateNode(id string, patch api.UpdateNodeRequest) Mutation {
	return Mutation{op: OpUpdateNode, id: id, patch: patch}
}

// DeleteNode removes node id and, locally, every edge touching it
func DeleteNode(id string) Mutation {
	return Mutation{op: OpDeleteNode, id: id}
}

// CreateEdge connects e.Source to e.Target. An empty id is derived from the
// endpoints.
func CreateEdge(e api.Edge) Mutation {
	return Mutation{op: OpCreateEdge, id: e.ID, edge: e}
}

// DeleteEdge removes edge id
func DeleteEdge(id string) Mutation {
	return Mutation{op: OpDeleteEdge, id: id}
}

// Op returns the kind of mutation
func (m Mutation) Op() Op { return m.op }

// Notification reports a mutation the service rejected after it was applied
// locally. The local change has been rolled back when it is delivered.
type Notification struct {
	Op       Op
	EntityID string
	Err      error
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithOwner sets the owner recorded on locally created entities
func WithOwner(owner string) Option {
	return func(c *Client) { c.owner = owner }
}

// WithClock overrides the wall clock used for timestamps and sequence numbers
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithOrphanPolicy makes local deletes treat the children of a deleted node
// the way the service is configured to. The default is entities.OrphanKeep.
func WithOrphanPolicy(policy entities.OrphanPolicy) Option {
	return func(c *Client) {
		if policy != "" {
			c.orphans = policy
		}
	}
}

// WithConcurrency bounds the number of requests CreateNodes keeps in flight
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// Client applies mutations to its Mirror first and commits them to the
// service in the background. Every mutation carries a sequence number; a
// commit result is only reconciled into the mirror while its number is still
// the latest one for the entity, so out-of-order responses never overwrite
// newer local state.
type Client struct {
	transport   Transport
	mirror      *Mirror
	logger      *zap.Logger
	owner       string
	now         func() time.Time
	concurrency int
	orphans     entities.OrphanPolicy

	seq           atomic.Int64
	notifications chan Notification
}

// NewClient creates a client with an empty mirror
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:     transport,
		mirror:        NewMirror(),
		logger:        zap.NewNop(),
		now:           time.Now,
		concurrency:   defaultConcurrency,
		orphans:       entities.OrphanKeep,
		notifications: make(chan Notification, notificationCapacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mirror returns the local copy of the graph
func (c *Client) Mirror() *Mirror {
	return c.mirror
}

// Notifications delivers rejected mutations. Notifications are dropped when
// nobody drains the channel.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// NewNodeID returns a random node id
func (c *Client) NewNodeID() string {
	return valueobjects.NewNodeID().String()
}

// NewKindNodeID returns a node id carrying kind and the current time
func (c *Client) NewKindNodeID(kind string) string {
	return valueobjects.NewKindNodeID(kind, c.now()).String()
}

// nextSeq returns a number greater than every number handed out before and
// not smaller than the wall clock in microseconds, so numbers keep growing
// across client restarts.
func (c *Client) nextSeq() int64 {
	for {
		last := c.seq.Load()
		next := max(last+1, c.now().UnixMicro())
		if c.seq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Load replaces the mirror with the service's current graph
func (c *Client) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var wireNodes []api.Node
	var wireEdges []api.Edge
	g.Go(func() error {
		var err error
		wireNodes, err = c.transport.ListNodes(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		wireEdges, err = c.transport.ListEdges(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	nodes := make([]*entities.Node, 0, len(wireNodes))
	for _, n := range wireNodes {
		node, err := api.ToNode(n)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		nodes = append(nodes, node)
	}
	edges := make([]*entities.Edge, 0, len(wireEdges))
	for _, e := range wireEdges {
		edge, err := api.ToEdge(e)
		if err != nil {
			return fmt.Errorf("edge %s: %w", e.ID, err)
		}
		edges = append(edges, edge)
	}

	c.mirror.Replace(nodes, edges)
	c.logger.Debug("Canvas loaded", zap.Int("nodes", len(nodes)), zap.Int("edges", len(edges)))
	return nil
}

// Handle tracks one locally applied mutation until it is committed or rolled back
type Handle struct {
	client    *Client
	mutation  Mutation
	seq       int64
	err       error
	snapshots []snapshot

	mu         sync.Mutex
	rolledBack bool
}

// snapshot is the state of one entity before a mutation touched it. A nil
// entity means the entity did not exist.
type snapshot struct {
	key  string
	id   string
	node *entities.Node
	edge *entities.Edge
}

// Err returns the error that prevented the local apply, if any
func (h *Handle) Err() error { return h.err }

// EntityID returns the id of the mutated entity
func (h *Handle) EntityID() string { return h.mutation.id }

// Seq returns the sequence number of the mutation
func (h *Handle) Seq() int64 { return h.seq }

// Op returns the kind of mutation
func (h *Handle) Op() Op { return h.mutation.op }

// Rollback restores every entity the mutation touched, except those a newer
// mutation has touched since. It is safe to call more than once.
func (h *Handle) Rollback() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rolledBack || h.err != nil {
		return
	}
	h.rolledBack = true

	m := h.client.mirror
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range h.snapshots {
		if m.latest[s.key] != h.seq {
			continue
		}
		switch {
		case s.node != nil:
			m.putNode(s.node)
		case s.edge != nil:
			m.putEdge(s.edge)
		case s.key == nodeKey(s.id):
			m.removeNode(s.id)
		default:
			m.removeEdge(s.id)
		}
	}
}

// ApplyLocal applies m to the mirror and returns a handle to commit or roll
// it back. When the mutation is invalid the mirror is untouched and the
// handle carries the error.
func (c *Client) ApplyLocal(m Mutation) *Handle {
	h := &Handle{client: c, mutation: m, seq: c.nextSeq()}
	now := c.now()

	mirror := c.mirror
	mirror.mu.Lock()
	defer mirror.mu.Unlock()

	switch m.op {
	case OpCreateNode:
		if h.mutation.id == "" {
			h.mutation.id = c.NewNodeID()
		}
		h.mutation.node.ID = h.mutation.id
		if h.mutation.node.OwnerID == "" {
			h.mutation.node.OwnerID = c.owner
		}
		wire := h.mutation.node
		wire.Seq = 0
		wire.CreatedAt, wire.UpdatedAt = now, now
		node, err := api.ToNode(wire)
		if err != nil {
			h.err = err
			return h
		}
		h.snapshotNode(mirror, h.mutation.id)
		mirror.putNode(node)

	case OpUpdateNode:
		current, ok := mirror.nodes[m.id]
		if !ok {
			h.err = pkgerrors.NewNodeNotFoundError(m.id)
			return h
		}
		patch, err := m.patch.Patch()
		if err != nil {
			h.err = err
			return h
		}
		patch.Seq = 0
		next := current.Clone()
		if err := next.Apply(patch, now); err != nil {
			h.err = err
			return h
		}
		next.MarkEventsAsCommitted()
		h.snapshotNode(mirror, m.id)
		mirror.putNode(next)
		// The request carries every field still in flight for the node, so a
		// rejected older update cannot lose a field this one did not touch.
		h.mutation.patch = mergePatch(mirror.pending[m.id], m.patch)
		mirror.pending[m.id] = h.mutation.patch

	case OpDeleteNode:
		if _, ok := mirror.nodes[m.id]; !ok {
			h.err = pkgerrors.NewNodeNotFoundError(m.id)
			return h
		}
		doomed := []string{m.id}
		switch c.orphans {
		case entities.OrphanReparent:
			for _, child := range mirror.index.Children(m.id) {
				node, ok := mirror.nodes[child]
				if !ok {
					continue
				}
				moved := node.Clone()
				moved.Reparent(now)
				moved.MarkEventsAsCommitted()
				h.snapshotNode(mirror, child)
				mirror.putNode(moved)
			}
		case entities.OrphanSubtree:
			doomed = append(doomed, mirror.index.Descendants(m.id)...)
		}
		for _, id := range doomed {
			h.snapshotNode(mirror, id)
			for _, e := range mirror.edgesTouching(id) {
				h.snapshotEdge(mirror, e.ID())
				mirror.removeEdge(e.ID())
			}
			mirror.removeNode(id)
		}

	case OpCreateEdge:
		for _, endpoint := range []string{m.edge.Source, m.edge.Target} {
			if _, ok := mirror.nodes[endpoint]; !ok {
				h.err = pkgerrors.NewEndpointNotFoundError(endpoint)
				return h
			}
		}
		wire := m.edge
		if wire.OwnerID == "" {
			wire.OwnerID = c.owner
		}
		if wire.ID == "" {
			wire.ID = entities.EdgeIDFor(valueobjects.MustNodeID(wire.Source), valueobjects.MustNodeID(wire.Target))
		}
		wire.CreatedAt = now
		edge, err := api.ToEdge(wire)
		if err != nil {
			h.err = err
			return h
		}
		h.mutation.id = wire.ID
		h.mutation.edge = wire
		h.snapshotEdge(mirror, wire.ID)
		mirror.putEdge(edge)

	case OpDeleteEdge:
		if _, ok := mirror.edges[m.id]; !ok {
			h.err = pkgerrors.NewEdgeNotFoundError(m.id)
			return h
		}
		h.snapshotEdge(mirror, m.id)
		mirror.removeEdge(m.id)

	default:
		h.err = pkgerrors.NewValidationError(fmt.Sprintf("unknown mutation %q", m.op))
	}
	return h
}

// snapshotNode records the node's current state and claims it for h.
// Caller holds the mirror lock.
func (h *Handle) snapshotNode(m *Mirror, id string) {
	key := nodeKey(id)
	h.snapshots = append(h.snapshots, snapshot{key: key, id: id, node: m.nodes[id]})
	m.latest[key] = h.seq
}

func (h *Handle) snapshotEdge(m *Mirror, id string) {
	key := edgeKey(id)
	h.snapshots = append(h.snapshots, snapshot{key: key, id: id, edge: m.edges[id]})
	m.latest[key] = h.seq
}

// Commit sends the mutation behind h to the service. On success the
// service's version of the entity replaces the local one unless a newer
// mutation has touched it; on failure the local change is rolled back and a
// Notification is sent. A stale rejection of a mutation that a newer local
// one already supersedes is returned without rollback or notification: the
// newer request carries its fields.
func (c *Client) Commit(ctx context.Context, h *Handle) error {
	if h.err != nil {
		c.notify(h, h.err)
		return h.err
	}

	m := h.mutation
	var err error
	switch m.op {
	case OpCreateNode:
		var node api.Node
		req := api.CreateNodeRequest{
			ID:      m.id,
			Kind:    m.node.Kind,
			Label:   m.node.Label,
			X:       m.node.X,
			Y:       m.node.Y,
			Payload: m.node.Payload,
		}
		if node, err = c.transport.CreateNode(ctx, req); err == nil {
			err = c.reconcileNode(h, node)
		}

	case OpUpdateNode:
		req := m.patch
		req.Seq = h.seq
		var node api.Node
		if node, err = c.transport.UpdateNode(ctx, m.id, req); err == nil {
			err = c.reconcileNode(h, node)
		}

	case OpDeleteNode:
		err = c.transport.DeleteNode(ctx, m.id)
		if pkgerrors.IsNotFound(err) {
			err = nil
		}

	case OpCreateEdge:
		var edge api.Edge
		req := api.CreateEdgeRequest{ID: m.id, Source: m.edge.Source, Target: m.edge.Target, Kind: m.edge.Kind}
		if edge, err = c.transport.CreateEdge(ctx, req); err == nil {
			err = c.reconcileEdge(h, edge)
		}

	case OpDeleteEdge:
		err = c.transport.DeleteEdge(ctx, m.id)
		if pkgerrors.IsNotFound(err) {
			err = nil
		}
	}

	switch m.op {
	case OpCreateNode, OpUpdateNode, OpDeleteNode:
		c.settle(h)
	}

	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation) && c.superseded(h) {
			c.logger.Debug("Superseded mutation rejected as stale",
				zap.String("id", m.id),
				zap.Int64("seq", h.seq),
			)
			return err
		}
		h.Rollback()
		c.logger.Warn("Mutation rejected, rolled back",
			zap.String("op", string(m.op)),
			zap.String("id", m.id),
			zap.Int64("seq", h.seq),
			zap.Error(err),
		)
		c.notify(h, err)
		return err
	}
	return nil
}

// Go applies m locally and commits it in the background. The returned
// channel yields the commit result once.
func (c *Client) Go(ctx context.Context, m Mutation) <-chan error {
	h := c.ApplyLocal(m)
	done := make(chan error, 1)
	go func() {
		done <- c.Commit(ctx, h)
		close(done)
	}()
	return done
}

// Apply applies m locally and commits it before returning
func (c *Client) Apply(ctx context.Context, m Mutation) error {
	return c.Commit(ctx, c.ApplyLocal(m))
}

// Connect creates an edge between two nodes and commits it immediately.
// It returns the id of the edge.
func (c *Client) Connect(ctx context.Context, source, target string, kind entities.EdgeKind) (string, error) {
	h := c.ApplyLocal(CreateEdge(api.Edge{Source: source, Target: target, Kind: string(kind)}))
	return h.EntityID(), c.Commit(ctx, h)
}

// CreateNodes applies every node locally in order, then commits them
// concurrently. Nodes that fail are rolled back one by one; the others stay.
// The returned error joins every failure.
func (c *Client) CreateNodes(ctx context.Context, nodes []api.Node) error {
	handles := make([]*Handle, len(nodes))
	for i, n := range nodes {
		handles[i] = c.ApplyLocal(CreateNode(n))
	}

	errs := make([]error, len(handles))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, h := range handles {
		g.Go(func() error {
			if err := c.Commit(ctx, h); err != nil {
				errs[i] = fmt.Errorf("node %s: %w", h.EntityID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// settle forgets the in-flight fields of the node behind h once no newer
// mutation depends on them
func (c *Client) settle(h *Handle) {
	m := c.mirror
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest[nodeKey(h.mutation.id)] == h.seq {
		delete(m.pending, h.mutation.id)
	}
}

// superseded reports whether a newer mutation has touched any entity of h
func (c *Client) superseded(h *Handle) bool {
	m := c.mirror
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range h.snapshots {
		if m.latest[s.key] != h.seq {
			return true
		}
	}
	return false
}

// mergePatch overlays next on base; fields present in next win
func mergePatch(base, next api.UpdateNodeRequest) api.UpdateNodeRequest {
	if next.X.Set {
		base.X = next.X
	}
	if next.Y.Set {
		base.Y = next.Y
	}
	if next.Label.Set {
		base.Label = next.Label
	}
	if next.Payload.Set {
		base.Payload = next.Payload
	}
	base.Seq = 0
	return base
}

func (c *Client) reconcileNode(h *Handle, wire api.Node) error {
	node, err := api.ToNode(wire)
	if err != nil {
		return fmt.Errorf("decode node %s: %w", wire.ID, err)
	}
	m := c.mirror
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest[nodeKey(wire.ID)] != h.seq {
		c.logger.Debug("Discarding superseded result", zap.String("id", wire.ID), zap.Int64("seq", h.seq))
		return nil
	}
	m.putNode(node)
	return nil
}

func (c *Client) reconcileEdge(h *Handle, wire api.Edge) error {
	edge, err := api.ToEdge(wire)
	if err != nil {
		return fmt.Errorf("decode edge %s: %w", wire.ID, err)
	}
	m := c.mirror
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest[edgeKey(wire.ID)] != h.seq {
		return nil
	}
	m.putEdge(edge)
	return nil
}

func (c *Client) notify(h *Handle, err error) {
	select {
	case c.notifications <- Notification{Op: h.mutation.op, EntityID: h.mutation.id, Err: err}:
	default:
		c.logger.Debug("Notification dropped", zap.String("id", h.mutation.id))
	}
}
