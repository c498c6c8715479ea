package decorators

import (
	"context"
	"time"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
	"github.com/MartinFunctu/lifeos/pkg/observability"
)

// MetricsRepository records latency, outcome and business counters for every
// store call
type MetricsRepository struct {
	inner   ports.GraphRepository
	metrics *observability.Collector
}

var _ ports.GraphRepository = (*MetricsRepository)(nil)

// NewMetricsRepository wraps inner
func NewMetricsRepository(inner ports.GraphRepository, metrics *observability.Collector) *MetricsRepository {
	return &MetricsRepository{inner: inner, metrics: metrics}
}

func (r *MetricsRepository) record(op string, start time.Time, err error) {
	r.metrics.RecordStoreOperation(op, err, time.Since(start))
}

func (r *MetricsRepository) ListNodes(ctx context.Context, owner string) ([]*entities.Node, error) {
	start := time.Now()
	nodes, err := r.inner.ListNodes(ctx, owner)
	r.record("list_nodes", start, err)
	return nodes, err
}

func (r *MetricsRepository) GetNode(ctx context.Context, owner string, id valueobjects.NodeID) (*entities.Node, error) {
	start := time.Now()
	node, err := r.inner.GetNode(ctx, owner, id)
	r.record("get_node", start, err)
	return node, err
}

func (r *MetricsRepository) ListChildren(ctx context.Context, owner string, parent valueobjects.NodeID) ([]*entities.Node, error) {
	start := time.Now()
	nodes, err := r.inner.ListChildren(ctx, owner, parent)
	r.record("list_children", start, err)
	return nodes, err
}

func (r *MetricsRepository) CreateNode(ctx context.Context, owner string, node *entities.Node) (*entities.Node, bool, error) {
	start := time.Now()
	stored, created, err := r.inner.CreateNode(ctx, owner, node)
	r.record("create_node", start, err)
	if created {
		r.metrics.NodesCreated.Inc()
	}
	return stored, created, err
}

func (r *MetricsRepository) UpdateNode(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (*entities.Node, error) {
	start := time.Now()
	node, err := r.inner.UpdateNode(ctx, owner, id, patch)
	r.record("update_node", start, err)
	if pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation) {
		r.metrics.StaleMutations.Inc()
	}
	return node, err
}

func (r *MetricsRepository) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) error {
	start := time.Now()
	err := r.inner.DeleteNode(ctx, owner, id)
	r.record("delete_node", start, err)
	if err == nil {
		r.metrics.NodesDeleted.Inc()
	}
	return err
}

func (r *MetricsRepository) ListEdges(ctx context.Context, owner string) ([]*entities.Edge, error) {
	start := time.Now()
	edges, err := r.inner.ListEdges(ctx, owner)
	r.record("list_edges", start, err)
	return edges, err
}

func (r *MetricsRepository) ListEdgesForNode(ctx context.Context, owner string, id valueobjects.NodeID) ([]*entities.Edge, error) {
	start := time.Now()
	edges, err := r.inner.ListEdgesForNode(ctx, owner, id)
	r.record("list_edges_for_node", start, err)
	return edges, err
}

func (r *MetricsRepository) CreateEdge(ctx context.Context, owner string, edge *entities.Edge) (*entities.Edge, bool, error) {
	start := time.Now()
	stored, created, err := r.inner.CreateEdge(ctx, owner, edge)
	r.record("create_edge", start, err)
	if created {
		r.metrics.EdgesCreated.Inc()
	}
	return stored, created, err
}

func (r *MetricsRepository) DeleteEdge(ctx context.Context, owner string, id string) error {
	start := time.Now()
	err := r.inner.DeleteEdge(ctx, owner, id)
	r.record("delete_edge", start, err)
	return err
}

func (r *MetricsRepository) CascadeNodes(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	start := time.Now()
	removed, err := r.inner.CascadeNodes(ctx, owner, req)
	r.record("cascade_nodes", start, err)
	if err == nil {
		r.metrics.NodesDeleted.Add(float64(len(req.Delete)))
		r.metrics.EdgesCascaded.Add(float64(len(removed)))
	}
	return removed, err
}

func (r *MetricsRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.inner)
}
