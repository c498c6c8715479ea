package decorators

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// TracingRepository opens one span per store call
type TracingRepository struct {
	inner  ports.GraphRepository
	tracer trace.Tracer
}

var _ ports.GraphRepository = (*TracingRepository)(nil)

// NewTracingRepository wraps inner
func NewTracingRepository(inner ports.GraphRepository, tracer trace.Tracer) *TracingRepository {
	return &TracingRepository{inner: inner, tracer: tracer}
}

func (r *TracingRepository) start(ctx context.Context, op, owner string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("owner.id", owner))
	return r.tracer.Start(ctx, "repository."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// end records err on span. Domain outcomes are recorded as events without
// marking the span failed.
func end(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	if pkgerrors.IsStorage(err) || !pkgerrors.IsAppError(err) {
		span.SetStatus(codes.Error, err.Error())
	}
}

func nodeAttr(id valueobjects.NodeID) attribute.KeyValue {
	return attribute.String("node.id", id.String())
}

func (r *TracingRepository) ListNodes(ctx context.Context, owner string) (nodes []*entities.Node, err error) {
	ctx, span := r.start(ctx, "ListNodes", owner)
	defer func() {
		span.SetAttributes(attribute.Int("result.count", len(nodes)))
		end(span, err)
	}()
	return r.inner.ListNodes(ctx, owner)
}

func (r *TracingRepository) GetNode(ctx context.Context, owner string, id valueobjects.NodeID) (node *entities.Node, err error) {
	ctx, span := r.start(ctx, "GetNode", owner, nodeAttr(id))
	defer func() { end(span, err) }()
	return r.inner.GetNode(ctx, owner, id)
}

func (r *TracingRepository) ListChildren(ctx context.Context, owner string, parent valueobjects.NodeID) (nodes []*entities.Node, err error) {
	ctx, span := r.start(ctx, "ListChildren", owner, attribute.String("parent.id", parent.String()))
	defer func() {
		span.SetAttributes(attribute.Int("result.count", len(nodes)))
		end(span, err)
	}()
	return r.inner.ListChildren(ctx, owner, parent)
}

func (r *TracingRepository) CreateNode(ctx context.Context, owner string, node *entities.Node) (stored *entities.Node, created bool, err error) {
	ctx, span := r.start(ctx, "CreateNode", owner, nodeAttr(node.ID()))
	defer func() {
		span.SetAttributes(attribute.Bool("created", created))
		end(span, err)
	}()
	return r.inner.CreateNode(ctx, owner, node)
}

func (r *TracingRepository) UpdateNode(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (node *entities.Node, err error) {
	ctx, span := r.start(ctx, "UpdateNode", owner, nodeAttr(id),
		attribute.StringSlice("patch.fields", patch.Fields()),
		attribute.Int64("patch.seq", patch.Seq),
	)
	defer func() { end(span, err) }()
	return r.inner.UpdateNode(ctx, owner, id, patch)
}

func (r *TracingRepository) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) (err error) {
	ctx, span := r.start(ctx, "DeleteNode", owner, nodeAttr(id))
	defer func() { end(span, err) }()
	return r.inner.DeleteNode(ctx, owner, id)
}

func (r *TracingRepository) ListEdges(ctx context.Context, owner string) (edges []*entities.Edge, err error) {
	ctx, span := r.start(ctx, "ListEdges", owner)
	defer func() {
		span.SetAttributes(attribute.Int("result.count", len(edges)))
		end(span, err)
	}()
	return r.inner.ListEdges(ctx, owner)
}

func (r *TracingRepository) ListEdgesForNode(ctx context.Context, owner string, id valueobjects.NodeID) (edges []*entities.Edge, err error) {
	ctx, span := r.start(ctx, "ListEdgesForNode", owner, nodeAttr(id))
	defer func() { end(span, err) }()
	return r.inner.ListEdgesForNode(ctx, owner, id)
}

func (r *TracingRepository) CreateEdge(ctx context.Context, owner string, edge *entities.Edge) (stored *entities.Edge, created bool, err error) {
	ctx, span := r.start(ctx, "CreateEdge", owner,
		attribute.String("edge.id", edge.ID()),
		attribute.String("edge.source", edge.Source().String()),
		attribute.String("edge.target", edge.Target().String()),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("created", created))
		end(span, err)
	}()
	return r.inner.CreateEdge(ctx, owner, edge)
}

func (r *TracingRepository) DeleteEdge(ctx context.Context, owner string, id string) (err error) {
	ctx, span := r.start(ctx, "DeleteEdge", owner, attribute.String("edge.id", id))
	defer func() { end(span, err) }()
	return r.inner.DeleteEdge(ctx, owner, id)
}

func (r *TracingRepository) CascadeNodes(ctx context.Context, owner string, req ports.CascadeRequest) (removed []string, err error) {
	ctx, span := r.start(ctx, "CascadeNodes", owner,
		attribute.Int("cascade.delete", len(req.Delete)),
		attribute.Int("cascade.reparent", len(req.Reparent)),
	)
	defer func() {
		span.SetAttributes(attribute.Int("cascade.removed_edges", len(removed)))
		end(span, err)
	}()
	return r.inner.CascadeNodes(ctx, owner, req)
}

func (r *TracingRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.inner)
}
