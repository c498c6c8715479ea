package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/application/queries"
	"github.com/MartinFunctu/lifeos/application/queries/bus"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/domain/view"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// GraphQueryHandler answers the read side of the canvas
type GraphQueryHandler struct {
	repo   ports.GraphRepository
	logger *zap.Logger
}

// NewGraphQueryHandler creates a new query handler
func NewGraphQueryHandler(repo ports.GraphRepository, logger *zap.Logger) *GraphQueryHandler {
	return &GraphQueryHandler{repo: repo, logger: logger}
}

// Register registers the handler for every query type it answers
func (h *GraphQueryHandler) Register(b *bus.QueryBus) error {
	for _, q := range []bus.Query{
		queries.ListNodesQuery{},
		queries.ListEdgesQuery{},
		queries.GetNodeQuery{},
		queries.ListChildrenQuery{},
		queries.GetViewQuery{},
	} {
		if err := b.Register(q, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements bus.QueryHandler
func (h *GraphQueryHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	switch q := q.(type) {
	case queries.ListNodesQuery:
		return h.repo.ListNodes(ctx, q.OwnerID)
	case queries.ListEdgesQuery:
		return h.repo.ListEdges(ctx, q.OwnerID)
	case queries.GetNodeQuery:
		id, err := valueobjects.NewNodeIDFromString(q.NodeID)
		if err != nil {
			return nil, err
		}
		return h.repo.GetNode(ctx, q.OwnerID, id)
	case queries.ListChildrenQuery:
		id, err := valueobjects.NewNodeIDFromString(q.ParentID)
		if err != nil {
			return nil, err
		}
		if _, err := h.repo.GetNode(ctx, q.OwnerID, id); err != nil {
			return nil, err
		}
		return h.repo.ListChildren(ctx, q.OwnerID, id)
	case queries.GetViewQuery:
		return h.view(ctx, q)
	default:
		return nil, fmt.Errorf("unexpected query type %T", q)
	}
}

// view loads nodes and edges concurrently and resolves the slice visible at
// the query's path. Every crumb must name an existing node.
func (h *GraphQueryHandler) view(ctx context.Context, q queries.GetViewQuery) (*queries.ViewResult, error) {
	var (
		nodes []*entities.Node
		edges []*entities.Edge
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nodes, err = h.repo.ListNodes(gCtx, q.OwnerID)
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = h.repo.ListEdges(gCtx, q.OwnerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]*entities.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID().String()] = n
	}

	path := make(navigation.Path, 0, len(q.Path))
	for _, crumb := range q.Path {
		n, ok := byID[crumb.NodeID]
		if !ok {
			return nil, pkgerrors.NewNodeNotFoundError(crumb.NodeID)
		}
		path = append(path, navigation.Crumb{NodeID: crumb.NodeID, Label: n.Label()})
	}

	v := view.BuildChildIndex(nodes).Resolve(byID, edges, path)
	h.logger.Debug("View resolved",
		zap.String("path", path.String()),
		zap.Int("nodes", len(v.Nodes)),
		zap.Int("edges", len(v.Edges)),
	)
	return &queries.ViewResult{Path: path, View: v}, nil
}
