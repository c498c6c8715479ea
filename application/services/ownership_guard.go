package services

import (
	"context"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/pkg/auth"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// OwnershipGuard wraps a GraphRepository and rejects every call whose owner
// argument differs from the identity carried on the context. Records that
// arrive without an owner are stamped with the caller's identity; records
// that name another owner are refused.
type OwnershipGuard struct {
	inner ports.GraphRepository
}

var _ ports.GraphRepository = (*OwnershipGuard)(nil)

// NewOwnershipGuard wraps inner
func NewOwnershipGuard(inner ports.GraphRepository) *OwnershipGuard {
	return &OwnershipGuard{inner: inner}
}

func (g *OwnershipGuard) authorize(ctx context.Context, owner string) error {
	return auth.AuthorizeOwner(ctx, owner)
}

func (g *OwnershipGuard) stamp(recordOwner, owner string) error {
	if recordOwner != "" && recordOwner != owner {
		return pkgerrors.NewForbiddenError("cannot write records for another owner").
			WithCode(pkgerrors.CodeOwnerMismatch)
	}
	return nil
}

func (g *OwnershipGuard) ListNodes(ctx context.Context, owner string) ([]*entities.Node, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return g.inner.ListNodes(ctx, owner)
}

func (g *OwnershipGuard) GetNode(ctx context.Context, owner string, id valueobjects.NodeID) (*entities.Node, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return g.inner.GetNode(ctx, owner, id)
}

func (g *OwnershipGuard) ListChildren(ctx context.Context, owner string, parent valueobjects.NodeID) ([]*entities.Node, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return g.inner.ListChildren(ctx, owner, parent)
}

func (g *OwnershipGuard) CreateNode(ctx context.Context, owner string, node *entities.Node) (*entities.Node, bool, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, false, err
	}
	if err := g.stamp(node.OwnerID(), owner); err != nil {
		return nil, false, err
	}
	node.AssignOwner(owner)
	return g.inner.CreateNode(ctx, owner, node)
}

func (g *OwnershipGuard) UpdateNode(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (*entities.Node, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return g.inner.UpdateNode(ctx, owner, id, patch)
}

func (g *OwnershipGuard) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) error {
	if err := g.authorize(ctx, owner); err != nil {
		return err
	}
	return g.inner.DeleteNode(ctx, owner, id)
}

func (g *OwnershipGuard) ListEdges(ctx context.Context, owner string) ([]*entities.Edge, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return g.inner.ListEdges(ctx, owner)
}

func (g *OwnershipGuard) ListEdgesForNode(ctx context.Context, owner string, id valueobjects.NodeID) ([]*entities.Edge, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return g.inner.ListEdgesForNode(ctx, owner, id)
}

func (g *OwnershipGuard) CreateEdge(ctx context.Context, owner string, edge *entities.Edge) (*entities.Edge, bool, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, false, err
	}
	if err := g.stamp(edge.OwnerID(), owner); err != nil {
		return nil, false, err
	}
	edge.AssignOwner(owner)
	return g.inner.CreateEdge(ctx, owner, edge)
}

func (g *OwnershipGuard) DeleteEdge(ctx context.Context, owner string, id string) error {
	if err := g.authorize(ctx, owner); err != nil {
		return err
	}
	return g.inner.DeleteEdge(ctx, owner, id)
}

func (g *OwnershipGuard) CascadeNodes(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	if err := g.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return g.inner.CascadeNodes(ctx, owner, req)
}
