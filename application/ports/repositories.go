package ports

import (
	"context"
	"errors"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/events"
)

// ErrAtomicCascadeUnsupported is returned by CascadeNodes when the store
// cannot apply the request in one atomic step. Nothing has been changed; the
// caller falls back to deleting edges before nodes.
var ErrAtomicCascadeUnsupported = errors.New("atomic cascade not supported for this request")

// ErrCascadePlanStale is returned by CascadeNodes when a consistent read shows
// children that req does not account for under req.Orphans. Nothing has been
// changed; the caller plans again.
var ErrCascadePlanStale = errors.New("cascade plan does not match stored children")

// GraphRepository is the durable, owner-scoped store of nodes and edges.
//
// Every method is scoped by owner. A target id that exists under another
// owner behaves exactly like a missing id.
type GraphRepository interface {
	ListNodes(ctx context.Context, owner string) ([]*entities.Node, error)
	GetNode(ctx context.Context, owner string, id valueobjects.NodeID) (*entities.Node, error)
	ListChildren(ctx context.Context, owner string, parent valueobjects.NodeID) ([]*entities.Node, error)

	// CreateNode persists node. Creating an id that already exists for owner
	// is a no-op returning the stored record with created=false.
	CreateNode(ctx context.Context, owner string, node *entities.Node) (stored *entities.Node, created bool, err error)

	// UpdateNode applies patch field-by-field and returns the canonical record.
	UpdateNode(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (*entities.Node, error)

	// DeleteNode removes a single node record. It does not touch edges;
	// callers go through the cascade coordinator.
	DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) error

	ListEdges(ctx context.Context, owner string) ([]*entities.Edge, error)
	ListEdgesForNode(ctx context.Context, owner string, id valueobjects.NodeID) ([]*entities.Edge, error)
	CreateEdge(ctx context.Context, owner string, edge *entities.Edge) (stored *entities.Edge, created bool, err error)
	DeleteEdge(ctx context.Context, owner string, id string) error

	// CascadeNodes atomically deletes every edge touching req.Delete, moves
	// req.Reparent to the root canvas and deletes req.Delete. It returns the
	// ids of the removed edges.
	CascadeNodes(ctx context.Context, owner string, req CascadeRequest) (removedEdges []string, err error)
}

// CascadeRequest describes one node deletion after the orphan policy has been
// applied: the nodes to delete (the target first) and the children to move
// to the root canvas. Orphans names the policy the plan was built with.
type CascadeRequest struct {
	Delete   []valueobjects.NodeID
	Reparent []valueobjects.NodeID
	Orphans  entities.OrphanPolicy
}

// EventBus publishes domain events after a successful write
type EventBus interface {
	Publish(ctx context.Context, events ...events.DomainEvent) error
}

// HealthChecker is implemented by stores that can report readiness
type HealthChecker interface {
	Ping(ctx context.Context) error
}
