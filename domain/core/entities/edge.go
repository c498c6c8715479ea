package entities

import (
	"fmt"
	"time"

	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/events"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// EdgeKind is the connection style of an edge
type EdgeKind string

const (
	EdgeKindDefault      EdgeKind = "default"
	EdgeKindSmoothStep   EdgeKind = "smoothstep"
	EdgeKindStep         EdgeKind = "step"
	EdgeKindStraight     EdgeKind = "straight"
	EdgeKindSimpleBezier EdgeKind = "simplebezier"
)

// ParseEdgeKind maps a wire value to an EdgeKind; empty means default.
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch k := EdgeKind(s); k {
	case "":
		return EdgeKindDefault, nil
	case EdgeKindDefault, EdgeKindSmoothStep, EdgeKindStep, EdgeKindStraight, EdgeKindSimpleBezier:
		return k, nil
	default:
		return "", pkgerrors.NewValidationError(fmt.Sprintf("unknown edge kind %q", s))
	}
}

// EdgeIDFor builds the id the canvas assigns to a connection: edge-<source>-<target>.
func EdgeIDFor(source, target valueobjects.NodeID) string {
	return fmt.Sprintf("edge-%s-%s", source, target)
}

// Edge connects two nodes of the same owner. It is rendered only when both
// endpoints are visible.
type Edge struct {
	id        string
	ownerID   string
	source    valueobjects.NodeID
	target    valueobjects.NodeID
	kind      EdgeKind
	createdAt time.Time

	events []events.DomainEvent
}

// NewEdge creates an edge for owner
func NewEdge(id, ownerID string, source, target valueobjects.NodeID, kind EdgeKind, now time.Time) (*Edge, error) {
	edge, err := ReconstructEdge(id, ownerID, source, target, kind, now)
	if err != nil {
		return nil, err
	}
	edge.events = append(edge.events, events.NewEdgeCreated(ownerID, id, source.String(), target.String(), string(edge.kind), now))
	return edge, nil
}

// ReconstructEdge rebuilds an edge from storage
func ReconstructEdge(id, ownerID string, source, target valueobjects.NodeID, kind EdgeKind, createdAt time.Time) (*Edge, error) {
	if err := valueobjects.ValidateID(id); err != nil {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("edge id: %v", err))
	}
	if source.IsZero() || target.IsZero() {
		return nil, pkgerrors.NewValidationError("edge source and target are required")
	}
	if kind == "" {
		kind = EdgeKindDefault
	}
	return &Edge{
		id:        id,
		ownerID:   ownerID,
		source:    source,
		target:    target,
		kind:      kind,
		createdAt: createdAt,
	}, nil
}

// ID returns the edge identifier
func (e *Edge) ID() string { return e.id }

// OwnerID returns the owner's ID
func (e *Edge) OwnerID() string { return e.ownerID }

// Source returns the source node id
func (e *Edge) Source() valueobjects.NodeID { return e.source }

// Target returns the target node id
func (e *Edge) Target() valueobjects.NodeID { return e.target }

// Kind returns the connection style
func (e *Edge) Kind() EdgeKind { return e.kind }

// CreatedAt returns when the edge was created
func (e *Edge) CreatedAt() time.Time { return e.createdAt }

// Touches reports whether the edge references node id as either endpoint
func (e *Edge) Touches(id valueobjects.NodeID) bool {
	return e.source.Equals(id) || e.target.Equals(id)
}

// AssignOwner stamps the owner on an edge that was built without one
func (e *Edge) AssignOwner(ownerID string) {
	e.ownerID = ownerID
}

// Clone returns a copy without pending events
func (e *Edge) Clone() *Edge {
	c := *e
	c.events = nil
	return &c
}

// GetUncommittedEvents returns all uncommitted domain events
func (e *Edge) GetUncommittedEvents() []events.DomainEvent {
	return e.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (e *Edge) MarkEventsAsCommitted() {
	e.events = nil
}
