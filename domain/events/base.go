package events

import (
	"time"

	"github.com/google/uuid"
)

// SourceCanvas is the event source name used on the event bus
const SourceCanvas = "lifeos.canvas"

// Event types
const (
	TypeNodeCreated = "node.created"
	TypeNodeUpdated = "node.updated"
	TypeNodeDeleted = "node.deleted"
	TypeEdgeCreated = "edge.created"
	TypeEdgeDeleted = "edge.deleted"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetEventID() string
	GetAggregateID() string
	GetOwnerID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventID     string    `json:"event_id"`
	AggregateID string    `json:"aggregate_id"`
	OwnerID     string    `json:"owner_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
}

func newBase(eventType, aggregateID, ownerID string, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:     uuid.NewString(),
		AggregateID: aggregateID,
		OwnerID:     ownerID,
		EventType:   eventType,
		Timestamp:   at,
	}
}

func (e BaseEvent) GetEventID() string      { return e.EventID }
func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetOwnerID() string      { return e.OwnerID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// Node Events

// NodeCreated is raised when a node is persisted for the first time
type NodeCreated struct {
	BaseEvent
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	ParentID string `json:"parent_id,omitempty"`
}

// NewNodeCreated creates a NodeCreated event
func NewNodeCreated(ownerID, nodeID, kind, label, parentID string, at time.Time) NodeCreated {
	return NodeCreated{
		BaseEvent: newBase(TypeNodeCreated, nodeID, ownerID, at),
		Kind:      kind,
		Label:     label,
		ParentID:  parentID,
	}
}

// NodeUpdated is raised when a patch is applied to a node
type NodeUpdated struct {
	BaseEvent
	Fields []string `json:"fields"`
	Seq    int64    `json:"seq,omitempty"`
}

// NewNodeUpdated creates a NodeUpdated event
func NewNodeUpdated(ownerID, nodeID string, fields []string, seq int64, at time.Time) NodeUpdated {
	return NodeUpdated{
		BaseEvent: newBase(TypeNodeUpdated, nodeID, ownerID, at),
		Fields:    fields,
		Seq:       seq,
	}
}

// NodeDeleted is raised after a node and its edges are gone
type NodeDeleted struct {
	BaseEvent
	RemovedEdges  []string `json:"removed_edges,omitempty"`
	OrphanPolicy  string   `json:"orphan_policy"`
	AffectedNodes []string `json:"affected_nodes,omitempty"`
}

// NewNodeDeleted creates a NodeDeleted event
func NewNodeDeleted(ownerID, nodeID string, removedEdges []string, policy string, affected []string, at time.Time) NodeDeleted {
	return NodeDeleted{
		BaseEvent:     newBase(TypeNodeDeleted, nodeID, ownerID, at),
		RemovedEdges:  removedEdges,
		OrphanPolicy:  policy,
		AffectedNodes: affected,
	}
}

// Edge Events

// EdgeCreated is raised when two nodes are connected
type EdgeCreated struct {
	BaseEvent
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

// NewEdgeCreated creates an EdgeCreated event
func NewEdgeCreated(ownerID, edgeID, source, target, kind string, at time.Time) EdgeCreated {
	return EdgeCreated{
		BaseEvent: newBase(TypeEdgeCreated, edgeID, ownerID, at),
		Source:    source,
		Target:    target,
		Kind:      kind,
	}
}

// EdgeDeleted is raised when an edge is removed directly or by cascade
type EdgeDeleted struct {
	BaseEvent
	Cascade bool `json:"cascade"`
}

// NewEdgeDeleted creates an EdgeDeleted event
func NewEdgeDeleted(ownerID, edgeID string, cascade bool, at time.Time) EdgeDeleted {
	return EdgeDeleted{
		BaseEvent: newBase(TypeEdgeDeleted, edgeID, ownerID, at),
		Cascade:   cascade,
	}
}
