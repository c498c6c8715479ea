package entities

import (
	"fmt"
	"time"

	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/events"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// MaxLabelLength bounds node labels
const MaxLabelLength = 200

// NodeKind is the closed set of node types the canvas can render
type NodeKind string

const (
	NodeKindDefault NodeKind = "default"
	NodeKindService NodeKind = "service"
	NodeKindInput   NodeKind = "input"
	NodeKindOutput  NodeKind = "output"
	NodeKindGroup   NodeKind = "group"
)

// ParseNodeKind maps a wire value to a NodeKind; empty means default.
func ParseNodeKind(s string) (NodeKind, error) {
	switch k := NodeKind(s); k {
	case "":
		return NodeKindDefault, nil
	case NodeKindDefault, NodeKindService, NodeKindInput, NodeKindOutput, NodeKindGroup:
		return k, nil
	default:
		return "", pkgerrors.NewValidationError(fmt.Sprintf("unknown node kind %q", s))
	}
}

// Node is a canvas item. It may live inside another node's sub-canvas via
// payload.parentId; nesting never implies ownership or lifetime.
type Node struct {
	id        valueobjects.NodeID
	ownerID   string
	kind      NodeKind
	label     string
	position  valueobjects.Position
	payload   valueobjects.Payload
	seq       int64
	createdAt time.Time
	updatedAt time.Time

	events []events.DomainEvent
}

// NewNode creates a node for owner. The id comes from the client.
func NewNode(
	id valueobjects.NodeID,
	ownerID string,
	kind NodeKind,
	label string,
	position valueobjects.Position,
	payload valueobjects.Payload,
	now time.Time,
) (*Node, error) {
	node, err := ReconstructNode(id, ownerID, kind, label, position, payload, 0, now, now)
	if err != nil {
		return nil, err
	}

	parentID := ""
	if parent, ok := payload.ParentID(); ok {
		parentID = parent.String()
	}
	node.addEvent(events.NewNodeCreated(ownerID, id.String(), string(kind), label, parentID, now))

	return node, nil
}

// ReconstructNode rebuilds a node from storage
func ReconstructNode(
	id valueobjects.NodeID,
	ownerID string,
	kind NodeKind,
	label string,
	position valueobjects.Position,
	payload valueobjects.Payload,
	seq int64,
	createdAt, updatedAt time.Time,
) (*Node, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("node id cannot be empty")
	}
	if kind == "" {
		kind = NodeKindDefault
	}
	if len(label) > MaxLabelLength {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("label must be at most %d characters", MaxLabelLength))
	}
	if parent, ok := payload.ParentID(); ok && parent.Equals(id) {
		return nil, pkgerrors.NewValidationError("a node cannot be its own parent")
	}

	return &Node{
		id:        id,
		ownerID:   ownerID,
		kind:      kind,
		label:     label,
		position:  position,
		payload:   payload,
		seq:       seq,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}, nil
}

// ID returns the node's identifier
func (n *Node) ID() valueobjects.NodeID { return n.id }

// OwnerID returns the owner's ID
func (n *Node) OwnerID() string { return n.ownerID }

// Kind returns the node type
func (n *Node) Kind() NodeKind { return n.kind }

// Label returns the display label
func (n *Node) Label() string { return n.label }

// Position returns the node's position
func (n *Node) Position() valueobjects.Position { return n.position }

// Payload returns the attribute bag
func (n *Node) Payload() valueobjects.Payload { return n.payload }

// Seq returns the last applied client mutation sequence number
func (n *Node) Seq() int64 { return n.seq }

// CreatedAt returns when the node was created
func (n *Node) CreatedAt() time.Time { return n.createdAt }

// UpdatedAt returns when the node was last updated
func (n *Node) UpdatedAt() time.Time { return n.updatedAt }

// ParentID returns the nesting parent, if any
func (n *Node) ParentID() (valueobjects.NodeID, bool) {
	return n.payload.ParentID()
}

// ParentKey returns the parent id, or "" for root-canvas nodes
func (n *Node) ParentKey() string {
	if parent, ok := n.payload.ParentID(); ok {
		return parent.String()
	}
	return ""
}

// HasSubBlocks reports whether the node carries sub-block content. Together
// with "has children" this is what makes a node navigable.
func (n *Node) HasSubBlocks() bool {
	return n.payload.HasSubBlocks()
}

// AssignOwner stamps the owner on a node that was built without one
func (n *Node) AssignOwner(ownerID string) {
	n.ownerID = ownerID
}

// NodePatch is a partial update. Absent fields are untouched; explicit nulls
// clear (label to "", coordinates to 0, payload to {}).
type NodePatch struct {
	X       common.Optional[float64]
	Y       common.Optional[float64]
	Label   common.Optional[string]
	Payload common.Optional[valueobjects.Payload]
	Seq     int64
}

// IsEmpty reports whether the patch touches no field
func (p NodePatch) IsEmpty() bool {
	return !p.X.Set && !p.Y.Set && !p.Label.Set && !p.Payload.Set
}

// Fields lists the names of the fields present in the patch
func (p NodePatch) Fields() []string {
	var fields []string
	if p.X.Set {
		fields = append(fields, "x")
	}
	if p.Y.Set {
		fields = append(fields, "y")
	}
	if p.Label.Set {
		fields = append(fields, "label")
	}
	if p.Payload.Set {
		fields = append(fields, "payload")
	}
	return fields
}

// NewParent returns the parent the patch would assign: (id, true) when the
// patch nests the node, (zero, true) when it moves it to root, and
// (zero, false) when the parent is not touched.
func (p NodePatch) NewParent() (valueobjects.NodeID, bool) {
	if !p.Payload.Set {
		return valueobjects.NodeID{}, false
	}
	if p.Payload.Null {
		return valueobjects.NodeID{}, true
	}
	parent, _ := p.Payload.Value.ParentID()
	return parent, true
}

// CheckSeq rejects a patch whose sequence number is older than the last one
// applied. Patches without a sequence number are always accepted.
func (n *Node) CheckSeq(seq int64) error {
	if seq > 0 && seq < n.seq {
		return pkgerrors.NewStaleMutationError(n.id.String(), seq, n.seq)
	}
	return nil
}

// Apply applies a patch field-by-field. Either the whole patch applies or the
// node is left untouched.
func (n *Node) Apply(patch NodePatch, now time.Time) error {
	if err := n.CheckSeq(patch.Seq); err != nil {
		return err
	}

	position := n.position
	var err error
	if patch.X.Set {
		if position, err = position.WithX(patch.X.Value); err != nil {
			return err
		}
	}
	if patch.Y.Set {
		if position, err = position.WithY(patch.Y.Value); err != nil {
			return err
		}
	}

	label := n.label
	if patch.Label.Set {
		label = patch.Label.Value
		if len(label) > MaxLabelLength {
			return pkgerrors.NewValidationError(fmt.Sprintf("label must be at most %d characters", MaxLabelLength))
		}
	}

	payload := n.payload
	if patch.Payload.Set {
		payload = patch.Payload.Value
		if patch.Payload.Null {
			payload = valueobjects.EmptyPayload()
		}
		if parent, ok := payload.ParentID(); ok && parent.Equals(n.id) {
			return pkgerrors.NewValidationError("a node cannot be its own parent")
		}
	}

	n.position = position
	n.label = label
	n.payload = payload
	if patch.Seq > n.seq {
		n.seq = patch.Seq
	}
	n.updatedAt = now

	n.addEvent(events.NewNodeUpdated(n.ownerID, n.id.String(), patch.Fields(), patch.Seq, now))
	return nil
}

// Reparent moves the node to the root canvas. Used by the orphan policy.
func (n *Node) Reparent(now time.Time) {
	n.payload = n.payload.WithoutParent()
	n.updatedAt = now
	n.addEvent(events.NewNodeUpdated(n.ownerID, n.id.String(), []string{"payload"}, 0, now))
}

// Clone returns a deep copy without pending events
func (n *Node) Clone() *Node {
	c := *n
	c.events = nil
	return &c
}

// GetUncommittedEvents returns all uncommitted domain events
func (n *Node) GetUncommittedEvents() []events.DomainEvent {
	return n.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (n *Node) MarkEventsAsCommitted() {
	n.events = nil
}

func (n *Node) addEvent(event events.DomainEvent) {
	n.events = append(n.events, event)
}
