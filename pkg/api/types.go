// Package api holds the JSON shapes exchanged between the canvas service and
// its clients.
package api

import (
	"time"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/pkg/common"
)

// Node is the wire form of a canvas node
type Node struct {
	ID        string                 `json:"id"`
	OwnerID   string                 `json:"ownerId"`
	Kind      string                 `json:"kind"`
	Label     string                 `json:"label"`
	X         float64                `json:"x"`
	Y         float64                `json:"y"`
	Payload   map[string]interface{} `json:"payload"`
	Seq       int64                  `json:"seq,omitempty"`
	CreatedAt time.Time              `json:"createdAt,omitzero"`
	UpdatedAt time.Time              `json:"updatedAt,omitzero"`
}

// ParentID returns payload.parentId, or "" for root nodes
func (n Node) ParentID() string {
	if s, ok := n.Payload["parentId"].(string); ok {
		return s
	}
	return ""
}

// Edge is the wire form of an edge
type Edge struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// CreateNodeRequest is the body of POST /nodes. OwnerID is optional and
// must match the caller when present.
type CreateNodeRequest struct {
	ID      string                 `json:"id"`
	OwnerID string                 `json:"ownerId,omitempty"`
	Kind    string                 `json:"kind,omitempty"`
	Label   string                 `json:"label"`
	X       float64                `json:"x"`
	Y       float64                `json:"y"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// UpdateNodeRequest is the body of PATCH /nodes/{id}. Absent fields are
// left untouched and explicit nulls clear the field.
type UpdateNodeRequest struct {
	X       common.Optional[float64]                `json:"x,omitzero"`
	Y       common.Optional[float64]                `json:"y,omitzero"`
	Label   common.Optional[string]                 `json:"label,omitzero"`
	Payload common.Optional[map[string]interface{}] `json:"payload,omitzero"`
	Seq     int64                                   `json:"seq,omitempty"`
}

// CreateEdgeRequest is the body of POST /edges
type CreateEdgeRequest struct {
	ID      string `json:"id,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Kind    string `json:"kind,omitempty"`
}

// View is the answer of GET /view
type View struct {
	VisibleNodes []Node          `json:"visibleNodes"`
	VisibleEdges []Edge          `json:"visibleEdges"`
	Path         navigation.Path `json:"path"`
}

// Health is the answer of the health and readiness probes
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// FromNode converts a node entity to its wire form
func FromNode(n *entities.Node) Node {
	return Node{
		ID:        n.ID().String(),
		OwnerID:   n.OwnerID(),
		Kind:      string(n.Kind()),
		Label:     n.Label(),
		X:         n.Position().X(),
		Y:         n.Position().Y(),
		Payload:   n.Payload().Map(),
		Seq:       n.Seq(),
		CreatedAt: n.CreatedAt(),
		UpdatedAt: n.UpdatedAt(),
	}
}

// FromNodes converts a slice of node entities, never returning nil
func FromNodes(nodes []*entities.Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, FromNode(n))
	}
	return out
}

// FromEdge converts an edge entity to its wire form
func FromEdge(e *entities.Edge) Edge {
	return Edge{
		ID:        e.ID(),
		OwnerID:   e.OwnerID(),
		Source:    e.Source().String(),
		Target:    e.Target().String(),
		Kind:      string(e.Kind()),
		CreatedAt: e.CreatedAt(),
	}
}

// FromEdges converts a slice of edge entities, never returning nil
func FromEdges(edges []*entities.Edge) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, FromEdge(e))
	}
	return out
}
