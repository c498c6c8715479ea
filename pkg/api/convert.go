package api

import (
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/pkg/common"
)

// ToNode rebuilds a node entity from its wire form
func ToNode(n Node) (*entities.Node, error) {
	id, err := valueobjects.NewNodeIDFromString(n.ID)
	if err != nil {
		return nil, err
	}
	kind, err := entities.ParseNodeKind(n.Kind)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(n.X, n.Y)
	if err != nil {
		return nil, err
	}
	payload, err := valueobjects.NewPayload(n.Payload)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructNode(id, n.OwnerID, kind, n.Label, position, payload, n.Seq, n.CreatedAt, n.UpdatedAt)
}

// ToEdge rebuilds an edge entity from its wire form
func ToEdge(e Edge) (*entities.Edge, error) {
	source, err := valueobjects.NewNodeIDFromString(e.Source)
	if err != nil {
		return nil, err
	}
	target, err := valueobjects.NewNodeIDFromString(e.Target)
	if err != nil {
		return nil, err
	}
	kind, err := entities.ParseEdgeKind(e.Kind)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructEdge(e.ID, e.OwnerID, source, target, kind, e.CreatedAt)
}

// NewCreateNodeRequest builds the create request for a node entity
func NewCreateNodeRequest(n *entities.Node) CreateNodeRequest {
	return CreateNodeRequest{
		ID:      n.ID().String(),
		Kind:    string(n.Kind()),
		Label:   n.Label(),
		X:       n.Position().X(),
		Y:       n.Position().Y(),
		Payload: n.Payload().Map(),
	}
}

// NewCreateEdgeRequest builds the create request for an edge entity
func NewCreateEdgeRequest(e *entities.Edge) CreateEdgeRequest {
	return CreateEdgeRequest{
		ID:     e.ID(),
		Source: e.Source().String(),
		Target: e.Target().String(),
		Kind:   string(e.Kind()),
	}
}

// Patch converts the request to a domain patch
func (r UpdateNodeRequest) Patch() (entities.NodePatch, error) {
	patch := entities.NodePatch{
		X:     r.X,
		Y:     r.Y,
		Label: r.Label,
		Seq:   r.Seq,
	}
	switch {
	case !r.Payload.Set:
	case r.Payload.Null:
		patch.Payload = common.Null[valueobjects.Payload]()
	default:
		payload, err := valueobjects.NewPayload(r.Payload.Value)
		if err != nil {
			return entities.NodePatch{}, err
		}
		patch.Payload = common.Some(payload)
	}
	return patch, nil
}
