package commands

import (
	"time"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/pkg/utils"
)

// CreateEdgeCommand connects two nodes of the same owner
type CreateEdgeCommand struct {
	OwnerID        string `json:"ownerId" validate:"required"`
	RequestedOwner string `json:"requestedOwner,omitempty"`
	// EdgeID defaults to edge-<source>-<target>
	EdgeID string `json:"id" validate:"omitempty,entityid"`
	Source string `json:"source" validate:"required,entityid"`
	Target string `json:"target" validate:"required,entityid"`
	Kind   string `json:"kind" validate:"omitempty,oneof=default smoothstep step straight simplebezier"`
}

// Validate validates the command
func (c CreateEdgeCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// BuildEdge builds the edge entity the command describes
func (c CreateEdgeCommand) BuildEdge(now time.Time) (*entities.Edge, error) {
	source, err := valueobjects.NewNodeIDFromString(c.Source)
	if err != nil {
		return nil, err
	}
	target, err := valueobjects.NewNodeIDFromString(c.Target)
	if err != nil {
		return nil, err
	}
	kind, err := entities.ParseEdgeKind(c.Kind)
	if err != nil {
		return nil, err
	}

	id := c.EdgeID
	if id == "" {
		id = entities.EdgeIDFor(source, target)
	}
	owner := c.OwnerID
	if c.RequestedOwner != "" {
		owner = c.RequestedOwner
	}
	return entities.NewEdge(id, owner, source, target, kind, now)
}

// CreateEdgeResult is returned by the create edge handler
type CreateEdgeResult struct {
	Edge    *entities.Edge
	Created bool
}

// DeleteEdgeCommand removes a single edge
type DeleteEdgeCommand struct {
	OwnerID string `validate:"required"`
	EdgeID  string `validate:"required,entityid"`
}

// Validate validates the command
func (c DeleteEdgeCommand) Validate() error {
	return utils.ValidateStruct(c)
}
