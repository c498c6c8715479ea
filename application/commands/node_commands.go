package commands

import (
	"time"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
	"github.com/MartinFunctu/lifeos/pkg/utils"
)

// CreateNodeCommand represents the command to create a node on an owner's canvas
type CreateNodeCommand struct {
	OwnerID string `json:"ownerId" validate:"required"`
	// RequestedOwner is the ownerId named in the request body, if any
	RequestedOwner string                 `json:"requestedOwner,omitempty"`
	NodeID         string                 `json:"id" validate:"required,entityid"`
	Kind           string                 `json:"kind" validate:"omitempty,oneof=default service input output group"`
	Label          string                 `json:"label" validate:"required,max=200"`
	X              float64                `json:"x" validate:"finite"`
	Y              float64                `json:"y" validate:"finite"`
	Payload        map[string]interface{} `json:"payload"`
}

// Validate validates the command
func (c CreateNodeCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// BuildNode builds the node entity the command describes. Records naming a
// different owner keep that owner so the ownership guard can refuse them.
func (c CreateNodeCommand) BuildNode(now time.Time) (*entities.Node, error) {
	id, err := valueobjects.NewNodeIDFromString(c.NodeID)
	if err != nil {
		return nil, err
	}
	kind, err := entities.ParseNodeKind(c.Kind)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(c.X, c.Y)
	if err != nil {
		return nil, err
	}
	payload, err := valueobjects.NewPayload(c.Payload)
	if err != nil {
		return nil, err
	}

	owner := c.OwnerID
	if c.RequestedOwner != "" {
		owner = c.RequestedOwner
	}
	return entities.NewNode(id, owner, kind, c.Label, position, payload, now)
}

// CreateNodeResult is returned by the create node handler
type CreateNodeResult struct {
	Node    *entities.Node
	Created bool
}

// UpdateNodeCommand applies a partial update to a node
type UpdateNodeCommand struct {
	OwnerID string `validate:"required"`
	NodeID  string `validate:"required,entityid"`
	Patch   entities.NodePatch
}

// Validate validates the command
func (c UpdateNodeCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}
	if c.Patch.IsEmpty() {
		return pkgerrors.NewValidationError("update must change at least one of x, y, label, payload")
	}
	if c.Patch.Seq < 0 {
		return pkgerrors.NewValidationError("seq must not be negative")
	}
	return nil
}

// DeleteNodeCommand deletes a node and every edge that references it
type DeleteNodeCommand struct {
	OwnerID string `validate:"required"`
	NodeID  string `validate:"required,entityid"`
}

// Validate validates the command
func (c DeleteNodeCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// SeedWorkspaceCommand creates the default root node of an owner's canvas
type SeedWorkspaceCommand struct {
	OwnerID string `validate:"required"`
}

// Validate validates the command
func (c SeedWorkspaceCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}
	if !utils.IsValidEntityID(RootNodeID(c.OwnerID)) {
		return pkgerrors.NewValidationError("owner id cannot be used in a node id")
	}
	return nil
}

// RootNodeLabel is the label of the seeded root node
const RootNodeLabel = "LifeOS"

// RootNodeID returns the id of the seeded root node for owner
func RootNodeID(owner string) string {
	return "node-lifeos-" + owner
}
