package handlers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands"
	"github.com/MartinFunctu/lifeos/application/commands/bus"
	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/application/services"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/events"
)

// CreateNodeHandler handles node creation commands
type CreateNodeHandler struct {
	repo     ports.GraphRepository
	eventBus ports.EventBus
	logger   *zap.Logger
	now      func() time.Time
}

// NewCreateNodeHandler creates a new create node handler
func NewCreateNodeHandler(repo ports.GraphRepository, eventBus ports.EventBus, logger *zap.Logger) *CreateNodeHandler {
	return &CreateNodeHandler{repo: repo, eventBus: eventBus, logger: logger, now: time.Now}
}

// Handle executes the create node command. Creating an existing id returns
// the stored node unchanged.
func (h *CreateNodeHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.CreateNodeCommand)
	if !ok {
		return nil, unexpected(c)
	}

	node, err := cmd.BuildNode(h.now())
	if err != nil {
		return nil, err
	}

	stored, created, err := h.repo.CreateNode(ctx, cmd.OwnerID, node)
	if err != nil {
		return nil, err
	}

	if created {
		publish(ctx, h.eventBus, h.logger, node.GetUncommittedEvents()...)
		node.MarkEventsAsCommitted()
		h.logger.Info("Node created",
			zap.String("nodeID", cmd.NodeID),
			zap.String("ownerID", cmd.OwnerID),
			zap.String("parentID", stored.ParentKey()),
		)
	} else {
		h.logger.Debug("Node already exists", zap.String("nodeID", cmd.NodeID))
	}

	return &commands.CreateNodeResult{Node: stored, Created: created}, nil
}

// UpdateNodeHandler handles node update commands
type UpdateNodeHandler struct {
	repo     ports.GraphRepository
	eventBus ports.EventBus
	logger   *zap.Logger
	now      func() time.Time
}

// NewUpdateNodeHandler creates a new update node handler
func NewUpdateNodeHandler(repo ports.GraphRepository, eventBus ports.EventBus, logger *zap.Logger) *UpdateNodeHandler {
	return &UpdateNodeHandler{repo: repo, eventBus: eventBus, logger: logger, now: time.Now}
}

// Handle executes the update node command and returns the canonical node
func (h *UpdateNodeHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.UpdateNodeCommand)
	if !ok {
		return nil, unexpected(c)
	}

	id, err := valueobjects.NewNodeIDFromString(cmd.NodeID)
	if err != nil {
		return nil, err
	}

	node, err := h.repo.UpdateNode(ctx, cmd.OwnerID, id, cmd.Patch)
	if err != nil {
		return nil, err
	}

	publish(ctx, h.eventBus, h.logger,
		events.NewNodeUpdated(cmd.OwnerID, cmd.NodeID, cmd.Patch.Fields(), cmd.Patch.Seq, h.now()))

	h.logger.Debug("Node updated",
		zap.String("nodeID", cmd.NodeID),
		zap.Strings("fields", cmd.Patch.Fields()),
		zap.Int64("seq", node.Seq()),
	)
	return node, nil
}

// DeleteNodeHandler handles node deletion commands through the cascade coordinator
type DeleteNodeHandler struct {
	cascade *services.CascadeCoordinator
}

// NewDeleteNodeHandler creates a new delete node handler
func NewDeleteNodeHandler(cascade *services.CascadeCoordinator) *DeleteNodeHandler {
	return &DeleteNodeHandler{cascade: cascade}
}

// Handle executes the delete node command
func (h *DeleteNodeHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.DeleteNodeCommand)
	if !ok {
		return nil, unexpected(c)
	}

	id, err := valueobjects.NewNodeIDFromString(cmd.NodeID)
	if err != nil {
		return nil, err
	}
	return h.cascade.DeleteNode(ctx, cmd.OwnerID, id)
}

// SeedWorkspaceHandler creates the default root node of a canvas
type SeedWorkspaceHandler struct {
	create *CreateNodeHandler
}

// NewSeedWorkspaceHandler creates a new seed handler
func NewSeedWorkspaceHandler(create *CreateNodeHandler) *SeedWorkspaceHandler {
	return &SeedWorkspaceHandler{create: create}
}

// Handle creates the root node if it does not exist yet
func (h *SeedWorkspaceHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.SeedWorkspaceCommand)
	if !ok {
		return nil, unexpected(c)
	}

	return h.create.Handle(ctx, commands.CreateNodeCommand{
		OwnerID: cmd.OwnerID,
		NodeID:  commands.RootNodeID(cmd.OwnerID),
		Kind:    "service",
		Label:   commands.RootNodeLabel,
		Payload: map[string]interface{}{valueobjects.PayloadKeySubBlocks: []interface{}{}},
	})
}

func publish(ctx context.Context, eventBus ports.EventBus, logger *zap.Logger, evts ...events.DomainEvent) {
	if eventBus == nil || len(evts) == 0 {
		return
	}
	if err := eventBus.Publish(ctx, evts...); err != nil {
		logger.Warn("Failed to publish events",
			zap.Int("count", len(evts)),
			zap.Error(err),
		)
	}
}

func unexpected(c bus.Command) error {
	return fmt.Errorf("unexpected command type %T", c)
}
