package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands"
	"github.com/MartinFunctu/lifeos/application/commands/bus"
	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/events"
)

// CreateEdgeHandler handles edge creation commands
type CreateEdgeHandler struct {
	repo     ports.GraphRepository
	eventBus ports.EventBus
	logger   *zap.Logger
	now      func() time.Time
}

// NewCreateEdgeHandler creates a new create edge handler
func NewCreateEdgeHandler(repo ports.GraphRepository, eventBus ports.EventBus, logger *zap.Logger) *CreateEdgeHandler {
	return &CreateEdgeHandler{repo: repo, eventBus: eventBus, logger: logger, now: time.Now}
}

// Handle executes the create edge command
func (h *CreateEdgeHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.CreateEdgeCommand)
	if !ok {
		return nil, unexpected(c)
	}

	edge, err := cmd.BuildEdge(h.now())
	if err != nil {
		return nil, err
	}

	stored, created, err := h.repo.CreateEdge(ctx, cmd.OwnerID, edge)
	if err != nil {
		return nil, err
	}

	if created {
		publish(ctx, h.eventBus, h.logger, edge.GetUncommittedEvents()...)
		edge.MarkEventsAsCommitted()
		h.logger.Info("Edge created",
			zap.String("edgeID", stored.ID()),
			zap.String("source", cmd.Source),
			zap.String("target", cmd.Target),
		)
	}

	return &commands.CreateEdgeResult{Edge: stored, Created: created}, nil
}

// DeleteEdgeHandler handles edge deletion commands
type DeleteEdgeHandler struct {
	repo     ports.GraphRepository
	eventBus ports.EventBus
	logger   *zap.Logger
	now      func() time.Time
}

// NewDeleteEdgeHandler creates a new delete edge handler
func NewDeleteEdgeHandler(repo ports.GraphRepository, eventBus ports.EventBus, logger *zap.Logger) *DeleteEdgeHandler {
	return &DeleteEdgeHandler{repo: repo, eventBus: eventBus, logger: logger, now: time.Now}
}

// Handle executes the delete edge command
func (h *DeleteEdgeHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.DeleteEdgeCommand)
	if !ok {
		return nil, unexpected(c)
	}

	if err := h.repo.DeleteEdge(ctx, cmd.OwnerID, cmd.EdgeID); err != nil {
		return nil, err
	}

	publish(ctx, h.eventBus, h.logger, events.NewEdgeDeleted(cmd.OwnerID, cmd.EdgeID, false, h.now()))
	h.logger.Info("Edge deleted", zap.String("edgeID", cmd.EdgeID))
	return nil, nil
}
