package handlers

import (
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands"
	"github.com/MartinFunctu/lifeos/application/commands/bus"
	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/application/services"
)

// Register wires every command handler into b
func Register(
	b *bus.CommandBus,
	repo ports.GraphRepository,
	cascade *services.CascadeCoordinator,
	eventBus ports.EventBus,
	logger *zap.Logger,
) error {
	create := NewCreateNodeHandler(repo, eventBus, logger)
	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.CreateNodeCommand{}, create},
		{commands.UpdateNodeCommand{}, NewUpdateNodeHandler(repo, eventBus, logger)},
		{commands.DeleteNodeCommand{}, NewDeleteNodeHandler(cascade)},
		{commands.SeedWorkspaceCommand{}, NewSeedWorkspaceHandler(create)},
		{commands.CreateEdgeCommand{}, NewCreateEdgeHandler(repo, eventBus, logger)},
		{commands.DeleteEdgeCommand{}, NewDeleteEdgeHandler(repo, eventBus, logger)},
	}
	for _, r := range registrations {
		if err := b.Register(r.cmd, r.handler); err != nil {
			return err
		}
	}
	return nil
}
