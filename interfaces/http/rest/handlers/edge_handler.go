package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands"
	"github.com/MartinFunctu/lifeos/application/commands/bus"
	"github.com/MartinFunctu/lifeos/application/queries"
	querybus "github.com/MartinFunctu/lifeos/application/queries/bus"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/pkg/api"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// EdgeHandler handles edge-related HTTP requests
type EdgeHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewEdgeHandler creates a new edge handler
func NewEdgeHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *EdgeHandler {
	return &EdgeHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errHandler,
		logger:     logger,
	}
}

// ListEdges handles GET /edges
func (h *EdgeHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListEdgesQuery{OwnerID: owner})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, api.FromEdges(result.([]*entities.Edge)))
}

// CreateEdge handles POST /edges
func (h *EdgeHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var req api.CreateEdgeRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		h.errors.Handle(w, r, invalidBody(err))
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.CreateEdgeCommand{
		OwnerID:        owner,
		RequestedOwner: req.OwnerID,
		EdgeID:         req.ID,
		Source:         req.Source,
		Target:         req.Target,
		Kind:           req.Kind,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	created := result.(*commands.CreateEdgeResult)
	status := http.StatusOK
	if created.Created {
		status = http.StatusCreated
	}
	common.RespondJSON(w, status, api.FromEdge(created.Edge))
}

// DeleteEdge handles DELETE /edges/{edgeID}
func (h *EdgeHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	edgeID := chi.URLParam(r, "edgeID")
	if _, err := h.commandBus.Send(r.Context(), commands.DeleteEdgeCommand{
		OwnerID: owner,
		EdgeID:  edgeID,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.logger.Debug("Edge deleted", zap.String("edgeID", edgeID))
	common.RespondNoContent(w)
}
