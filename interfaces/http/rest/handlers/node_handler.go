package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands"
	"github.com/MartinFunctu/lifeos/application/commands/bus"
	"github.com/MartinFunctu/lifeos/application/queries"
	querybus "github.com/MartinFunctu/lifeos/application/queries/bus"
	"github.com/MartinFunctu/lifeos/application/services"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/pkg/api"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// NodeHandler handles node-related HTTP requests
type NodeHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *NodeHandler {
	return &NodeHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errHandler,
		logger:     logger,
	}
}

// ListNodes handles GET /nodes
func (h *NodeHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListNodesQuery{OwnerID: owner})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, api.FromNodes(result.([]*entities.Node)))
}

// GetNode handles GET /nodes/{nodeID}
func (h *NodeHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetNodeQuery{
		OwnerID: owner,
		NodeID:  chi.URLParam(r, "nodeID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, api.FromNode(result.(*entities.Node)))
}

// ListChildren handles GET /nodes/{nodeID}/children
func (h *NodeHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListChildrenQuery{
		OwnerID:  owner,
		ParentID: chi.URLParam(r, "nodeID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, api.FromNodes(result.([]*entities.Node)))
}

// CreateNode handles POST /nodes. Creating an id that already exists
// answers 200 with the stored node.
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var req api.CreateNodeRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		h.errors.Handle(w, r, invalidBody(err))
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.CreateNodeCommand{
		OwnerID:        owner,
		RequestedOwner: req.OwnerID,
		NodeID:         req.ID,
		Kind:           req.Kind,
		Label:          req.Label,
		X:              req.X,
		Y:              req.Y,
		Payload:        req.Payload,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	created := result.(*commands.CreateNodeResult)
	status := http.StatusOK
	if created.Created {
		status = http.StatusCreated
	}
	common.RespondJSON(w, status, api.FromNode(created.Node))
}

// UpdateNode handles PATCH /nodes/{nodeID}
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var req api.UpdateNodeRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		h.errors.Handle(w, r, invalidBody(err))
		return
	}
	patch, err := req.Patch()
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.UpdateNodeCommand{
		OwnerID: owner,
		NodeID:  chi.URLParam(r, "nodeID"),
		Patch:   patch,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, api.FromNode(result.(*entities.Node)))
}

// DeleteNode handles DELETE /nodes/{nodeID}
func (h *NodeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.DeleteNodeCommand{
		OwnerID: owner,
		NodeID:  chi.URLParam(r, "nodeID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	cascade := result.(*services.CascadeResult)
	h.logger.Debug("Node deleted",
		zap.String("nodeID", cascade.NodeID),
		zap.Int("removedEdges", len(cascade.RemovedEdges)),
		zap.Int("deletedNodes", len(cascade.DeletedNodes)),
	)
	common.RespondNoContent(w)
}
