package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/queries"
	querybus "github.com/MartinFunctu/lifeos/application/queries/bus"
	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/pkg/api"
	"github.com/MartinFunctu/lifeos/pkg/auth"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// ViewHandler serves the visible slice of a canvas for a breadcrumb path
type ViewHandler struct {
	queryBus *querybus.QueryBus
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewViewHandler creates a new view handler
func NewViewHandler(queryBus *querybus.QueryBus, errHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{queryBus: queryBus, errors: errHandler, logger: logger}
}

// GetView handles GET /view?path=id1,id2
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetViewQuery{
		OwnerID: owner,
		Path:    navigation.ParsePath(r.URL.Query().Get("path")),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	res := result.(*queries.ViewResult)
	path := res.Path
	if path == nil {
		path = navigation.Path{}
	}
	common.RespondJSON(w, http.StatusOK, api.View{
		VisibleNodes: api.FromNodes(res.View.Nodes),
		VisibleEdges: api.FromEdges(res.View.Edges),
		Path:         path,
	})
}

// ownerFrom returns the authenticated caller, who owns every record the
// request touches
func ownerFrom(r *http.Request) (string, error) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return "", auth.Unauthorized(err)
	}
	return user.UserID, nil
}

func invalidBody(err error) error {
	return pkgerrors.NewValidationError("invalid request body: " + err.Error())
}
