package queries

import (
	"fmt"

	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/domain/view"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
	"github.com/MartinFunctu/lifeos/pkg/utils"
)

// ListNodesQuery lists every node of an owner
type ListNodesQuery struct {
	OwnerID string `validate:"required"`
}

// Validate validates the query
func (q ListNodesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListEdgesQuery lists every edge of an owner
type ListEdgesQuery struct {
	OwnerID string `validate:"required"`
}

// Validate validates the query
func (q ListEdgesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetNodeQuery represents a query to get a single node
type GetNodeQuery struct {
	OwnerID string `validate:"required"`
	NodeID  string `validate:"required,entityid"`
}

// Validate validates the query
func (q GetNodeQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListChildrenQuery lists the nodes nested directly under a parent
type ListChildrenQuery struct {
	OwnerID  string `validate:"required"`
	ParentID string `validate:"required,entityid"`
}

// Validate validates the query
func (q ListChildrenQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetViewQuery resolves the visible slice of a canvas for a breadcrumb path
type GetViewQuery struct {
	OwnerID string `validate:"required"`
	Path    navigation.Path
}

// Validate validates the query
func (q GetViewQuery) Validate() error {
	if err := utils.ValidateStruct(q); err != nil {
		return err
	}
	for _, crumb := range q.Path {
		if !utils.IsValidEntityID(crumb.NodeID) {
			return pkgerrors.NewValidationError(fmt.Sprintf("path entry %q is not a valid node id", crumb.NodeID))
		}
	}
	return nil
}

// ViewResult is the answer to GetViewQuery. Path carries the labels of the
// stored nodes.
type ViewResult struct {
	Path navigation.Path
	View view.View
}
