package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/application/sagas"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/events"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// maxPlanAttempts bounds how often a stale cascade plan is rebuilt
const maxPlanAttempts = 3

// CascadeResult reports what a node deletion removed
type CascadeResult struct {
	NodeID       string   `json:"nodeId"`
	RemovedEdges []string `json:"removedEdges"`
	DeletedNodes []string `json:"deletedNodes"`
	Reparented   []string `json:"reparented,omitempty"`
	Atomic       bool     `json:"-"`
}

// CascadeCoordinator deletes a node together with every edge that references
// it, applying the configured orphan policy to its children.
type CascadeCoordinator struct {
	repo   ports.GraphRepository
	bus    ports.EventBus
	policy entities.OrphanPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewCascadeCoordinator creates a coordinator
func NewCascadeCoordinator(repo ports.GraphRepository, bus ports.EventBus, policy entities.OrphanPolicy, logger *zap.Logger) *CascadeCoordinator {
	if policy == "" {
		policy = entities.OrphanKeep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CascadeCoordinator{
		repo:   repo,
		bus:    bus,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Policy returns the active orphan policy
func (c *CascadeCoordinator) Policy() entities.OrphanPolicy { return c.policy }

// DeleteNode removes node id of owner and all edges touching it. The store's
// atomic path is used when available; otherwise edges are removed before
// nodes so no edge ever references a missing node.
func (c *CascadeCoordinator) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) (*CascadeResult, error) {
	if _, err := c.repo.GetNode(ctx, owner, id); err != nil {
		return nil, err
	}

	var (
		req     ports.CascadeRequest
		removed []string
		err     error
	)
	for attempt := 1; attempt <= maxPlanAttempts; attempt++ {
		req, err = c.plan(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		removed, err = c.repo.CascadeNodes(ctx, owner, req)
		if !errors.Is(err, ports.ErrCascadePlanStale) {
			break
		}
		c.logger.Debug("Cascade plan was stale, planning again",
			zap.String("nodeID", id.String()),
			zap.Int("attempt", attempt),
		)
	}
	if errors.Is(err, ports.ErrCascadePlanStale) {
		return nil, pkgerrors.NewConflictError("children changed while deleting, retry the request")
	}

	result := &CascadeResult{NodeID: id.String(), Atomic: true}
	if errors.Is(err, ports.ErrAtomicCascadeUnsupported) {
		c.logger.Info("Atomic cascade unavailable, deleting edges first",
			zap.String("nodeID", id.String()),
			zap.Int("nodes", len(req.Delete)),
		)
		result.Atomic = false
		removed, err = c.cascadeOrdered(ctx, owner, req)
	}
	if err != nil {
		return nil, err
	}

	result.RemovedEdges = nonNil(removed)
	result.DeletedNodes = idStrings(req.Delete)
	result.Reparented = idStrings(req.Reparent)

	c.publish(ctx, owner, result)

	c.logger.Info("Node deleted",
		zap.String("nodeID", id.String()),
		zap.String("ownerID", owner),
		zap.String("policy", string(c.policy)),
		zap.Int("removedEdges", len(result.RemovedEdges)),
		zap.Int("deletedNodes", len(result.DeletedNodes)),
		zap.Bool("atomic", result.Atomic),
	)
	return result, nil
}

// plan expands a deletion of id according to the orphan policy. The target
// is always first in Delete. ListChildren may lag behind writes on some
// stores; those stores check the plan again inside CascadeNodes.
func (c *CascadeCoordinator) plan(ctx context.Context, owner string, id valueobjects.NodeID) (ports.CascadeRequest, error) {
	req := ports.CascadeRequest{Delete: []valueobjects.NodeID{id}, Orphans: c.policy}

	switch c.policy {
	case entities.OrphanReparent:
		children, err := c.repo.ListChildren(ctx, owner, id)
		if err != nil {
			return req, err
		}
		for _, child := range children {
			req.Reparent = append(req.Reparent, child.ID())
		}
	case entities.OrphanSubtree:
		seen := map[string]bool{id.String(): true}
		queue := []valueobjects.NodeID{id}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			children, err := c.repo.ListChildren(ctx, owner, current)
			if err != nil {
				return req, err
			}
			for _, child := range children {
				if seen[child.ID().String()] {
					continue
				}
				seen[child.ID().String()] = true
				req.Delete = append(req.Delete, child.ID())
				queue = append(queue, child.ID())
			}
		}
	}
	return req, nil
}

// cascadeOrdered is the non-atomic path: edges, then reparented children,
// then nodes deepest first. Records removed concurrently are skipped. When a
// step fails, the completed steps are undone so the graph is left as it was.
func (c *CascadeCoordinator) cascadeOrdered(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	var removedEdges []*entities.Edge
	var movedChildren []*entities.Node

	saga := sagas.New("delete-node", c.logger).
		AddStep(sagas.Step{
			Name: "remove-edges",
			Execute: func(ctx context.Context) error {
				var err error
				removedEdges, err = c.removeEdges(ctx, owner, req.Delete)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return c.restoreEdges(ctx, owner, removedEdges)
			},
		}).
		AddStep(sagas.Step{
			Name: "reparent-children",
			Execute: func(ctx context.Context) error {
				var err error
				movedChildren, err = c.reparent(ctx, owner, req.Reparent)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return c.restoreParents(ctx, owner, movedChildren)
			},
		})

	for i := len(req.Delete) - 1; i >= 0; i-- {
		id, target := req.Delete[i], i == 0
		var deleted *entities.Node
		saga.AddStep(sagas.Step{
			Name: "delete-node " + id.String(),
			Execute: func(ctx context.Context) error {
				node, err := c.repo.GetNode(ctx, owner, id)
				if err == nil {
					err = c.repo.DeleteNode(ctx, owner, id)
				}
				if err != nil {
					if !target && pkgerrors.IsNotFound(err) {
						return nil
					}
					return err
				}
				deleted = node
				return nil
			},
			Compensate: func(ctx context.Context) error {
				if deleted == nil {
					return nil
				}
				_, _, err := c.repo.CreateNode(ctx, owner, deleted)
				return err
			},
		})
	}

	if err := saga.Execute(ctx); err != nil {
		return nil, err
	}

	removed := make([]string, len(removedEdges))
	for i, e := range removedEdges {
		removed[i] = e.ID()
	}
	return removed, nil
}

// removeEdges deletes every edge touching ids. On failure the edges removed
// so far are put back before returning.
func (c *CascadeCoordinator) removeEdges(ctx context.Context, owner string, ids []valueobjects.NodeID) ([]*entities.Edge, error) {
	seen := make(map[string]bool)
	var removed []*entities.Edge
	for _, id := range ids {
		edges, err := c.repo.ListEdgesForNode(ctx, owner, id)
		if err != nil {
			return nil, errors.Join(err, c.restoreEdges(ctx, owner, removed))
		}
		for _, e := range edges {
			if seen[e.ID()] {
				continue
			}
			seen[e.ID()] = true
			if err := c.repo.DeleteEdge(ctx, owner, e.ID()); err != nil {
				if pkgerrors.IsNotFound(err) {
					continue
				}
				return nil, errors.Join(err, c.restoreEdges(ctx, owner, removed))
			}
			removed = append(removed, e)
		}
	}
	return removed, nil
}

// restoreEdges re-creates edges whose endpoints both still exist
func (c *CascadeCoordinator) restoreEdges(ctx context.Context, owner string, edges []*entities.Edge) error {
	var errs []error
	for _, e := range edges {
		if !c.exists(ctx, owner, e.Source()) || !c.exists(ctx, owner, e.Target()) {
			continue
		}
		if _, _, err := c.repo.CreateEdge(ctx, owner, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reparent moves ids to the root canvas and returns their previous state
func (c *CascadeCoordinator) reparent(ctx context.Context, owner string, ids []valueobjects.NodeID) ([]*entities.Node, error) {
	var moved []*entities.Node
	for _, id := range ids {
		child, err := c.repo.GetNode(ctx, owner, id)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				continue
			}
			return nil, errors.Join(err, c.restoreParents(ctx, owner, moved))
		}
		patch := entities.NodePatch{Payload: common.Some(child.Payload().WithoutParent())}
		if _, err := c.repo.UpdateNode(ctx, owner, id, patch); err != nil {
			if pkgerrors.IsNotFound(err) {
				continue
			}
			return nil, errors.Join(err, c.restoreParents(ctx, owner, moved))
		}
		moved = append(moved, child)
	}
	return moved, nil
}

// restoreParents puts back the payload the children had before reparenting
func (c *CascadeCoordinator) restoreParents(ctx context.Context, owner string, children []*entities.Node) error {
	var errs []error
	for _, child := range children {
		patch := entities.NodePatch{Payload: common.Some(child.Payload())}
		if _, err := c.repo.UpdateNode(ctx, owner, child.ID(), patch); err != nil && !pkgerrors.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CascadeCoordinator) exists(ctx context.Context, owner string, id valueobjects.NodeID) bool {
	_, err := c.repo.GetNode(ctx, owner, id)
	return err == nil
}

func (c *CascadeCoordinator) publish(ctx context.Context, owner string, result *CascadeResult) {
	if c.bus == nil {
		return
	}
	at := c.now()

	var evts []events.DomainEvent
	for _, edgeID := range result.RemovedEdges {
		evts = append(evts, events.NewEdgeDeleted(owner, edgeID, true, at))
	}
	for _, childID := range result.Reparented {
		evts = append(evts, events.NewNodeUpdated(owner, childID, []string{"payload"}, 0, at))
	}
	affected := result.Reparented
	if c.policy == entities.OrphanSubtree {
		affected = result.DeletedNodes[1:]
	}
	for i, nodeID := range result.DeletedNodes {
		if i == 0 {
			evts = append(evts, events.NewNodeDeleted(owner, nodeID, result.RemovedEdges, string(c.policy), affected, at))
			continue
		}
		evts = append(evts, events.NewNodeDeleted(owner, nodeID, nil, string(c.policy), nil, at))
	}

	if err := c.bus.Publish(ctx, evts...); err != nil {
		c.logger.Warn("Failed to publish deletion events",
			zap.String("nodeID", result.NodeID),
			zap.Error(err),
		)
	}
}

func idStrings(ids []valueobjects.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
