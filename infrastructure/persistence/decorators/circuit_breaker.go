// Package decorators wraps a ports.GraphRepository with resilience and
// observability concerns without changing its behavior.
package decorators

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// CircuitBreakerConfig holds configuration for the store circuit breaker
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// MaxFailures consecutive storage failures trip the breaker
	MaxFailures uint32
}

// DefaultCircuitBreakerConfig returns the configuration used when none is set
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
	}
}

// CircuitBreakerRepository stops calling a failing store. Only storage
// failures count against the breaker; domain outcomes such as not-found or a
// stale sequence number are successful round trips.
type CircuitBreakerRepository struct {
	inner   ports.GraphRepository
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ ports.GraphRepository = (*CircuitBreakerRepository)(nil)

// NewCircuitBreakerRepository wraps inner. onStateChange may be nil.
func NewCircuitBreakerRepository(inner ports.GraphRepository, config CircuitBreakerConfig, logger *zap.Logger, onStateChange func(name string, to gobreaker.State)) *CircuitBreakerRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CircuitBreakerRepository{inner: inner, logger: logger}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if onStateChange != nil {
				onStateChange(name, to)
			}
		},
		IsSuccessful: isSuccessful,
	})
	return r
}

// State reports the breaker state
func (r *CircuitBreakerRepository) State() gobreaker.State {
	return r.breaker.State()
}

func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, ports.ErrAtomicCascadeUnsupported) || errors.Is(err, ports.ErrCascadePlanStale) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	appErr := pkgerrors.GetAppError(err)
	return appErr != nil && appErr.Type != pkgerrors.ErrorTypeStorage && appErr.Type != pkgerrors.ErrorTypeInternal
}

func (r *CircuitBreakerRepository) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := r.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.logger.Warn("Store call rejected by circuit breaker", zap.String("operation", op), zap.Error(err))
		return nil, pkgerrors.NewStorageError(op, err).WithCode(pkgerrors.CodeCircuitOpen)
	}
	return result, err
}

func (r *CircuitBreakerRepository) node(op string, fn func() (*entities.Node, error)) (*entities.Node, error) {
	v, err := r.execute(op, func() (interface{}, error) { return fn() })
	if err != nil {
		return nil, err
	}
	return v.(*entities.Node), nil
}

func (r *CircuitBreakerRepository) nodes(op string, fn func() ([]*entities.Node, error)) ([]*entities.Node, error) {
	v, err := r.execute(op, func() (interface{}, error) { return fn() })
	if err != nil {
		return nil, err
	}
	return v.([]*entities.Node), nil
}

func (r *CircuitBreakerRepository) edges(op string, fn func() ([]*entities.Edge, error)) ([]*entities.Edge, error) {
	v, err := r.execute(op, func() (interface{}, error) { return fn() })
	if err != nil {
		return nil, err
	}
	return v.([]*entities.Edge), nil
}

type createdNode struct {
	node    *entities.Node
	created bool
}

type createdEdge struct {
	edge    *entities.Edge
	created bool
}

func (r *CircuitBreakerRepository) ListNodes(ctx context.Context, owner string) ([]*entities.Node, error) {
	return r.nodes("list_nodes", func() ([]*entities.Node, error) { return r.inner.ListNodes(ctx, owner) })
}

func (r *CircuitBreakerRepository) GetNode(ctx context.Context, owner string, id valueobjects.NodeID) (*entities.Node, error) {
	return r.node("get_node", func() (*entities.Node, error) { return r.inner.GetNode(ctx, owner, id) })
}

func (r *CircuitBreakerRepository) ListChildren(ctx context.Context, owner string, parent valueobjects.NodeID) ([]*entities.Node, error) {
	return r.nodes("list_children", func() ([]*entities.Node, error) { return r.inner.ListChildren(ctx, owner, parent) })
}

func (r *CircuitBreakerRepository) CreateNode(ctx context.Context, owner string, node *entities.Node) (*entities.Node, bool, error) {
	v, err := r.execute("create_node", func() (interface{}, error) {
		stored, created, err := r.inner.CreateNode(ctx, owner, node)
		return createdNode{stored, created}, err
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(createdNode)
	return res.node, res.created, nil
}

func (r *CircuitBreakerRepository) UpdateNode(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (*entities.Node, error) {
	return r.node("update_node", func() (*entities.Node, error) { return r.inner.UpdateNode(ctx, owner, id, patch) })
}

func (r *CircuitBreakerRepository) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) error {
	_, err := r.execute("delete_node", func() (interface{}, error) { return nil, r.inner.DeleteNode(ctx, owner, id) })
	return err
}

func (r *CircuitBreakerRepository) ListEdges(ctx context.Context, owner string) ([]*entities.Edge, error) {
	return r.edges("list_edges", func() ([]*entities.Edge, error) { return r.inner.ListEdges(ctx, owner) })
}

func (r *CircuitBreakerRepository) ListEdgesForNode(ctx context.Context, owner string, id valueobjects.NodeID) ([]*entities.Edge, error) {
	return r.edges("list_edges_for_node", func() ([]*entities.Edge, error) { return r.inner.ListEdgesForNode(ctx, owner, id) })
}

func (r *CircuitBreakerRepository) CreateEdge(ctx context.Context, owner string, edge *entities.Edge) (*entities.Edge, bool, error) {
	v, err := r.execute("create_edge", func() (interface{}, error) {
		stored, created, err := r.inner.CreateEdge(ctx, owner, edge)
		return createdEdge{stored, created}, err
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(createdEdge)
	return res.edge, res.created, nil
}

func (r *CircuitBreakerRepository) DeleteEdge(ctx context.Context, owner string, id string) error {
	_, err := r.execute("delete_edge", func() (interface{}, error) { return nil, r.inner.DeleteEdge(ctx, owner, id) })
	return err
}

func (r *CircuitBreakerRepository) CascadeNodes(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	v, err := r.execute("cascade_nodes", func() (interface{}, error) { return r.inner.CascadeNodes(ctx, owner, req) })
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Ping bypasses the breaker so readiness reflects the store itself
func (r *CircuitBreakerRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.inner)
}

func ping(ctx context.Context, inner ports.GraphRepository) error {
	if hc, ok := inner.(ports.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
