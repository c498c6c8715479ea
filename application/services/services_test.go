package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/domain/events"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/memory"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/repotest"
	"github.com/MartinFunctu/lifeos/pkg/auth"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (b *recordingBus) Publish(_ context.Context, evts ...events.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evts...)
	return nil
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.GetEventType()
	}
	return out
}

// nonAtomicRepo hides the memory store's atomic cascade
type nonAtomicRepo struct {
	ports.GraphRepository
}

func (nonAtomicRepo) CascadeNodes(context.Context, string, ports.CascadeRequest) ([]string, error) {
	return nil, ports.ErrAtomicCascadeUnsupported
}

func seedGraph(t *testing.T, repo ports.GraphRepository) {
	t.Helper()
	ctx := context.Background()
	for _, n := range []*entities.Node{
		repotest.NewNode(t, "alice", "root", ""),
		repotest.NewNode(t, "alice", "peer", ""),
		repotest.NewNode(t, "alice", "child", "root"),
		repotest.NewNode(t, "alice", "grandchild", "child"),
	} {
		_, _, err := repo.CreateNode(ctx, "alice", n)
		require.NoError(t, err)
	}
	for _, e := range []*entities.Edge{
		repotest.NewEdge(t, "alice", "root", "peer"),
		repotest.NewEdge(t, "alice", "child", "grandchild"),
		repotest.NewEdge(t, "alice", "peer", "child"),
	} {
		_, _, err := repo.CreateEdge(ctx, "alice", e)
		require.NoError(t, err)
	}
}

func listIDs(t *testing.T, repo ports.GraphRepository) ([]string, []string) {
	t.Helper()
	ctx := context.Background()
	nodes, err := repo.ListNodes(ctx, "alice")
	require.NoError(t, err)
	edges, err := repo.ListEdges(ctx, "alice")
	require.NoError(t, err)

	var n, e []string
	for _, node := range nodes {
		n = append(n, node.ID().String())
	}
	for _, edge := range edges {
		e = append(e, edge.ID())
	}
	sort.Strings(n)
	sort.Strings(e)
	return n, e
}

func TestCascadeCoordinator_Policies(t *testing.T) {
	tests := []struct {
		name      string
		policy    entities.OrphanPolicy
		wantNodes []string
		wantEdges []string
		wantRoot  []string
	}{
		{
			name:      "keep leaves children dangling",
			policy:    entities.OrphanKeep,
			wantNodes: []string{"child", "grandchild", "peer"},
			wantEdges: []string{"edge-child-grandchild", "edge-peer-child"},
			wantRoot:  []string{"peer"},
		},
		{
			name:      "reparent moves children to root",
			policy:    entities.OrphanReparent,
			wantNodes: []string{"child", "grandchild", "peer"},
			wantEdges: []string{"edge-child-grandchild", "edge-peer-child"},
			wantRoot:  []string{"child", "peer"},
		},
		{
			name:      "subtree deletes descendants",
			policy:    entities.OrphanSubtree,
			wantNodes: []string{"peer"},
			wantEdges: nil,
			wantRoot:  []string{"peer"},
		},
	}

	for _, tt := range tests {
		for _, atomic := range []bool{true, false} {
			name := tt.name
			if !atomic {
				name += " (ordered fallback)"
			}
			t.Run(name, func(t *testing.T) {
				ctx := context.Background()
				var repo ports.GraphRepository = memory.NewGraphRepository()
				if !atomic {
					repo = nonAtomicRepo{repo}
				}
				seedGraph(t, repo)
				bus := &recordingBus{}
				c := NewCascadeCoordinator(repo, bus, tt.policy, zap.NewNop())

				result, err := c.DeleteNode(ctx, "alice", valueobjects.MustNodeID("root"))
				require.NoError(t, err)
				assert.Equal(t, atomic, result.Atomic)
				assert.Contains(t, result.RemovedEdges, "edge-root-peer")

				nodes, edges := listIDs(t, repo)
				assert.Equal(t, tt.wantNodes, nodes)
				assert.Equal(t, tt.wantEdges, edges)

				all, err := repo.ListNodes(ctx, "alice")
				require.NoError(t, err)
				var roots []string
				for _, n := range all {
					if n.ParentKey() == "" {
						roots = append(roots, n.ID().String())
					}
				}
				sort.Strings(roots)
				assert.Equal(t, tt.wantRoot, roots)

				assert.Contains(t, bus.types(), events.TypeNodeDeleted)
				assert.Contains(t, bus.types(), events.TypeEdgeDeleted)
			})
		}
	}
}

func TestCascadeCoordinator_NoEdgeReferencesMissingNode(t *testing.T) {
	ctx := context.Background()
	for _, policy := range []entities.OrphanPolicy{entities.OrphanKeep, entities.OrphanReparent, entities.OrphanSubtree} {
		repo := nonAtomicRepo{memory.NewGraphRepository()}
		seedGraph(t, repo)
		c := NewCascadeCoordinator(repo, nil, policy, nil)

		_, err := c.DeleteNode(ctx, "alice", valueobjects.MustNodeID("child"))
		require.NoError(t, err)

		nodes, err := repo.ListNodes(ctx, "alice")
		require.NoError(t, err)
		present := map[string]bool{}
		for _, n := range nodes {
			present[n.ID().String()] = true
		}
		edges, err := repo.ListEdges(ctx, "alice")
		require.NoError(t, err)
		for _, e := range edges {
			assert.True(t, present[e.Source().String()], "policy %s: dangling source on %s", policy, e.ID())
			assert.True(t, present[e.Target().String()], "policy %s: dangling target on %s", policy, e.ID())
		}
	}
}

// stalePlans reports the first stale cascade plans the way a store with a
// lagging children index does, then hands through to the real store
type stalePlans struct {
	ports.GraphRepository
	stale int
	seen  []ports.CascadeRequest
}

func (r *stalePlans) CascadeNodes(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	r.seen = append(r.seen, req)
	if len(r.seen) <= r.stale {
		return nil, ports.ErrCascadePlanStale
	}
	return r.GraphRepository.CascadeNodes(ctx, owner, req)
}

func TestCascadeCoordinator_StalePlanIsRebuilt(t *testing.T) {
	ctx := context.Background()
	repo := &stalePlans{GraphRepository: memory.NewGraphRepository(), stale: 1}
	seedGraph(t, repo)
	c := NewCascadeCoordinator(repo, nil, entities.OrphanSubtree, nil)

	result, err := c.DeleteNode(ctx, "alice", valueobjects.MustNodeID("root"))
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "child", "grandchild"}, result.DeletedNodes)

	require.Len(t, repo.seen, 2)
	for _, req := range repo.seen {
		assert.Equal(t, entities.OrphanSubtree, req.Orphans)
	}

	nodes, _ := listIDs(t, repo)
	assert.Equal(t, []string{"peer"}, nodes)
}

func TestCascadeCoordinator_PersistentlyStalePlanConflicts(t *testing.T) {
	ctx := context.Background()
	repo := &stalePlans{GraphRepository: memory.NewGraphRepository(), stale: maxPlanAttempts}
	seedGraph(t, repo)
	c := NewCascadeCoordinator(repo, nil, entities.OrphanReparent, nil)

	_, err := c.DeleteNode(ctx, "alice", valueobjects.MustNodeID("root"))
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Len(t, repo.seen, maxPlanAttempts)

	nodes, _ := listIDs(t, repo)
	assert.Contains(t, nodes, "root")
}

// failingDelete refuses to delete one node, after the rest of the cascade ran
type failingDelete struct {
	nonAtomicRepo
	id string
}

func (f failingDelete) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) error {
	if id.String() == f.id {
		return pkgerrors.NewStorageError("delete node", errors.New("throttled"))
	}
	return f.nonAtomicRepo.DeleteNode(ctx, owner, id)
}

func TestCascadeCoordinator_OrderedFailureIsUndone(t *testing.T) {
	ctx := context.Background()
	for _, policy := range []entities.OrphanPolicy{entities.OrphanReparent, entities.OrphanSubtree} {
		t.Run(string(policy), func(t *testing.T) {
			repo := failingDelete{nonAtomicRepo{memory.NewGraphRepository()}, "child"}
			seedGraph(t, repo)
			wantNodes, wantEdges := listIDs(t, repo)
			bus := &recordingBus{}
			c := NewCascadeCoordinator(repo, bus, policy, nil)

			_, err := c.DeleteNode(ctx, "alice", valueobjects.MustNodeID("child"))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsStorage(err))

			gotNodes, gotEdges := listIDs(t, repo)
			assert.Equal(t, wantNodes, gotNodes)
			assert.Equal(t, wantEdges, gotEdges)

			grandchild, err := repo.GetNode(ctx, "alice", valueobjects.MustNodeID("grandchild"))
			require.NoError(t, err)
			parent, ok := grandchild.ParentID()
			require.True(t, ok)
			assert.Equal(t, "child", parent.String())
			assert.Empty(t, bus.types())
		})
	}
}

func TestCascadeCoordinator_MissingNode(t *testing.T) {
	c := NewCascadeCoordinator(memory.NewGraphRepository(), nil, entities.OrphanKeep, nil)
	_, err := c.DeleteNode(context.Background(), "alice", valueobjects.MustNodeID("ghost"))
	assert.True(t, pkgerrors.IsNotFound(err))
}

type mockRepo struct {
	mock.Mock
	ports.GraphRepository
}

func (m *mockRepo) ListNodes(ctx context.Context, owner string) ([]*entities.Node, error) {
	args := m.Called(ctx, owner)
	nodes, _ := args.Get(0).([]*entities.Node)
	return nodes, args.Error(1)
}

func (m *mockRepo) CreateNode(ctx context.Context, owner string, node *entities.Node) (*entities.Node, bool, error) {
	args := m.Called(ctx, owner, node)
	return node, args.Bool(1), args.Error(2)
}

func TestOwnershipGuard(t *testing.T) {
	alice := auth.WithOwner(context.Background(), "alice")

	t.Run("missing identity is unauthorized", func(t *testing.T) {
		inner := &mockRepo{}
		g := NewOwnershipGuard(inner)
		_, err := g.ListNodes(context.Background(), "alice")
		assert.True(t, pkgerrors.IsUnauthorized(err))
		inner.AssertNotCalled(t, "ListNodes", mock.Anything, mock.Anything)
	})

	t.Run("other owner is forbidden", func(t *testing.T) {
		inner := &mockRepo{}
		g := NewOwnershipGuard(inner)
		_, err := g.ListNodes(alice, "bob")
		assert.True(t, pkgerrors.IsForbidden(err))
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOwnerMismatch))
	})

	t.Run("matching owner passes through", func(t *testing.T) {
		inner := &mockRepo{}
		inner.On("ListNodes", alice, "alice").Return([]*entities.Node{}, nil).Once()
		g := NewOwnershipGuard(inner)
		nodes, err := g.ListNodes(alice, "alice")
		require.NoError(t, err)
		assert.Empty(t, nodes)
		inner.AssertExpectations(t)
	})

	t.Run("spoofed record owner is forbidden", func(t *testing.T) {
		inner := &mockRepo{}
		g := NewOwnershipGuard(inner)
		_, _, err := g.CreateNode(alice, "alice", repotest.NewNode(t, "mallory", "n", ""))
		assert.True(t, pkgerrors.IsForbidden(err))
		inner.AssertNotCalled(t, "CreateNode", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("record without owner is stamped", func(t *testing.T) {
		inner := &mockRepo{}
		inner.On("CreateNode", alice, "alice", mock.Anything).Return(nil, true, nil).Once()
		g := NewOwnershipGuard(inner)
		stored, created, err := g.CreateNode(alice, "alice", repotest.NewNode(t, "", "n", ""))
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "alice", stored.OwnerID())
	})
}
