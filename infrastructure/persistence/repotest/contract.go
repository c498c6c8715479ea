// Package repotest holds the behavioral suite every GraphRepository
// implementation must pass.
package repotest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// Factory returns a fresh, empty repository for one subtest
type Factory func(t *testing.T) ports.GraphRepository

// NewNode builds a node for tests. parent may be empty.
func NewNode(t testing.TB, owner, id, parent string) *entities.Node {
	t.Helper()
	raw := map[string]interface{}{"color": "blue"}
	if parent != "" {
		raw[valueobjects.PayloadKeyParentID] = parent
	}
	payload, err := valueobjects.NewPayload(raw)
	require.NoError(t, err)
	pos, err := valueobjects.NewPosition(10, 20)
	require.NoError(t, err)
	n, err := entities.NewNode(valueobjects.MustNodeID(id), owner, entities.NodeKindService, "label "+id, pos, payload, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, err)
	return n
}

// NewEdge builds an edge for tests
func NewEdge(t testing.TB, owner, src, tgt string) *entities.Edge {
	t.Helper()
	s, d := valueobjects.MustNodeID(src), valueobjects.MustNodeID(tgt)
	e, err := entities.NewEdge(entities.EdgeIDFor(s, d), owner, s, d, entities.EdgeKindSmoothStep, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, err)
	return e
}

func nodeIDs(nodes []*entities.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID().String()
	}
	sort.Strings(out)
	return out
}

func edgeIDs(edges []*entities.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.ID()
	}
	sort.Strings(out)
	return out
}

// Run executes the suite against repositories produced by newRepo
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	id := valueobjects.MustNodeID

	seed := func(t *testing.T, repo ports.GraphRepository, nodes ...*entities.Node) {
		t.Helper()
		for _, n := range nodes {
			_, created, err := repo.CreateNode(ctx, n.OwnerID(), n)
			require.NoError(t, err)
			require.True(t, created)
		}
	}

	t.Run("create then get round-trips every field", func(t *testing.T) {
		repo := newRepo(t)
		n := NewNode(t, "alice", "n1", "")
		stored, created, err := repo.CreateNode(ctx, "alice", n)
		require.NoError(t, err)
		assert.True(t, created)

		got, err := repo.GetNode(ctx, "alice", id("n1"))
		require.NoError(t, err)
		assert.Equal(t, stored.ID(), got.ID())
		assert.Equal(t, "alice", got.OwnerID())
		assert.Equal(t, entities.NodeKindService, got.Kind())
		assert.Equal(t, "label n1", got.Label())
		assert.True(t, got.Position().Equals(n.Position()))
		assert.Equal(t, "blue", got.Payload().Map()["color"])
		assert.Equal(t, int64(0), got.Seq())
	})

	t.Run("create on an existing id returns the stored record", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "alice", "n1", ""))

		again, err := entities.NewNode(id("n1"), "alice", entities.NodeKindDefault, "different", valueobjects.Origin, valueobjects.EmptyPayload(), time.Now())
		require.NoError(t, err)
		stored, created, err := repo.CreateNode(ctx, "alice", again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "label n1", stored.Label())

		nodes, err := repo.ListNodes(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("owners are isolated", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "alice", "a1", ""), NewNode(t, "alice", "a2", ""), NewNode(t, "bob", "b1", ""))
		_, _, err := repo.CreateEdge(ctx, "alice", NewEdge(t, "alice", "a1", "a2"))
		require.NoError(t, err)

		bobNodes, err := repo.ListNodes(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, nodeIDs(bobNodes))

		bobEdges, err := repo.ListEdges(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, bobEdges)

		_, err = repo.GetNode(ctx, "bob", id("a1"))
		assert.True(t, pkgerrors.IsNotFound(err))

		_, err = repo.UpdateNode(ctx, "bob", id("a1"), entities.NodePatch{Label: common.Some("x")})
		assert.True(t, pkgerrors.IsNotFound(err))

		assert.True(t, pkgerrors.IsNotFound(repo.DeleteNode(ctx, "bob", id("a1"))))
		assert.True(t, pkgerrors.IsNotFound(repo.DeleteEdge(ctx, "bob", "edge-a1-a2")))

		got, err := repo.GetNode(ctx, "alice", id("a1"))
		require.NoError(t, err)
		assert.Equal(t, "label a1", got.Label())
	})

	t.Run("same id under two owners are distinct records", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "alice", "shared", ""), NewNode(t, "bob", "shared", ""))

		_, err := repo.UpdateNode(ctx, "bob", id("shared"), entities.NodePatch{Label: common.Some("bob's")})
		require.NoError(t, err)

		alice, err := repo.GetNode(ctx, "alice", id("shared"))
		require.NoError(t, err)
		assert.Equal(t, "label shared", alice.Label())
	})

	t.Run("parent must exist for the same owner", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "bob", "p", ""))

		_, _, err := repo.CreateNode(ctx, "alice", NewNode(t, "alice", "child", "p"))
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeParentNotFound))

		seed(t, repo, NewNode(t, "alice", "n", ""))
		_, err = repo.UpdateNode(ctx, "alice", id("n"), entities.NodePatch{
			Payload: common.Some(mustPayload(t, map[string]interface{}{"parentId": "missing"})),
		})
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeParentNotFound))
	})

	t.Run("patch leaves absent fields and clears nulls", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "alice", "n", ""))

		updated, err := repo.UpdateNode(ctx, "alice", id("n"), entities.NodePatch{X: common.Some(99.5)})
		require.NoError(t, err)
		assert.Equal(t, 99.5, updated.Position().X())
		assert.Equal(t, float64(20), updated.Position().Y())
		assert.Equal(t, "label n", updated.Label())
		assert.Equal(t, "blue", updated.Payload().Map()["color"])

		updated, err = repo.UpdateNode(ctx, "alice", id("n"), entities.NodePatch{
			Label:   common.Null[string](),
			Y:       common.Null[float64](),
			Payload: common.Null[valueobjects.Payload](),
		})
		require.NoError(t, err)
		assert.Equal(t, "", updated.Label())
		assert.Equal(t, float64(0), updated.Position().Y())
		assert.Equal(t, 99.5, updated.Position().X())
		assert.True(t, updated.Payload().IsEmpty())

		got, err := repo.GetNode(ctx, "alice", id("n"))
		require.NoError(t, err)
		assert.Equal(t, "", got.Label())
		assert.True(t, got.Payload().IsEmpty())
	})

	t.Run("stale sequence numbers are rejected", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "alice", "n", ""))

		_, err := repo.UpdateNode(ctx, "alice", id("n"), entities.NodePatch{X: common.Some(2.0), Seq: 2})
		require.NoError(t, err)

		_, err = repo.UpdateNode(ctx, "alice", id("n"), entities.NodePatch{X: common.Some(1.0), Seq: 1})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsConflict(err))
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation))

		got, err := repo.GetNode(ctx, "alice", id("n"))
		require.NoError(t, err)
		assert.Equal(t, 2.0, got.Position().X())
		assert.Equal(t, int64(2), got.Seq())

		_, err = repo.UpdateNode(ctx, "alice", id("n"), entities.NodePatch{X: common.Some(3.0)})
		require.NoError(t, err, "updates without a sequence number always apply")
	})

	t.Run("nesting moves between parents", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo,
			NewNode(t, "alice", "finance", ""),
			NewNode(t, "alice", "health", ""),
			NewNode(t, "alice", "budget", "finance"),
		)

		children, err := repo.ListChildren(ctx, "alice", id("finance"))
		require.NoError(t, err)
		assert.Equal(t, []string{"budget"}, nodeIDs(children))

		_, err = repo.UpdateNode(ctx, "alice", id("budget"), entities.NodePatch{
			Payload: common.Some(mustPayload(t, map[string]interface{}{"parentId": "health"})),
		})
		require.NoError(t, err)

		children, err = repo.ListChildren(ctx, "alice", id("finance"))
		require.NoError(t, err)
		assert.Empty(t, children)
		children, err = repo.ListChildren(ctx, "alice", id("health"))
		require.NoError(t, err)
		assert.Equal(t, []string{"budget"}, nodeIDs(children))
	})

	t.Run("edges require both endpoints", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "alice", "a", ""), NewNode(t, "bob", "b", ""))

		_, _, err := repo.CreateEdge(ctx, "alice", NewEdge(t, "alice", "a", "b"))
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEndpointNotFound))

		edges, err := repo.ListEdges(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("edge create is idempotent and delete is owner scoped", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, NewNode(t, "alice", "a", ""), NewNode(t, "alice", "b", ""))

		_, created, err := repo.CreateEdge(ctx, "alice", NewEdge(t, "alice", "a", "b"))
		require.NoError(t, err)
		assert.True(t, created)
		stored, created, err := repo.CreateEdge(ctx, "alice", NewEdge(t, "alice", "a", "b"))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, entities.EdgeKindSmoothStep, stored.Kind())

		touching, err := repo.ListEdgesForNode(ctx, "alice", id("b"))
		require.NoError(t, err)
		assert.Equal(t, []string{"edge-a-b"}, edgeIDs(touching))

		require.NoError(t, repo.DeleteEdge(ctx, "alice", "edge-a-b"))
		assert.True(t, pkgerrors.IsNotFound(repo.DeleteEdge(ctx, "alice", "edge-a-b")))
	})

	t.Run("cascade removes every touching edge", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo,
			NewNode(t, "alice", "a", ""),
			NewNode(t, "alice", "b", ""),
			NewNode(t, "alice", "c", ""),
		)
		for _, e := range []*entities.Edge{
			NewEdge(t, "alice", "a", "b"),
			NewEdge(t, "alice", "c", "a"),
			NewEdge(t, "alice", "b", "c"),
		} {
			_, _, err := repo.CreateEdge(ctx, "alice", e)
			require.NoError(t, err)
		}

		removed, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{Delete: []valueobjects.NodeID{id("a")}})
		if err == ports.ErrAtomicCascadeUnsupported {
			t.Skip("store has no atomic cascade")
		}
		require.NoError(t, err)
		sort.Strings(removed)
		assert.Equal(t, []string{"edge-a-b", "edge-c-a"}, removed)

		edges, err := repo.ListEdges(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"edge-b-c"}, edgeIDs(edges))

		_, err = repo.GetNode(ctx, "alice", id("a"))
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("cascade reparents and keeps children as asked", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo,
			NewNode(t, "alice", "p", ""),
			NewNode(t, "alice", "moved", "p"),
			NewNode(t, "alice", "kept", "p"),
		)

		_, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{
			Delete:   []valueobjects.NodeID{id("p")},
			Reparent: []valueobjects.NodeID{id("moved")},
		})
		if err == ports.ErrAtomicCascadeUnsupported {
			t.Skip("store has no atomic cascade")
		}
		require.NoError(t, err)

		moved, err := repo.GetNode(ctx, "alice", id("moved"))
		require.NoError(t, err)
		assert.Equal(t, "", moved.ParentKey())
		assert.Equal(t, "blue", moved.Payload().Map()["color"])

		kept, err := repo.GetNode(ctx, "alice", id("kept"))
		require.NoError(t, err)
		assert.Equal(t, "p", kept.ParentKey(), "kept children point at the missing parent")

		orphans, err := repo.ListChildren(ctx, "alice", id("p"))
		require.NoError(t, err)
		assert.Equal(t, []string{"kept"}, nodeIDs(orphans))
	})

	t.Run("cascade on a missing node is not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{Delete: []valueobjects.NodeID{id("ghost")}})
		if err == ports.ErrAtomicCascadeUnsupported {
			t.Skip("store has no atomic cascade")
		}
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func mustPayload(t testing.TB, raw map[string]interface{}) valueobjects.Payload {
	t.Helper()
	p, err := valueobjects.NewPayload(raw)
	require.NoError(t, err)
	return p
}
