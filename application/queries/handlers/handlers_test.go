package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/queries"
	"github.com/MartinFunctu/lifeos/application/queries/bus"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/memory"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/repotest"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

func setup(t *testing.T) *bus.QueryBus {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewGraphRepository()
	for _, n := range []*entities.Node{
		repotest.NewNode(t, "alice", "finance", ""),
		repotest.NewNode(t, "alice", "health", ""),
		repotest.NewNode(t, "alice", "budget", "finance"),
		repotest.NewNode(t, "alice", "savings", "finance"),
		repotest.NewNode(t, "bob", "secret", ""),
	} {
		_, _, err := repo.CreateNode(ctx, n.OwnerID(), n)
		require.NoError(t, err)
	}
	for _, e := range []*entities.Edge{
		repotest.NewEdge(t, "alice", "finance", "health"),
		repotest.NewEdge(t, "alice", "budget", "savings"),
		repotest.NewEdge(t, "alice", "health", "budget"),
	} {
		_, _, err := repo.CreateEdge(ctx, "alice", e)
		require.NoError(t, err)
	}

	b := bus.NewQueryBus(zap.NewNop())
	require.NoError(t, NewGraphQueryHandler(repo, zap.NewNop()).Register(b))
	return b
}

func nodeIDs(nodes []*entities.Node) []string {
	out := []string{}
	for _, n := range nodes {
		out = append(out, n.ID().String())
	}
	return out
}

func TestGetView(t *testing.T) {
	b := setup(t)
	ctx := context.Background()

	res, err := b.Ask(ctx, queries.GetViewQuery{OwnerID: "alice"})
	require.NoError(t, err)
	root := res.(*queries.ViewResult)
	assert.ElementsMatch(t, []string{"finance", "health"}, nodeIDs(root.View.Nodes))
	require.Len(t, root.View.Edges, 1)
	assert.Equal(t, "edge-finance-health", root.View.Edges[0].ID())

	res, err = b.Ask(ctx, queries.GetViewQuery{OwnerID: "alice", Path: navigation.ParsePath("finance")})
	require.NoError(t, err)
	inside := res.(*queries.ViewResult)
	assert.ElementsMatch(t, []string{"budget", "savings"}, nodeIDs(inside.View.Nodes))
	require.Len(t, inside.View.Edges, 1)
	assert.Equal(t, "edge-budget-savings", inside.View.Edges[0].ID())
	assert.Equal(t, "label finance", inside.Path[0].Label)
}

func TestGetView_UnknownCrumbIsNotFound(t *testing.T) {
	b := setup(t)
	_, err := b.Ask(context.Background(), queries.GetViewQuery{OwnerID: "alice", Path: navigation.ParsePath("secret")})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestListChildren(t *testing.T) {
	b := setup(t)
	ctx := context.Background()

	res, err := b.Ask(ctx, queries.ListChildrenQuery{OwnerID: "alice", ParentID: "finance"})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget", "savings"}, nodeIDs(res.([]*entities.Node)))

	_, err = b.Ask(ctx, queries.ListChildrenQuery{OwnerID: "bob", ParentID: "finance"})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestListNodes_OwnerScoped(t *testing.T) {
	b := setup(t)
	res, err := b.Ask(context.Background(), queries.ListNodesQuery{OwnerID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"secret"}, nodeIDs(res.([]*entities.Node)))

	_, err = b.Ask(context.Background(), queries.ListNodesQuery{})
	assert.True(t, pkgerrors.IsValidation(err))
}
