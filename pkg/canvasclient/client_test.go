package canvasclient

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/pkg/api"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seededClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	f := newFakeTransport()
	f.nodes["node-root"] = api.Node{ID: "node-root", OwnerID: "alice", Kind: "default", Label: "Root", X: 0, Y: 0,
		Payload: map[string]interface{}{"subBlocks": []interface{}{map[string]interface{}{"id": "b1", "label": "Plan"}}}}
	f.nodes["node-a"] = api.Node{ID: "node-a", OwnerID: "alice", Kind: "default", Label: "A", X: 10, Y: 10,
		Payload: map[string]interface{}{"parentId": "node-root"}}
	f.nodes["node-b"] = api.Node{ID: "node-b", OwnerID: "alice", Kind: "default", Label: "B", X: 20, Y: 20,
		Payload: map[string]interface{}{"parentId": "node-root"}}
	f.nodes["node-c"] = api.Node{ID: "node-c", OwnerID: "alice", Kind: "default", Label: "C"}
	f.edges["edge-ab"] = api.Edge{ID: "edge-ab", OwnerID: "alice", Source: "node-a", Target: "node-b", Kind: "default"}

	opts = append([]Option{WithOwner("alice"), WithClock(func() time.Time { return fixedNow })}, opts...)
	c := NewClient(f, opts...)
	require.NoError(t, c.Load(context.Background()))
	f.mu.Lock()
	f.calls = 0
	f.mu.Unlock()
	return c, f
}

func label(t *testing.T, c *Client, id string) string {
	t.Helper()
	n, ok := c.Mirror().Node(id)
	require.True(t, ok, "node %s missing", id)
	return n.Label()
}

func childIDs(c *Client, parentID string) []string {
	var out []string
	for _, n := range c.Mirror().Children(parentID) {
		out = append(out, n.ID().String())
	}
	return out
}

func TestClient_Load(t *testing.T) {
	c, _ := seededClient(t)

	nodes, edges := c.Mirror().Len()
	assert.Equal(t, 4, nodes)
	assert.Equal(t, 1, edges)
	assert.True(t, c.Mirror().HasChildren("node-root"))

	children := c.Mirror().Children("node-root")
	require.Len(t, children, 2)
	assert.Equal(t, "node-a", children[0].ID().String())
}

func TestClient_LoadFailure(t *testing.T) {
	f := newFakeTransport()
	f.failNext("list", pkgerrors.NewStorageError("list", errors.New("down")))
	c := NewClient(f)

	err := c.Load(context.Background())
	assert.True(t, pkgerrors.IsStorage(err))
}

func TestClient_SeqIsMonotonic(t *testing.T) {
	c := NewClient(newFakeTransport(), WithClock(func() time.Time { return fixedNow }))

	first := c.nextSeq()
	assert.Equal(t, fixedNow.UnixMicro(), first)
	assert.Equal(t, first+1, c.nextSeq())

	assert.Equal(t, "node-service-"+strconv.FormatInt(fixedNow.UnixMilli(), 10), c.NewKindNodeID("service"))

	later := fixedNow.Add(time.Hour)
	c.now = func() time.Time { return later }
	assert.Equal(t, later.UnixMicro(), c.nextSeq())
}

func TestClient_CreateNodeReconciles(t *testing.T) {
	c, f := seededClient(t)

	h := c.ApplyLocal(CreateNode(api.Node{Label: "New", X: 5, Y: 6}))
	require.NoError(t, h.Err())
	assert.Regexp(t, `^node-`, h.EntityID())
	assert.Equal(t, "New", label(t, c, h.EntityID()))
	assert.Zero(t, f.callCount())

	require.NoError(t, c.Commit(context.Background(), h))

	n, ok := c.Mirror().Node(h.EntityID())
	require.True(t, ok)
	assert.Equal(t, "alice", n.OwnerID())
	assert.False(t, n.CreatedAt().IsZero())
}

func TestClient_InvalidMutationLeavesMirror(t *testing.T) {
	c, f := seededClient(t)

	h := c.ApplyLocal(UpdateNode("node-missing", api.UpdateNodeRequest{Label: common.Some("x")}))
	require.Error(t, h.Err())
	assert.True(t, pkgerrors.IsNotFound(h.Err()))

	err := c.Commit(context.Background(), h)
	assert.Equal(t, h.Err(), err)
	assert.Zero(t, f.callCount())

	h = c.ApplyLocal(UpdateNode("node-a", api.UpdateNodeRequest{
		Payload: common.Some(map[string]interface{}{"parentId": "node-a"}),
	}))
	assert.True(t, pkgerrors.IsValidation(h.Err()))
	n, _ := c.Mirror().Node("node-a")
	parent, _ := n.ParentID()
	assert.Equal(t, "node-root", parent.String())
}

func TestClient_RejectedUpdateRollsBackAndNotifies(t *testing.T) {
	c, f := seededClient(t)
	f.failNext("node-a", pkgerrors.NewStorageError("update", errors.New("throttled")))

	err := <-c.Go(context.Background(), UpdateNode("node-a", api.UpdateNodeRequest{Label: common.Some("Renamed")}))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, "A", label(t, c, "node-a"))

	select {
	case n := <-c.Notifications():
		assert.Equal(t, OpUpdateNode, n.Op)
		assert.Equal(t, "node-a", n.EntityID)
		assert.Error(t, n.Err)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestClient_UpdateSendsSeq(t *testing.T) {
	c, f := seededClient(t)

	h := c.ApplyLocal(UpdateNode("node-a", api.UpdateNodeRequest{X: common.Some(99.0)}))
	require.NoError(t, c.Commit(context.Background(), h))

	require.Len(t, f.updates, 1)
	assert.Equal(t, h.Seq(), f.updates[0].Seq)
	n, _ := c.Mirror().Node("node-a")
	assert.Equal(t, 99.0, n.Position().X())
	assert.Equal(t, h.Seq(), n.Seq())
}

func TestClient_StaleResultIsDiscarded(t *testing.T) {
	c, f := seededClient(t)
	ctx := context.Background()
	gate := f.gate("node-a")

	slow := c.Go(ctx, UpdateNode("node-a", api.UpdateNodeRequest{Label: common.Some("first")}))
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Apply(ctx, UpdateNode("node-a", api.UpdateNodeRequest{Label: common.Some("second")})))
	assert.Equal(t, "second", label(t, c, "node-a"))

	close(gate)
	err := <-slow
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation))
	assert.Equal(t, "second", label(t, c, "node-a"))
	assert.Empty(t, c.Notifications())
}

func TestClient_LateSuccessDoesNotOverwrite(t *testing.T) {
	c, f := seededClient(t)
	ctx := context.Background()
	gate := f.gate("node-a")

	first := c.Go(ctx, UpdateNode("node-a", api.UpdateNodeRequest{Label: common.Some("first")}))
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, time.Millisecond)
	second := c.ApplyLocal(UpdateNode("node-a", api.UpdateNodeRequest{Y: common.Some(77.0)}))

	close(gate)
	require.NoError(t, <-first)

	n, _ := c.Mirror().Node("node-a")
	assert.Equal(t, 77.0, n.Position().Y())
	assert.Equal(t, "first", n.Label())

	require.NoError(t, c.Commit(ctx, second))
	assert.Equal(t, 77.0, f.nodes["node-a"].Y)
}

func TestClient_OutOfOrderCommitKeepsEarlierFields(t *testing.T) {
	c, f := seededClient(t)
	ctx := context.Background()

	first := c.ApplyLocal(UpdateNode("node-a", api.UpdateNodeRequest{Label: common.Some("first")}))
	second := c.ApplyLocal(UpdateNode("node-a", api.UpdateNodeRequest{Y: common.Some(77.0)}))

	require.NoError(t, c.Commit(ctx, second))
	err := c.Commit(ctx, first)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation))

	n, _ := c.Mirror().Node("node-a")
	assert.Equal(t, 77.0, n.Position().Y())
	assert.Equal(t, "first", n.Label())
	assert.Equal(t, second.Seq(), n.Seq())
	assert.Equal(t, "first", f.nodes["node-a"].Label)
	assert.Equal(t, 77.0, f.nodes["node-a"].Y)
	assert.Empty(t, c.Notifications())
}

func TestClient_DisjointUpdatesSurviveReordering(t *testing.T) {
	c, f := seededClient(t)
	ctx := context.Background()
	gate := f.gate("node-a")

	slow := c.Go(ctx, UpdateNode("node-a", api.UpdateNodeRequest{Label: common.Some("renamed")}))
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Apply(ctx, UpdateNode("node-a", api.UpdateNodeRequest{X: common.Some(99.0)})))

	close(gate)
	err := <-slow
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation))

	n, _ := c.Mirror().Node("node-a")
	assert.Equal(t, "renamed", n.Label())
	assert.Equal(t, 99.0, n.Position().X())
	assert.Equal(t, "renamed", f.nodes["node-a"].Label)
	assert.Equal(t, 99.0, f.nodes["node-a"].X)
	assert.Empty(t, c.Notifications())
	assert.Empty(t, c.Mirror().pending)
}

func TestClient_SettledFieldsAreNotResent(t *testing.T) {
	c, f := seededClient(t)
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, UpdateNode("node-a", api.UpdateNodeRequest{Label: common.Some("renamed")})))
	require.NoError(t, c.Apply(ctx, UpdateNode("node-a", api.UpdateNodeRequest{X: common.Some(5.0)})))

	require.Len(t, f.updates, 2)
	assert.False(t, f.updates[1].Label.Set)
	assert.True(t, f.updates[1].X.Set)
}

func TestHandle_RollbackSkipsSuperseded(t *testing.T) {
	c, _ := seededClient(t)

	first := c.ApplyLocal(UpdateNode("node-c", api.UpdateNodeRequest{Label: common.Some("one")}))
	second := c.ApplyLocal(UpdateNode("node-c", api.UpdateNodeRequest{Label: common.Some("two")}))

	first.Rollback()
	assert.Equal(t, "two", label(t, c, "node-c"))

	second.Rollback()
	second.Rollback()
	assert.Equal(t, "one", label(t, c, "node-c"))
}

func TestClient_DeleteNodeCascadesLocally(t *testing.T) {
	c, f := seededClient(t)
	f.failNext("node-a", pkgerrors.NewStorageError("delete", errors.New("down")))

	h := c.ApplyLocal(DeleteNode("node-a"))
	require.NoError(t, h.Err())
	_, ok := c.Mirror().Edge("edge-ab")
	assert.False(t, ok)

	require.Error(t, c.Commit(context.Background(), h))
	_, ok = c.Mirror().Node("node-a")
	assert.True(t, ok)
	_, ok = c.Mirror().Edge("edge-ab")
	assert.True(t, ok)
	assert.Len(t, c.Mirror().Children("node-root"), 2)

	require.NoError(t, c.Apply(context.Background(), DeleteNode("node-a")))
	_, ok = c.Mirror().Node("node-a")
	assert.False(t, ok)
	assert.Empty(t, f.edges)
}

func TestClient_DeleteAppliesOrphanPolicy(t *testing.T) {
	t.Run("reparent", func(t *testing.T) {
		c, _ := seededClient(t, WithOrphanPolicy(entities.OrphanReparent))

		require.NoError(t, c.Apply(context.Background(), DeleteNode("node-root")))

		_, ok := c.Mirror().Node("node-root")
		assert.False(t, ok)
		assert.Len(t, c.Mirror().Children(""), 3)
		_, ok = c.Mirror().Edge("edge-ab")
		assert.True(t, ok)
	})

	t.Run("subtree", func(t *testing.T) {
		c, _ := seededClient(t, WithOrphanPolicy(entities.OrphanSubtree))

		require.NoError(t, c.Apply(context.Background(), DeleteNode("node-root")))

		nodes, edges := c.Mirror().Len()
		assert.Equal(t, 1, nodes)
		assert.Zero(t, edges)
	})

	t.Run("subtree rollback", func(t *testing.T) {
		c, f := seededClient(t, WithOrphanPolicy(entities.OrphanSubtree))
		f.failNext("node-root", pkgerrors.NewStorageError("delete", errors.New("down")))

		require.Error(t, c.Apply(context.Background(), DeleteNode("node-root")))

		nodes, edges := c.Mirror().Len()
		assert.Equal(t, 4, nodes)
		assert.Equal(t, 1, edges)
		assert.Equal(t, []string{"node-a", "node-b"}, childIDs(c, "node-root"))
	})
}

func TestClient_DeleteAlreadyGoneIsSuccess(t *testing.T) {
	c, f := seededClient(t)
	f.failNext("edge-ab", pkgerrors.NewEdgeNotFoundError("edge-ab"))

	require.NoError(t, c.Apply(context.Background(), DeleteEdge("edge-ab")))
	_, ok := c.Mirror().Edge("edge-ab")
	assert.False(t, ok)
}

func TestClient_Connect(t *testing.T) {
	c, f := seededClient(t)
	ctx := context.Background()

	_, err := c.Connect(ctx, "node-a", "node-missing", "default")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEndpointNotFound))
	assert.Zero(t, f.callCount())

	id, err := c.Connect(ctx, "node-b", "node-c", "smoothstep")
	require.NoError(t, err)
	assert.Equal(t, "edge-node-b-node-c", id)
	e, ok := c.Mirror().Edge(id)
	require.True(t, ok)
	assert.Equal(t, "smoothstep", string(e.Kind()))
	assert.Contains(t, f.edges, id)
}

func TestClient_ConnectRejectedRollsBack(t *testing.T) {
	c, f := seededClient(t)
	f.failNext("edge-node-b-node-c", pkgerrors.NewForbiddenError(""))

	_, err := c.Connect(context.Background(), "node-b", "node-c", "default")
	assert.True(t, pkgerrors.IsForbidden(err))
	_, ok := c.Mirror().Edge("edge-node-b-node-c")
	assert.False(t, ok)
}

func TestClient_CreateNodesRollsBackOnlyFailures(t *testing.T) {
	c, f := seededClient(t)
	f.failNext("node-bad", pkgerrors.NewValidationError("rejected"))

	err := c.CreateNodes(context.Background(), []api.Node{
		{ID: "node-p", Label: "Parent"},
		{ID: "node-q", Label: "Child", Payload: map[string]interface{}{"parentId": "node-p"}},
		{ID: "node-bad", Label: "Bad"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node-bad")
	assert.True(t, pkgerrors.IsValidation(err))

	_, ok := c.Mirror().Node("node-p")
	assert.True(t, ok)
	assert.True(t, c.Mirror().HasChildren("node-p"))
	_, ok = c.Mirror().Node("node-bad")
	assert.False(t, ok)
	assert.Contains(t, f.nodes, "node-q")
}

func TestClient_NotificationsNeverBlock(t *testing.T) {
	c, _ := seededClient(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < notificationCapacity+10; i++ {
			h := c.ApplyLocal(DeleteEdge("edge-missing"))
			_ = c.Commit(context.Background(), h)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commit blocked on a full notification channel")
	}
	assert.Len(t, c.Notifications(), notificationCapacity)
}

func TestDrag_CommitsOnce(t *testing.T) {
	c, f := seededClient(t)

	d, err := c.BeginDrag("node-c")
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, d.Move(float64(i*10), float64(i)))
	}
	assert.Zero(t, f.callCount())
	n, _ := c.Mirror().Node("node-c")
	assert.Equal(t, 50.0, n.Position().X())

	require.NoError(t, d.End(context.Background()))
	require.Len(t, f.updates, 1)
	assert.Equal(t, 50.0, f.updates[0].X.Value)
	assert.Equal(t, 5.0, f.updates[0].Y.Value)

	require.NoError(t, d.End(context.Background()))
	assert.Len(t, f.updates, 1)
}

func TestDrag_FailureReturnsToStart(t *testing.T) {
	c, f := seededClient(t)
	f.failNext("node-a", pkgerrors.NewStorageError("update", errors.New("down")))

	d, err := c.BeginDrag("node-a")
	require.NoError(t, err)
	require.NoError(t, d.Move(300, 300))

	require.Error(t, d.End(context.Background()))
	n, _ := c.Mirror().Node("node-a")
	assert.Equal(t, 10.0, n.Position().X())
}

func TestDrag_CarriesPendingFields(t *testing.T) {
	c, f := seededClient(t)
	ctx := context.Background()
	gate := f.gate("node-b")

	slow := c.Go(ctx, UpdateNode("node-b", api.UpdateNodeRequest{Label: common.Some("Bee")}))
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, time.Millisecond)

	d, err := c.BeginDrag("node-b")
	require.NoError(t, err)
	require.NoError(t, d.Move(40, 40))
	require.NoError(t, d.End(ctx))

	close(gate)
	<-slow

	assert.Equal(t, "Bee", f.nodes["node-b"].Label)
	assert.Equal(t, 40.0, f.nodes["node-b"].X)
	assert.Equal(t, "Bee", label(t, c, "node-b"))
}

func TestDrag_Cancel(t *testing.T) {
	c, f := seededClient(t)

	_, err := c.BeginDrag("node-missing")
	assert.True(t, pkgerrors.IsNotFound(err))

	d, err := c.BeginDrag("node-b")
	require.NoError(t, err)
	require.NoError(t, d.Move(1, 1))
	d.Cancel()

	n, _ := c.Mirror().Node("node-b")
	assert.Equal(t, 20.0, n.Position().X())
	require.NoError(t, d.End(context.Background()))
	assert.Zero(t, f.callCount())
}

func TestSession_Navigation(t *testing.T) {
	c, _ := seededClient(t)
	s := NewSession(c, navigation.WithSettleDelay(0))
	defer s.Close()

	root := s.View()
	assert.Equal(t, "", root.ParentID)
	require.Len(t, root.Nodes, 2)

	assert.False(t, s.Enter("node-c"))
	assert.False(t, s.Enter("node-missing"))
	require.True(t, s.Enter("node-root"))

	inside := s.View()
	assert.Equal(t, "node-root", inside.ParentID)
	require.Len(t, inside.Nodes, 2)
	require.Len(t, inside.Edges, 1)
	assert.Equal(t, "node-root", s.Path().String())
	assert.Equal(t, "Root", s.Path()[0].Label)

	require.NoError(t, c.Apply(context.Background(), UpdateNode("node-c", api.UpdateNodeRequest{
		Payload: common.Some(map[string]interface{}{"parentId": "node-root"}),
	})))
	assert.Len(t, s.View().Nodes, 3)

	assert.True(t, s.JumpTo(-1))
	assert.True(t, s.Path().IsRoot())
	require.True(t, s.Enter("node-root"))
	s.Reset()
	assert.Len(t, s.View().Nodes, 1)
}
