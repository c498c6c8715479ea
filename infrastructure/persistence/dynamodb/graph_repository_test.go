package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/repotest"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

func (m *mockClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.DescribeTableOutput)
	return out, args.Error(1)
}

func nodeAV(t *testing.T, n *entities.Node) map[string]types.AttributeValue {
	t.Helper()
	item, err := toNodeItem(n.OwnerID(), n)
	require.NoError(t, err)
	av, err := attributevalue.MarshalMap(item)
	require.NoError(t, err)
	return av
}

func edgeAV(t *testing.T, e *entities.Edge) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(toEdgeItem(e.OwnerID(), e))
	require.NoError(t, err)
	return av
}

func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{
		Message:             aws.String("Transaction cancelled"),
		CancellationReasons: reasons,
	}
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func setup() (*GraphRepository, *mockClient) {
	client := &mockClient{}
	return NewGraphRepository(client, "canvas-test", zap.NewNop()), client
}

func TestItems_NodeRoundTrip(t *testing.T) {
	n := repotest.NewNode(t, "alice", "child", "parent")
	item, err := toNodeItem("alice", n)
	require.NoError(t, err)

	assert.Equal(t, "USER#alice", item.PK)
	assert.Equal(t, "NODE#child", item.SK)
	assert.Equal(t, "PARENT#alice#parent", item.GSI1PK)
	assert.Equal(t, "NODE#child", item.GSI1SK)

	back, err := item.toEntity()
	require.NoError(t, err)
	assert.Equal(t, n.ID(), back.ID())
	assert.Equal(t, "parent", back.ParentKey())
	assert.True(t, n.CreatedAt().Equal(back.CreatedAt()))

	root, err := toNodeItem("alice", repotest.NewNode(t, "alice", "root", ""))
	require.NoError(t, err)
	assert.Empty(t, root.GSI1PK)
}

func TestCreateNode_Root(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	n := repotest.NewNode(t, "alice", "root", "")

	client.On("PutItem", ctx, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return aws.ToString(in.ConditionExpression) != "" && aws.ToString(in.TableName) == "canvas-test"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()

	stored, created, err := repo.CreateNode(ctx, "alice", n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", stored.OwnerID())
	client.AssertExpectations(t)
}

func TestCreateNode_ExistingReturnsStored(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	existing := repotest.NewNode(t, "alice", "root", "")
	retry := repotest.NewNode(t, "alice", "root", "")

	client.On("PutItem", ctx, mock.Anything).Return(nil, conditionFailed()).Once()
	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nodeAV(t, existing)}, nil).Once()

	stored, created, err := repo.CreateNode(ctx, "alice", retry)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, existing.CreatedAt().Equal(stored.CreatedAt()))
}

func TestCreateNode_MissingParent(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	n := repotest.NewNode(t, "alice", "child", "ghost")

	client.On("TransactWriteItems", ctx, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 2 && in.TransactItems[0].Update != nil && in.TransactItems[1].Put != nil
	})).Return(nil, cancelled("ConditionalCheckFailed", "None")).Once()
	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil).Once()

	_, _, err := repo.CreateNode(ctx, "alice", n)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeParentNotFound))
}

func TestUpdateNode_StaleAgainstStored(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	n := repotest.NewNode(t, "alice", "n", "")
	require.NoError(t, n.Apply(entities.NodePatch{X: common.Some(5.0), Seq: 7}, n.CreatedAt()))

	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nodeAV(t, n)}, nil).Once()

	_, err := repo.UpdateNode(ctx, "alice", n.ID(), entities.NodePatch{X: common.Some(1.0), Seq: 3})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation))
	client.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything)
}

func TestUpdateNode_LosesRaceOnCondition(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	before := repotest.NewNode(t, "alice", "n", "")
	after := before.Clone()
	require.NoError(t, after.Apply(entities.NodePatch{X: common.Some(9.0), Seq: 9}, before.CreatedAt()))

	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nodeAV(t, before)}, nil).Once()
	client.On("UpdateItem", ctx, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return in.ConditionExpression != nil && in.UpdateExpression != nil
	})).Return(nil, conditionFailed()).Once()
	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nodeAV(t, after)}, nil).Once()

	_, err := repo.UpdateNode(ctx, "alice", before.ID(), entities.NodePatch{X: common.Some(1.0), Seq: 6})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleMutation))
}

func TestUpdateNode_MoveChecksParent(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	n := repotest.NewNode(t, "alice", "n", "")
	payload := n.Payload().WithParentID(valueobjects.MustNodeID("ghost"))

	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nodeAV(t, n)}, nil).Once()
	client.On("TransactWriteItems", ctx, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 2 && in.TransactItems[0].Update != nil && in.TransactItems[1].Update != nil
	})).Return(nil, cancelled("None", "ConditionalCheckFailed")).Once()

	_, err := repo.UpdateNode(ctx, "alice", n.ID(), entities.NodePatch{Payload: common.Some(payload)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeParentNotFound))
}

func TestDelete_MissingIsNotFound(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()

	client.On("DeleteItem", ctx, mock.Anything).Return(nil, conditionFailed()).Twice()

	assert.True(t, pkgerrors.IsNotFound(repo.DeleteNode(ctx, "alice", valueobjects.MustNodeID("gone"))))
	assert.True(t, pkgerrors.HasCode(repo.DeleteEdge(ctx, "alice", "edge-a-b"), pkgerrors.CodeEdgeNotFound))
}

func TestCreateEdge_SelfLoopChecksOnce(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	e := repotest.NewEdge(t, "alice", "a", "a")

	client.On("TransactWriteItems", ctx, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 2
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

	_, created, err := repo.CreateEdge(ctx, "alice", e)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreateEdge_MissingTarget(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	e := repotest.NewEdge(t, "alice", "a", "b")

	client.On("TransactWriteItems", ctx, mock.Anything).
		Return(nil, cancelled("None", "None", "ConditionalCheckFailed")).Once()

	_, _, err := repo.CreateEdge(ctx, "alice", e)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEndpointNotFound))
	assert.Equal(t, "b", pkgerrors.GetAppError(err).Details["nodeId"])
}

func TestCreateEdge_CountsLinksOnBothEndpoints(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	e := repotest.NewEdge(t, "alice", "a", "b")

	var captured *dynamodb.TransactWriteItemsInput
	client.On("TransactWriteItems", ctx, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*dynamodb.TransactWriteItemsInput)
	}).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

	_, _, err := repo.CreateEdge(ctx, "alice", e)
	require.NoError(t, err)

	require.Len(t, captured.TransactItems, 3)
	for i, id := range []string{"a", "b"} {
		update := captured.TransactItems[i+1].Update
		require.NotNil(t, update)
		assert.Equal(t, "NODE#"+id, update.Key["SK"].(*types.AttributeValueMemberS).Value)
		assert.Contains(t, aws.ToString(update.UpdateExpression), "if_not_exists")
		assert.NotNil(t, update.ConditionExpression)
	}
}

// queryFor matches the base-table query over one entity prefix
func queryFor(prefix string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return hasPrefixValue(in.ExpressionAttributeValues, prefix)
	})
}

func hasPrefixValue(values map[string]types.AttributeValue, prefix string) bool {
	for _, v := range values {
		if s, ok := v.(*types.AttributeValueMemberS); ok && s.Value == prefix {
			return true
		}
	}
	return false
}

func TestCascadeNodes_SingleTransaction(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()
	target := repotest.NewNode(t, "alice", "target", "")
	child := repotest.NewNode(t, "alice", "child", "target")
	other := repotest.NewNode(t, "alice", "other", "")

	client.On("Query", ctx, queryFor("NODE#")).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		nodeAV(t, target), nodeAV(t, child), nodeAV(t, other),
	}}, nil).Once()
	client.On("Query", ctx, queryFor("EDGE#")).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		edgeAV(t, repotest.NewEdge(t, "alice", "target", "other")),
		edgeAV(t, repotest.NewEdge(t, "alice", "other", "else")),
	}}, nil).Once()

	var captured *dynamodb.TransactWriteItemsInput
	client.On("TransactWriteItems", ctx, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*dynamodb.TransactWriteItemsInput)
	}).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

	removed, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{
		Delete:   []valueobjects.NodeID{target.ID()},
		Reparent: []valueobjects.NodeID{child.ID()},
		Orphans:  entities.OrphanReparent,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"edge-target-other"}, removed)

	require.NotNil(t, captured)
	require.Len(t, captured.TransactItems, 3)
	assert.NotNil(t, captured.TransactItems[0].Delete.ConditionExpression)
	assert.NotNil(t, captured.TransactItems[1].Delete)
	assert.NotNil(t, captured.TransactItems[2].Update.ConditionExpression)
	client.AssertNumberOfCalls(t, "GetItem", 0)
}

func TestCascadeNodes_TooLargeIsUnsupported(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()

	items := make([]map[string]types.AttributeValue, 0, maxTransactItems)
	for i := 0; i < maxTransactItems; i++ {
		items = append(items, edgeAV(t, repotest.NewEdge(t, "alice", "hub", fmt.Sprintf("leaf-%d", i))))
	}
	client.On("Query", ctx, queryFor("NODE#")).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		nodeAV(t, repotest.NewNode(t, "alice", "hub", "")),
	}}, nil).Once()
	client.On("Query", ctx, queryFor("EDGE#")).Return(&dynamodb.QueryOutput{Items: items}, nil).Once()

	_, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{
		Delete: []valueobjects.NodeID{valueobjects.MustNodeID("hub")},
	})
	assert.ErrorIs(t, err, ports.ErrAtomicCascadeUnsupported)
	client.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
}

func TestCascadeNodes_TargetGoneIsNotFound(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()

	client.On("Query", ctx, queryFor("NODE#")).Return(&dynamodb.QueryOutput{}, nil).Once()

	_, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{
		Delete: []valueobjects.NodeID{valueobjects.MustNodeID("target")},
	})
	assert.True(t, pkgerrors.IsNotFound(err))
	client.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
}

func TestCascadeNodes_UnplannedChildIsStale(t *testing.T) {
	tests := []struct {
		name    string
		orphans entities.OrphanPolicy
		stale   bool
	}{
		{name: "reparent", orphans: entities.OrphanReparent, stale: true},
		{name: "subtree", orphans: entities.OrphanSubtree, stale: true},
		{name: "keep", orphans: entities.OrphanKeep, stale: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, client := setup()
			ctx := context.Background()

			// the children index had not caught up with "late" when the plan was built
			client.On("Query", ctx, queryFor("NODE#")).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
				nodeAV(t, repotest.NewNode(t, "alice", "target", "")),
				nodeAV(t, repotest.NewNode(t, "alice", "late", "target")),
			}}, nil).Once()
			client.On("Query", ctx, queryFor("EDGE#")).Return(&dynamodb.QueryOutput{}, nil).Maybe()
			client.On("TransactWriteItems", ctx, mock.Anything).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Maybe()

			_, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{
				Delete:  []valueobjects.NodeID{valueobjects.MustNodeID("target")},
				Orphans: tt.orphans,
			})
			if tt.stale {
				assert.ErrorIs(t, err, ports.ErrCascadePlanStale)
				client.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// racingClient is a tiny stateful table. The first edge listing of a cascade
// lets a CreateEdge commit right after the read, the way a concurrent request
// would slip in between the cascade's reads and its transaction.
type racingClient struct {
	mockClient
	t     *testing.T
	repo  *GraphRepository
	nodes map[string]nodeItem
	edges map[string]edgeItem
	late  *entities.Edge

	cascades int
}

func (c *racingClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	out := &dynamodb.QueryOutput{}
	if hasPrefixValue(in.ExpressionAttributeValues, "NODE#") {
		for _, item := range c.nodes {
			av, err := attributevalue.MarshalMap(item)
			require.NoError(c.t, err)
			out.Items = append(out.Items, av)
		}
		return out, nil
	}
	for _, item := range c.edges {
		av, err := attributevalue.MarshalMap(item)
		require.NoError(c.t, err)
		out.Items = append(out.Items, av)
	}
	if c.late != nil {
		late := c.late
		c.late = nil
		_, created, err := c.repo.CreateEdge(context.Background(), "alice", late)
		require.NoError(c.t, err)
		require.True(c.t, created)
	}
	return out, nil
}

func (c *racingClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if in.TransactItems[0].Put != nil {
		var e edgeItem
		require.NoError(c.t, attributevalue.UnmarshalMap(in.TransactItems[0].Put.Item, &e))
		c.edges[e.EdgeID] = e
		for _, step := range in.TransactItems[1:] {
			id := skID(step.Update.Key)
			item := c.nodes[id]
			item.Links++
			c.nodes[id] = item
		}
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}

	c.cascades++
	for _, step := range in.TransactItems {
		if step.Delete == nil || step.Delete.ConditionExpression == nil {
			continue
		}
		item, ok := c.nodes[skID(step.Delete.Key)]
		if !ok || !sameLinks(step.Delete.ExpressionAttributeValues, item.Links) {
			return nil, cancelled("ConditionalCheckFailed")
		}
	}
	for _, step := range in.TransactItems {
		if step.Delete == nil {
			continue
		}
		sk := step.Delete.Key["SK"].(*types.AttributeValueMemberS).Value
		if strings.HasPrefix(sk, "EDGE#") {
			delete(c.edges, strings.TrimPrefix(sk, "EDGE#"))
			continue
		}
		delete(c.nodes, strings.TrimPrefix(sk, "NODE#"))
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func skID(key map[string]types.AttributeValue) string {
	return strings.TrimPrefix(key["SK"].(*types.AttributeValueMemberS).Value, "NODE#")
}

func sameLinks(values map[string]types.AttributeValue, links int64) bool {
	for _, v := range values {
		if n, ok := v.(*types.AttributeValueMemberN); ok {
			return n.Value == fmt.Sprint(links)
		}
	}
	return false
}

func TestCascadeNodes_RetriesWhenEdgeLandsMidCascade(t *testing.T) {
	client := &racingClient{
		t:     t,
		nodes: map[string]nodeItem{},
		edges: map[string]edgeItem{},
	}
	repo := NewGraphRepository(client, "canvas-test", zap.NewNop())
	client.repo = repo
	for _, id := range []string{"target", "peer"} {
		item, err := toNodeItem("alice", repotest.NewNode(t, "alice", id, ""))
		require.NoError(t, err)
		client.nodes[id] = item
	}
	client.late = repotest.NewEdge(t, "alice", "peer", "target")

	removed, err := repo.CascadeNodes(context.Background(), "alice", ports.CascadeRequest{
		Delete: []valueobjects.NodeID{valueobjects.MustNodeID("target")},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, client.cascades, "first transaction must be cancelled by the new edge")
	assert.Equal(t, []string{"edge-peer-target"}, removed)
	assert.Empty(t, client.edges, "no edge may outlive its endpoint")
	assert.NotContains(t, client.nodes, "target")
	assert.Contains(t, client.nodes, "peer")
}

func TestCascadeNodes_GivesUpAfterRepeatedRaces(t *testing.T) {
	repo, client := setup()
	ctx := context.Background()

	client.On("Query", ctx, queryFor("NODE#")).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		nodeAV(t, repotest.NewNode(t, "alice", "target", "")),
	}}, nil)
	client.On("Query", ctx, queryFor("EDGE#")).Return(&dynamodb.QueryOutput{}, nil)
	client.On("TransactWriteItems", ctx, mock.Anything).Return(nil, cancelled("ConditionalCheckFailed"))

	_, err := repo.CascadeNodes(ctx, "alice", ports.CascadeRequest{
		Delete: []valueobjects.NodeID{valueobjects.MustNodeID("target")},
	})
	assert.True(t, pkgerrors.IsConflict(err))
	client.AssertNumberOfCalls(t, "TransactWriteItems", maxCascadeAttempts)
}

func TestClassify(t *testing.T) {
	throttled := classify("get_item", &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")})
	require.True(t, pkgerrors.IsStorage(throttled))
	assert.True(t, pkgerrors.IsRetryable(throttled))
	assert.Equal(t, "ProvisionedThroughputExceededException", pkgerrors.GetAppError(throttled).Details["awsCode"])

	missing := classify("get_item", &types.ResourceNotFoundException{Message: aws.String("no table")})
	assert.False(t, pkgerrors.IsRetryable(missing))

	assert.Nil(t, classify("noop", nil))
}
