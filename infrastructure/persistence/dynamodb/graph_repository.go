// Package dynamodb stores canvas graphs in a single DynamoDB table.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// maxTransactItems is the TransactWriteItems limit
const maxTransactItems = 100

// API is the subset of the DynamoDB client the repository uses
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// GraphRepository implements ports.GraphRepository using DynamoDB
type GraphRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

var (
	_ ports.GraphRepository = (*GraphRepository)(nil)
	_ ports.HealthChecker   = (*GraphRepository)(nil)
)

// NewGraphRepository creates a new GraphRepository
func NewGraphRepository(client API, tableName string, logger *zap.Logger) *GraphRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

// Ping implements ports.HealthChecker
func (r *GraphRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	if err != nil {
		return classify("describe_table", err)
	}
	return nil
}

func (r *GraphRepository) key(owner, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ownerKey(owner)},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (r *GraphRepository) getItem(ctx context.Context, owner, sk string, out interface{}) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(owner, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, classify("get_item", err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, pkgerrors.NewStorageError("unmarshal_item", err)
	}
	return true, nil
}

func (r *GraphRepository) GetNode(ctx context.Context, owner string, id valueobjects.NodeID) (*entities.Node, error) {
	var item nodeItem
	found, err := r.getItem(ctx, owner, nodeKey(id.String()), &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, pkgerrors.NewNodeNotFoundError(id.String())
	}
	return item.toEntity()
}

func (r *GraphRepository) getEdge(ctx context.Context, owner, id string) (*entities.Edge, error) {
	var item edgeItem
	found, err := r.getItem(ctx, owner, edgeKey(id), &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, pkgerrors.NewEdgeNotFoundError(id)
	}
	return item.toEntity()
}

// query pages through every item matching keyCond and hands each page to fn
func (r *GraphRepository) query(ctx context.Context, op string, index string, keyCond expression.KeyConditionBuilder, fn func([]map[string]types.AttributeValue) error) error {
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	} else {
		input.ConsistentRead = aws.Bool(true)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return classify(op, err)
		}
		if err := fn(page.Items); err != nil {
			return err
		}
	}
	return nil
}

func (r *GraphRepository) queryNodeItems(ctx context.Context, op, index string, keyCond expression.KeyConditionBuilder) ([]nodeItem, error) {
	var items []nodeItem
	err := r.query(ctx, op, index, keyCond, func(page []map[string]types.AttributeValue) error {
		var decoded []nodeItem
		if err := attributevalue.UnmarshalListOfMaps(page, &decoded); err != nil {
			return pkgerrors.NewStorageError(op, err)
		}
		items = append(items, decoded...)
		return nil
	})
	return items, err
}

func (r *GraphRepository) queryNodes(ctx context.Context, op, index string, keyCond expression.KeyConditionBuilder) ([]*entities.Node, error) {
	items, err := r.queryNodeItems(ctx, op, index, keyCond)
	if err != nil {
		return nil, err
	}
	nodes := []*entities.Node{}
	for _, item := range items {
		n, err := item.toEntity()
		if err != nil {
			r.logger.Warn("Skipping unreadable node item",
				zap.String("nodeID", item.NodeID),
				zap.Error(err),
			)
			continue
		}
		nodes = append(nodes, n)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if !nodes[i].CreatedAt().Equal(nodes[j].CreatedAt()) {
			return nodes[i].CreatedAt().Before(nodes[j].CreatedAt())
		}
		return nodes[i].ID().String() < nodes[j].ID().String()
	})
	return nodes, nil
}

func nodesKey(owner string) expression.KeyConditionBuilder {
	return expression.Key("PK").Equal(expression.Value(ownerKey(owner))).
		And(expression.Key("SK").BeginsWith("NODE#"))
}

func (r *GraphRepository) ListNodes(ctx context.Context, owner string) ([]*entities.Node, error) {
	return r.queryNodes(ctx, "list_nodes", "", nodesKey(owner))
}

// ListChildren reads the children index, which is eventually consistent: a
// child written moments ago may be missing. CascadeNodes re-checks children
// against the base table before deleting anything.
func (r *GraphRepository) ListChildren(ctx context.Context, owner string, parent valueobjects.NodeID) ([]*entities.Node, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(parentKey(owner, parent.String())))
	return r.queryNodes(ctx, "list_children", childrenIndex, keyCond)
}

func (r *GraphRepository) ListEdges(ctx context.Context, owner string) ([]*entities.Edge, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(ownerKey(owner))).
		And(expression.Key("SK").BeginsWith("EDGE#"))

	edges := []*entities.Edge{}
	err := r.query(ctx, "list_edges", "", keyCond, func(items []map[string]types.AttributeValue) error {
		var page []edgeItem
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return pkgerrors.NewStorageError("list_edges", err)
		}
		for _, item := range page {
			e, err := item.toEntity()
			if err != nil {
				r.logger.Warn("Skipping unreadable edge item", zap.String("edgeID", item.EdgeID), zap.Error(err))
				continue
			}
			edges = append(edges, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if !edges[i].CreatedAt().Equal(edges[j].CreatedAt()) {
			return edges[i].CreatedAt().Before(edges[j].CreatedAt())
		}
		return edges[i].ID() < edges[j].ID()
	})
	return edges, nil
}

func (r *GraphRepository) ListEdgesForNode(ctx context.Context, owner string, id valueobjects.NodeID) ([]*entities.Edge, error) {
	all, err := r.ListEdges(ctx, owner)
	if err != nil {
		return nil, err
	}
	touching := []*entities.Edge{}
	for _, e := range all {
		if e.Touches(id) {
			touching = append(touching, e)
		}
	}
	return touching, nil
}

// linkBump is a transaction step asserting that node id exists and counting
// one more attachment on it
func (r *GraphRepository) linkBump(owner, id string) (types.TransactWriteItem, error) {
	links := expression.Name("Links")
	update := expression.Set(links, expression.Plus(expression.IfNotExists(links, expression.Value(0)), expression.Value(1)))
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to build expression: %w", err)
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(r.tableName),
			Key:                       r.key(owner, nodeKey(id)),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

// putIfAbsent builds a Put that fails when the item already exists
func (r *GraphRepository) putIfAbsent(item interface{}) (*types.Put, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	expr, err := expression.NewBuilder().WithCondition(expression.Name("PK").AttributeNotExists()).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}
	return &types.Put{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	}, nil
}

func (r *GraphRepository) CreateNode(ctx context.Context, owner string, node *entities.Node) (*entities.Node, bool, error) {
	item, err := toNodeItem(owner, node)
	if err != nil {
		return nil, false, pkgerrors.NewValidationError(err.Error())
	}
	put, err := r.putIfAbsent(item)
	if err != nil {
		return nil, false, err
	}

	parent, nested := node.ParentID()
	if !nested {
		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                put.TableName,
			Item:                     put.Item,
			ConditionExpression:      put.ConditionExpression,
			ExpressionAttributeNames: put.ExpressionAttributeNames,
		})
		if isConditionFailed(err) {
			return r.existingNode(ctx, owner, node.ID())
		}
		if err != nil {
			return nil, false, classify("create_node", err)
		}
		return r.stored(owner, node), true, nil
	}

	bump, err := r.linkBump(owner, parent.String())
	if err != nil {
		return nil, false, err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{bump, {Put: put}},
	})
	if err != nil {
		reasons, cancelled := cancellationReasons(err)
		if !cancelled {
			return nil, false, classify("create_node", err)
		}
		if reasons[1] {
			return r.existingNode(ctx, owner, node.ID())
		}
		if reasons[0] {
			if existing, _, getErr := r.existingNode(ctx, owner, node.ID()); getErr == nil {
				return existing, false, nil
			}
			return nil, false, pkgerrors.NewParentNotFoundError(parent.String())
		}
		return nil, false, classify("create_node", err)
	}
	return r.stored(owner, node), true, nil
}

func (r *GraphRepository) existingNode(ctx context.Context, owner string, id valueobjects.NodeID) (*entities.Node, bool, error) {
	existing, err := r.GetNode(ctx, owner, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *GraphRepository) stored(owner string, node *entities.Node) *entities.Node {
	c := node.Clone()
	c.AssignOwner(owner)
	return c
}

// UpdateNode writes only the patched attributes. The Seq condition is
// evaluated by DynamoDB, so a stale mutation loses even when it races a
// newer one between read and write.
func (r *GraphRepository) UpdateNode(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (*entities.Node, error) {
	current, err := r.GetNode(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := next.Apply(patch, r.now()); err != nil {
		return nil, err
	}

	update, cond, err := r.updateFor(owner, next, patch)
	if err != nil {
		return nil, err
	}
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	parent, touched := patch.NewParent()
	if !touched || parent.IsZero() {
		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       r.key(owner, nodeKey(id.String())),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if isConditionFailed(err) {
			return nil, r.updateRejected(ctx, owner, id, patch)
		}
		if err != nil {
			return nil, classify("update_node", err)
		}
		return r.GetNode(ctx, owner, id)
	}

	bump, err := r.linkBump(owner, parent.String())
	if err != nil {
		return nil, err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(r.tableName),
				Key:                       r.key(owner, nodeKey(id.String())),
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			}},
			bump,
		},
	})
	if err != nil {
		reasons, cancelled := cancellationReasons(err)
		switch {
		case !cancelled:
			return nil, classify("update_node", err)
		case reasons[0]:
			return nil, r.updateRejected(ctx, owner, id, patch)
		case reasons[1]:
			return nil, pkgerrors.NewParentNotFoundError(parent.String())
		default:
			return nil, classify("update_node", err)
		}
	}
	return r.GetNode(ctx, owner, id)
}

// updateFor builds the SET/REMOVE clauses for the fields patch touches and the
// condition that guards them
func (r *GraphRepository) updateFor(owner string, next *entities.Node, patch entities.NodePatch) (expression.UpdateBuilder, expression.ConditionBuilder, error) {
	update := expression.Set(expression.Name("UpdatedAt"), expression.Value(next.UpdatedAt().UTC().Format(time.RFC3339Nano)))
	if patch.X.Set {
		update = update.Set(expression.Name("X"), expression.Value(next.Position().X()))
	}
	if patch.Y.Set {
		update = update.Set(expression.Name("Y"), expression.Value(next.Position().Y()))
	}
	if patch.Label.Set {
		update = update.Set(expression.Name("Label"), expression.Value(next.Label()))
	}
	if patch.Payload.Set {
		payload, err := next.Payload().MarshalJSON()
		if err != nil {
			return update, expression.ConditionBuilder{}, pkgerrors.NewValidationError(err.Error())
		}
		update = update.Set(expression.Name("Payload"), expression.Value(string(payload)))
		if parent := next.ParentKey(); parent != "" {
			update = update.
				Set(expression.Name("ParentID"), expression.Value(parent)).
				Set(expression.Name("GSI1PK"), expression.Value(parentKey(owner, parent))).
				Set(expression.Name("GSI1SK"), expression.Value(nodeKey(next.ID().String())))
		} else {
			update = update.
				Remove(expression.Name("ParentID")).
				Remove(expression.Name("GSI1PK")).
				Remove(expression.Name("GSI1SK"))
		}
	}

	cond := expression.Name("PK").AttributeExists()
	if patch.Seq > 0 {
		update = update.Set(expression.Name("Seq"), expression.Value(next.Seq()))
		cond = cond.And(expression.Name("Seq").LessThanEqual(expression.Value(patch.Seq)))
	}
	return update, cond, nil
}

// updateRejected explains a failed update condition
func (r *GraphRepository) updateRejected(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) error {
	current, err := r.GetNode(ctx, owner, id)
	if err != nil {
		return err
	}
	return pkgerrors.NewStaleMutationError(id.String(), patch.Seq, current.Seq())
}

func (r *GraphRepository) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) error {
	return r.deleteItem(ctx, "delete_node", owner, nodeKey(id.String()), pkgerrors.NewNodeNotFoundError(id.String()))
}

func (r *GraphRepository) DeleteEdge(ctx context.Context, owner string, id string) error {
	return r.deleteItem(ctx, "delete_edge", owner, edgeKey(id), pkgerrors.NewEdgeNotFoundError(id))
}

func (r *GraphRepository) deleteItem(ctx context.Context, op, owner, sk string, notFound error) error {
	expr, err := expression.NewBuilder().WithCondition(expression.Name("PK").AttributeExists()).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      r.key(owner, sk),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if isConditionFailed(err) {
		return notFound
	}
	if err != nil {
		return classify(op, err)
	}
	return nil
}

func (r *GraphRepository) CreateEdge(ctx context.Context, owner string, edge *entities.Edge) (*entities.Edge, bool, error) {
	put, err := r.putIfAbsent(toEdgeItem(owner, edge))
	if err != nil {
		return nil, false, err
	}

	endpoints := []string{edge.Source().String()}
	if !edge.Source().Equals(edge.Target()) {
		endpoints = append(endpoints, edge.Target().String())
	}
	items := []types.TransactWriteItem{{Put: put}}
	for _, id := range endpoints {
		bump, err := r.linkBump(owner, id)
		if err != nil {
			return nil, false, err
		}
		items = append(items, bump)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		reasons, cancelled := cancellationReasons(err)
		if !cancelled {
			return nil, false, classify("create_edge", err)
		}
		if reasons[0] {
			existing, err := r.getEdge(ctx, owner, edge.ID())
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		for i, id := range endpoints {
			if reasons[i+1] {
				return nil, false, pkgerrors.NewEndpointNotFoundError(id)
			}
		}
		return nil, false, classify("create_edge", err)
	}

	stored := edge.Clone()
	stored.AssignOwner(owner)
	return stored, true, nil
}

// maxCascadeAttempts bounds the read-then-transact cycles of one cascade
const maxCascadeAttempts = 3

var errCascadeRaced = errors.New("cascade transaction cancelled")

// CascadeNodes deletes in one TransactWriteItems call. Requests that do not
// fit in a single transaction are refused with ErrAtomicCascadeUnsupported.
//
// Each doomed node is deleted only while its Links counter holds the value
// read before the edges were listed, so an edge or child attached in between
// cancels the transaction and the cascade is read again.
func (r *GraphRepository) CascadeNodes(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	if len(req.Delete) == 0 {
		return []string{}, nil
	}
	for attempt := 1; ; attempt++ {
		removed, err := r.cascadeOnce(ctx, owner, req)
		if !errors.Is(err, errCascadeRaced) {
			return removed, err
		}
		if attempt == maxCascadeAttempts {
			return nil, pkgerrors.NewConflictError("graph changed while deleting, retry the request")
		}
		r.logger.Debug("Cascade raced a concurrent write, retrying",
			zap.String("nodeID", req.Delete[0].String()),
			zap.Int("attempt", attempt),
		)
	}
}

func (r *GraphRepository) cascadeOnce(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	target := req.Delete[0].String()
	doomed := make(map[string]bool, len(req.Delete))
	for _, id := range req.Delete {
		doomed[id.String()] = true
	}

	// Nodes are read before edges: an edge written after its endpoint was
	// read has bumped that endpoint's Links.
	items, err := r.queryNodeItems(ctx, "cascade_nodes", "", nodesKey(owner))
	if err != nil {
		return nil, err
	}
	stored := make(map[string]nodeItem, len(items))
	for _, item := range items {
		stored[item.NodeID] = item
	}
	if _, ok := stored[target]; !ok {
		return nil, pkgerrors.NewNodeNotFoundError(target)
	}
	if !planMatches(req, doomed, items) {
		return nil, ports.ErrCascadePlanStale
	}

	edges, err := r.ListEdges(ctx, owner)
	if err != nil {
		return nil, err
	}
	removed := []string{}
	for _, e := range edges {
		if doomed[e.Source().String()] || doomed[e.Target().String()] {
			removed = append(removed, e.ID())
		}
	}

	var present []nodeItem
	for _, id := range req.Delete {
		if item, ok := stored[id.String()]; ok {
			present = append(present, item)
		}
	}
	var reparent []*entities.Node
	for _, id := range req.Reparent {
		item, ok := stored[id.String()]
		if !ok || doomed[id.String()] {
			continue
		}
		child, err := item.toEntity()
		if err != nil {
			return nil, pkgerrors.NewStorageError("cascade_nodes", err)
		}
		reparent = append(reparent, child)
	}

	if len(present)+len(removed)+len(reparent) > maxTransactItems {
		return nil, ports.ErrAtomicCascadeUnsupported
	}

	writes := make([]types.TransactWriteItem, 0, len(present)+len(removed)+len(reparent))
	for _, item := range present {
		del, err := r.deleteUnlinked(owner, item)
		if err != nil {
			return nil, err
		}
		writes = append(writes, types.TransactWriteItem{Delete: del})
	}
	for _, id := range removed {
		writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(r.tableName),
			Key:       r.key(owner, edgeKey(id)),
		}})
	}
	now := r.now()
	for _, child := range reparent {
		child.Reparent(now)
		update, cond, err := r.updateFor(owner, child, entities.NodePatch{Payload: payloadPatch(child)})
		if err != nil {
			return nil, err
		}
		cond = cond.And(expression.Name("ParentID").Equal(expression.Value(target)))
		expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(r.tableName),
			Key:                       r.key(owner, nodeKey(child.ID().String())),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		if _, cancelled := cancellationReasons(err); cancelled {
			return nil, errCascadeRaced
		}
		return nil, classify("cascade_nodes", err)
	}

	r.logger.Debug("Cascade committed",
		zap.String("nodeID", target),
		zap.Int("items", len(writes)),
	)
	sort.Strings(removed)
	return removed, nil
}

// deleteUnlinked deletes a node only if nothing was attached to it since
// item was read
func (r *GraphRepository) deleteUnlinked(owner string, item nodeItem) (*types.Delete, error) {
	links := expression.Name("Links")
	unchanged := links.Equal(expression.Value(item.Links))
	if item.Links == 0 {
		unchanged = expression.Or(links.AttributeNotExists(), unchanged)
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists().And(unchanged)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}
	return &types.Delete{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(owner, nodeKey(item.NodeID)),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// planMatches reports whether req still accounts for every stored child of
// the nodes it deletes
func planMatches(req ports.CascadeRequest, doomed map[string]bool, items []nodeItem) bool {
	switch req.Orphans {
	case entities.OrphanReparent:
		target := req.Delete[0].String()
		planned := make(map[string]bool, len(req.Reparent))
		for _, id := range req.Reparent {
			planned[id.String()] = true
		}
		for _, item := range items {
			if doomed[item.NodeID] {
				continue
			}
			if (item.ParentID == target) != planned[item.NodeID] {
				return false
			}
		}
	case entities.OrphanSubtree:
		for _, item := range items {
			if item.ParentID != "" && doomed[item.ParentID] && !doomed[item.NodeID] {
				return false
			}
		}
	}
	return true
}

func payloadPatch(n *entities.Node) common.Optional[valueobjects.Payload] {
	return common.Some(n.Payload())
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// cancellationReasons reports, per transaction item, whether its condition
// failed. ok is false when err is not a cancelled transaction.
func cancellationReasons(err error) (failed map[int]bool, ok bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false
	}
	failed = make(map[int]bool, len(tce.CancellationReasons))
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			failed[i] = true
		}
	}
	return failed, true
}
