package dynamodb

import (
	"fmt"
	"time"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
)

// Single-table key layout:
//
//	PK = USER#<owner>   SK = NODE#<id> | EDGE#<id>
//	GSI1PK = PARENT#<owner>#<parentId>, GSI1SK = NODE#<id>  (nested nodes only)
//
// Links on a node item counts the edges and children ever attached to it.
// Writes that attach something bump it in the same transaction, so a cascade
// conditioned on the value it read cannot miss a concurrent attachment.
const (
	entityNode = "NODE"
	entityEdge = "EDGE"

	childrenIndex = "GSI1"
)

func ownerKey(owner string) string { return "USER#" + owner }
func nodeKey(id string) string { return "NODE#" + id }
func edgeKey(id string) string { return "EDGE#" + id }
func parentKey(owner, parent string) string { return fmt.Sprintf("PARENT#%s#%s", owner, parent) }

// nodeItem represents the DynamoDB item structure for a node
type nodeItem struct {
	PK         string  `dynamodbav:"PK"`
	SK         string  `dynamodbav:"SK"`
	GSI1PK     string  `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK     string  `dynamodbav:"GSI1SK,omitempty"`
	EntityType string  `dynamodbav:"EntityType"`
	NodeID     string  `dynamodbav:"NodeID"`
	OwnerID    string  `dynamodbav:"OwnerID"`
	Kind       string  `dynamodbav:"Kind"`
	Label      string  `dynamodbav:"Label"`
	X          float64 `dynamodbav:"X"`
	Y          float64 `dynamodbav:"Y"`
	Payload    string  `dynamodbav:"Payload"`
	ParentID   string  `dynamodbav:"ParentID,omitempty"`
	Seq        int64   `dynamodbav:"Seq"`
	Links      int64   `dynamodbav:"Links"`
	CreatedAt  string  `dynamodbav:"CreatedAt"`
	UpdatedAt  string  `dynamodbav:"UpdatedAt"`
}

// edgeItem represents the DynamoDB item structure for an edge
type edgeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	EdgeID     string `dynamodbav:"EdgeID"`
	OwnerID    string `dynamodbav:"OwnerID"`
	SourceID   string `dynamodbav:"SourceID"`
	TargetID   string `dynamodbav:"TargetID"`
	Kind       string `dynamodbav:"Kind"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

func toNodeItem(owner string, n *entities.Node) (nodeItem, error) {
	payload, err := n.Payload().MarshalJSON()
	if err != nil {
		return nodeItem{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	item := nodeItem{
		PK:         ownerKey(owner),
		SK:         nodeKey(n.ID().String()),
		EntityType: entityNode,
		NodeID:     n.ID().String(),
		OwnerID:    owner,
		Kind:       string(n.Kind()),
		Label:      n.Label(),
		X:          n.Position().X(),
		Y:          n.Position().Y(),
		Payload:    string(payload),
		ParentID:   n.ParentKey(),
		Seq:        n.Seq(),
		CreatedAt:  n.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:  n.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
	if item.ParentID != "" {
		item.GSI1PK = parentKey(owner, item.ParentID)
		item.GSI1SK = item.SK
	}
	return item, nil
}

func (i nodeItem) toEntity() (*entities.Node, error) {
	id, err := valueobjects.NewNodeIDFromString(i.NodeID)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(i.X, i.Y)
	if err != nil {
		return nil, err
	}
	payload, err := valueobjects.ParsePayloadJSON([]byte(i.Payload))
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, i.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, i.UpdatedAt)
	return entities.ReconstructNode(id, i.OwnerID, entities.NodeKind(i.Kind), i.Label, position, payload, i.Seq, createdAt, updatedAt)
}

func toEdgeItem(owner string, e *entities.Edge) edgeItem {
	return edgeItem{
		PK:         ownerKey(owner),
		SK:         edgeKey(e.ID()),
		EntityType: entityEdge,
		EdgeID:     e.ID(),
		OwnerID:    owner,
		SourceID:   e.Source().String(),
		TargetID:   e.Target().String(),
		Kind:       string(e.Kind()),
		CreatedAt:  e.CreatedAt().UTC().Format(time.RFC3339Nano),
	}
}

func (i edgeItem) toEntity() (*entities.Edge, error) {
	source, err := valueobjects.NewNodeIDFromString(i.SourceID)
	if err != nil {
		return nil, err
	}
	target, err := valueobjects.NewNodeIDFromString(i.TargetID)
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, i.CreatedAt)
	return entities.ReconstructEdge(i.EdgeID, i.OwnerID, source, target, entities.EdgeKind(i.Kind), createdAt)
}
