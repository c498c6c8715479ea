package valueobjects

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxIDLength = 128

// NodeID is a value object representing a node identifier. Ids are chosen by
// the client at creation time and are unique per owner, not globally.
type NodeID struct {
	value string
}

// NewNodeID creates a new random NodeID of the form node-<uuid>
func NewNodeID() NodeID {
	return NodeID{value: "node-" + uuid.NewString()}
}

// NewKindNodeID builds an id in the shape the canvas UI uses: node-<kind>-<millis>.
func NewKindNodeID(kind string, at time.Time) NodeID {
	return NodeID{value: fmt.Sprintf("node-%s-%d", kind, at.UnixMilli())}
}

// NewNodeIDFromString creates a NodeID from an existing string
func NewNodeIDFromString(id string) (NodeID, error) {
	if err := ValidateID(id); err != nil {
		return NodeID{}, err
	}
	return NodeID{value: id}, nil
}

// MustNodeID is NewNodeIDFromString for constants and tests.
func MustNodeID(id string) NodeID {
	n, err := NewNodeIDFromString(id)
	if err != nil {
		panic(err)
	}
	return n
}

// ValidateID checks that an id can be used as a storage key component.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("id must be at most %d characters", maxIDLength)
	}
	if strings.ContainsAny(id, "/#?\x00") || strings.TrimSpace(id) != id {
		return errors.New("id contains reserved characters")
	}
	return nil
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsZero checks if the NodeID is the zero value
func (id NodeID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *NodeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("NodeID must be a string")
	}
	id.value = s
	return nil
}
