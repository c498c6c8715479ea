package valueobjects

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// Reserved payload keys
const (
	PayloadKeyParentID  = "parentId"
	PayloadKeySubBlocks = "subBlocks"
)

// SubBlockStatus is the display status of a sub-block
type SubBlockStatus string

const (
	SubBlockOnline  SubBlockStatus = "online"
	SubBlockOffline SubBlockStatus = "offline"
	SubBlockPending SubBlockStatus = "pending"
)

// SubBlock is a display-only item attached to a node. It is not a node and
// cannot be addressed on its own.
type SubBlock struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Status    SubBlockStatus `json:"status,omitempty"`
	SubBlocks []SubBlock     `json:"subBlocks,omitempty"`
}

// Payload is the open attribute bag of a node. The zero value is an empty bag.
// Payload is immutable: every accessor returns copies.
type Payload struct {
	attrs map[string]interface{}
}

// EmptyPayload returns a payload with no attributes
func EmptyPayload() Payload {
	return Payload{}
}

// NewPayload validates and copies raw attributes. A null parentId is treated
// as absent so the node lives on the root canvas.
func NewPayload(raw map[string]interface{}) (Payload, error) {
	attrs := copyMap(raw)
	if attrs == nil {
		return Payload{}, nil
	}

	if v, ok := attrs[PayloadKeyParentID]; ok {
		switch parent := v.(type) {
		case nil:
			delete(attrs, PayloadKeyParentID)
		case string:
			if parent == "" {
				delete(attrs, PayloadKeyParentID)
			} else if err := ValidateID(parent); err != nil {
				return Payload{}, invalidPayload("parentId: %v", err)
			}
		default:
			return Payload{}, invalidPayload("parentId must be a string")
		}
	}

	if v, ok := attrs[PayloadKeySubBlocks]; ok && v != nil {
		if _, err := decodeSubBlocks(v); err != nil {
			return Payload{}, err
		}
	}

	return Payload{attrs: attrs}, nil
}

// ParentID returns the nesting parent, if any
func (p Payload) ParentID() (NodeID, bool) {
	s, ok := p.attrs[PayloadKeyParentID].(string)
	if !ok || s == "" {
		return NodeID{}, false
	}
	return NodeID{value: s}, true
}

// WithParentID returns a copy nested under parent
func (p Payload) WithParentID(parent NodeID) Payload {
	attrs := copyMap(p.attrs)
	if attrs == nil {
		attrs = make(map[string]interface{}, 1)
	}
	attrs[PayloadKeyParentID] = parent.String()
	return Payload{attrs: attrs}
}

// WithoutParent returns a copy that lives on the root canvas
func (p Payload) WithoutParent() Payload {
	attrs := copyMap(p.attrs)
	delete(attrs, PayloadKeyParentID)
	return Payload{attrs: attrs}
}

// SubBlocks returns the ordered sub-block list
func (p Payload) SubBlocks() []SubBlock {
	v, ok := p.attrs[PayloadKeySubBlocks]
	if !ok || v == nil {
		return nil
	}
	blocks, err := decodeSubBlocks(v)
	if err != nil {
		return nil
	}
	return blocks
}

// HasSubBlocks reports whether the payload carries at least one sub-block
func (p Payload) HasSubBlocks() bool {
	list, ok := p.attrs[PayloadKeySubBlocks].([]interface{})
	if ok {
		return len(list) > 0
	}
	typed, ok := p.attrs[PayloadKeySubBlocks].([]SubBlock)
	return ok && len(typed) > 0
}

// Get returns a copy of a single attribute
func (p Payload) Get(key string) (interface{}, bool) {
	v, ok := p.attrs[key]
	return copyValue(v), ok
}

// Map returns a copy of all attributes; never nil
func (p Payload) Map() map[string]interface{} {
	m := copyMap(p.attrs)
	if m == nil {
		m = map[string]interface{}{}
	}
	return m
}

// IsEmpty reports whether the payload has no attributes
func (p Payload) IsEmpty() bool {
	return len(p.attrs) == 0
}

// MarshalJSON implements json.Marshaler
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return invalidPayload("payload must be a JSON object")
	}
	parsed, err := NewPayload(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePayloadJSON decodes a stored payload document
func ParsePayloadJSON(data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func decodeSubBlocks(v interface{}) ([]SubBlock, error) {
	if typed, ok := v.([]SubBlock); ok {
		return typed, nil
	}
	if _, ok := v.([]interface{}); !ok {
		return nil, invalidPayload("subBlocks must be an array")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, invalidPayload("subBlocks: %v", err)
	}
	var blocks []SubBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, invalidPayload("subBlocks must be objects with id and label")
	}
	if err := validateSubBlocks(blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func validateSubBlocks(blocks []SubBlock) error {
	for i, b := range blocks {
		switch b.Status {
		case "", SubBlockOnline, SubBlockOffline, SubBlockPending:
		default:
			return invalidPayload("subBlocks[%d].status must be one of online, offline, pending", i)
		}
		if err := validateSubBlocks(b.SubBlocks); err != nil {
			return err
		}
	}
	return nil
}

func invalidPayload(format string, args ...interface{}) error {
	return pkgerrors.NewValidationError(fmt.Sprintf("invalid payload: "+format, args...)).
		WithCode(pkgerrors.CodeInvalidPayload)
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []SubBlock:
		out := make([]SubBlock, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
