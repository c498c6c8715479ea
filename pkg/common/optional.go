package common

import (
	"bytes"
	"encoding/json"
)

// Optional distinguishes the three states of a patch field: absent, explicit
// null, and present with a value. encoding/json only calls UnmarshalJSON when
// the key is present, which is what makes "absent" observable.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a present value
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns an explicit null
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Present reports whether the field carries a non-null value
func (o Optional[T]) Present() bool {
	return o.Set && !o.Null
}

// UnmarshalJSON implements json.Unmarshaler
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON implements json.Marshaler. Absent fields must be dropped by the
// enclosing struct (see IsZero); on their own they encode as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// IsZero lets `json:",omitzero"` drop absent fields.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}
