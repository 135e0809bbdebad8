package types

import (
	"encoding/json"
	"fmt"
)

// FieldState describes whether a snapshot field carries a concrete value,
// failed to fetch, or was intentionally skipped this cycle.
type FieldState string

const (
	FieldStateValue       FieldState = "value"
	FieldStateUnavailable FieldState = "unavailable"
	// FieldStateUnchanged means the caching policy skipped this field for the
	// cycle and the consumer must retain its previously published value.
	FieldStateUnchanged FieldState = "unchanged"
)

// Field is a tri-state snapshot field. The state tag is explicit so that
// string-typed values can never collide with a sentinel (the vendor data
// contains arbitrary strings).
type Field[T any] struct {
	state FieldState
	value T
}

// Value returns a Field carrying v.
func Value[T any](v T) Field[T] {
	return Field[T]{state: FieldStateValue, value: v}
}

// Unavailable returns a Field for a facet that failed to fetch or does not
// exist yet.
func Unavailable[T any]() Field[T] {
	return Field[T]{state: FieldStateUnavailable}
}

// Unchanged returns a Field that was skipped this cycle by the caching policy.
func Unchanged[T any]() Field[T] {
	return Field[T]{state: FieldStateUnchanged}
}

// State returns the field state. The zero Field reports unavailable.
func (f Field[T]) State() FieldState {
	if f.state == "" {
		return FieldStateUnavailable
	}
	return f.state
}

// Get returns the value and whether the field carries one.
func (f Field[T]) Get() (T, bool) {
	if f.state != FieldStateValue {
		var zero T
		return zero, false
	}
	return f.value, true
}

// MustGet returns the value or the zero value when the field carries none.
func (f Field[T]) MustGet() T {
	return f.value
}

func (f Field[T]) IsValue() bool       { return f.State() == FieldStateValue }
func (f Field[T]) IsUnavailable() bool { return f.State() == FieldStateUnavailable }
func (f Field[T]) IsUnchanged() bool   { return f.State() == FieldStateUnchanged }

type fieldJSON[T any] struct {
	State FieldState `json:"state"`
	Value *T         `json:"value,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	out := fieldJSON[T]{State: f.State()}
	if f.State() == FieldStateValue {
		v := f.value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	var in fieldJSON[T]
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.State {
	case FieldStateValue:
		if in.Value == nil {
			return fmt.Errorf("field state %q missing value", in.State)
		}
		*f = Value(*in.Value)
	case FieldStateUnavailable, "":
		*f = Unavailable[T]()
	case FieldStateUnchanged:
		*f = Unchanged[T]()
	default:
		return fmt.Errorf("unknown field state %q", in.State)
	}
	return nil
}
