package response

import "encoding/json"

// Opt holds a field that the portal may leave out. The zero value is absent,
// which is distinct from a present zero.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a present value.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

// None returns an absent value.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it was present.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether the field was sent.
func (o Opt[T]) Present() bool {
	return o.ok
}

// Or returns the value, or def when absent.
func (o Opt[T]) Or(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// MarshalJSON renders absent values as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
