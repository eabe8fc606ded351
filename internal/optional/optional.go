// Package optional provides type safe optional variables
// and conversions from and to the sql null types.
package optional

import (
	"fmt"
	"time"
)

// Optional represents a variable that may contain a value or not.
//
// The zero value is an empty Optional.
type Optional[T any] struct {
	value     T
	isPresent bool
}

// New returns a new Optional with a value.
func New[T any](v T) Optional[T] {
	return Optional[T]{value: v, isPresent: true}
}

// FromTimeWithZero returns an Optional for t, which is empty when t is the zero time.
func FromTimeWithZero(t time.Time) Optional[time.Time] {
	if t.IsZero() {
		return Optional[time.Time]{}
	}
	return New(t)
}

// IsEmpty reports whether an Optional is empty.
func (o Optional[T]) IsEmpty() bool {
	return !o.isPresent
}

// Set sets a new value.
func (o *Optional[T]) Set(v T) {
	o.value = v
	o.isPresent = true
}

// Clear removes any value.
func (o *Optional[T]) Clear() {
	var z T
	o.value = z
	o.isPresent = false
}

// Value returns the value and reports whether it was present.
func (o Optional[T]) Value() (T, bool) {
	return o.value, o.isPresent
}

// ValueOrFallback returns the value of an Optional or a fallback if it is empty.
func (o Optional[T]) ValueOrFallback(fallback T) T {
	if o.IsEmpty() {
		return fallback
	}
	return o.value
}

// ValueOrZero returns the value of an Optional or it's type's zero value if it is empty.
func (o Optional[T]) ValueOrZero() T {
	if o.IsEmpty() {
		var z T
		return z
	}
	return o.value
}

func (o Optional[T]) String() string {
	if o.IsEmpty() {
		return "<empty>"
	}
	return fmt.Sprint(o.value)
}
