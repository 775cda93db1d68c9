// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking)
// or an operation that is not allowed in the entity's current state.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed input. Wrap it with the field-level cause.
var ErrValidation = errors.New("validation failed")
