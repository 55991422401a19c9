// Package errors defines error types and utilities for strata
package errors

import (
	"errors"
	"fmt"
)

// Common errors that can occur in adapter operations
var (
	// ErrNotFound is returned when a single-record update targets an id
	// that does not exist in storage
	ErrNotFound = errors.New("record not found")

	// ErrUnsupportedOperator is returned when a query uses a comparison
	// symbol with no registered predicate, including any "|"-prefixed
	// OR variant
	ErrUnsupportedOperator = errors.New("unsupported query operator")

	// ErrUnsupportedRelationShape is returned when relation loading is
	// requested in a configuration the adapter refuses to resolve
	ErrUnsupportedRelationShape = errors.New("unsupported relation shape")

	// ErrUnknownMapper is returned when a mapper name is not registered
	ErrUnknownMapper = errors.New("unknown mapper")

	// ErrInvalidMapper is returned when a mapper definition is invalid
	ErrInvalidMapper = errors.New("invalid mapper")

	// ErrInvalidKey is returned when a key path cannot be built
	ErrInvalidKey = errors.New("invalid key path")

	// ErrInvalidQuery is returned when a declarative query cannot be
	// normalized
	ErrInvalidQuery = errors.New("invalid query")

	// ErrConditionFailed is returned when a backend condition check fails
	ErrConditionFailed = errors.New("condition check failed")

	// ErrTransactionTooLarge is returned when a transactional batch
	// exceeds the backend's item limit
	ErrTransactionTooLarge = errors.New("transaction too large")

	// ErrTableNotFound is returned when the backing table doesn't exist
	ErrTableNotFound = errors.New("table not found")
)

// AdapterError represents a detailed error with context
type AdapterError struct {
	Op      string         // Operation that failed
	Kind    string         // Storage kind involved
	Err     error          // Underlying error
	Context map[string]any // Additional context
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	return fmt.Sprintf("strata: %s operation failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *AdapterError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new AdapterError
func NewError(op, kind string, err error) *AdapterError {
	return &AdapterError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// NewErrorWithContext creates a new AdapterError with context
func NewErrorWithContext(op, kind string, err error, context map[string]any) *AdapterError {
	return &AdapterError{
		Op:      op,
		Kind:    kind,
		Err:     err,
		Context: context,
	}
}

// IsNotFound checks if an error indicates a missing record
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnsupportedOperator checks if an error indicates an unregistered
// query operator
func IsUnsupportedOperator(err error) bool {
	return errors.Is(err, ErrUnsupportedOperator)
}

// IsUnsupportedRelationShape checks if an error indicates a refused
// relation configuration
func IsUnsupportedRelationShape(err error) bool {
	return errors.Is(err, ErrUnsupportedRelationShape)
}

// IsConditionFailed checks if an error indicates a condition check failure
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}
