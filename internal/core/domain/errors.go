package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced item or batch does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCode means an item with the same code already exists.
	ErrDuplicateCode = errors.New("duplicate nomenclature code")

	// ErrDuplicateBatch means a batch with the same identity key was
	// inserted concurrently. Retryable: re-fetch and merge.
	ErrDuplicateBatch = errors.New("duplicate batch identity")

	// ErrInsufficientStock means a write-off exceeds the batch's quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ValidationError reports malformed input, detected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps an underlying store failure surfaced after rollback.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
