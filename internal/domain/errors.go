package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("slot already booked")
	// ErrNotFound is returned by lookups that found no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateClient may be returned by client upserts racing on the same id.
	// Callers treat it as success.
	ErrDuplicateClient = errors.New("client already exists")
)

// ValidationError reports malformed client input for a session step.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError means another booking already holds the triple.
type ConflictError struct {
	Day      string
	Time     string
	Provider Provider
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Day, e.Time, e.Provider, ErrConflict)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError wraps an I/O or connectivity fault of the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SchedulerError wraps a fault inside one reset cycle.
type SchedulerError struct {
	Stage string // count|clear|notify|...
	Err   error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("reset %s: %v", e.Stage, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }

// IsConflict reports whether err is (or wraps) a slot conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStorage reports whether err is (or wraps) a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
