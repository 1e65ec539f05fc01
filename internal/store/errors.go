package store

import (
	"context"
	"errors"
	"strings"
)

// Error kinds surfaced by the storage layer. Point reads of a missing
// record return (nil, nil) rather than ErrNotFound; the sentinel exists
// for the few operations that must fail loudly on an unknown id.
var (
	// ErrNotInitialized is returned by any operation before Open or
	// after Close.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrInvalidArgument covers dimension mismatches, empty required
	// fields, and unknown enum values on deserialization.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned only where a missing id is an error,
	// such as resolving an unknown sync operation.
	ErrNotFound = errors.New("not found")

	// ErrStorageTransient marks retriable I/O or contention failures.
	ErrStorageTransient = errors.New("transient storage error")

	// ErrStorageFatal marks schema mismatch or corruption. Workers
	// that hit it stop and surface an error status.
	ErrStorageFatal = errors.New("fatal storage error")
)

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStorageTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

// IsFatal reports whether err indicates corruption or schema damage
// the caller cannot recover from by retrying.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStorageFatal) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column")
}
