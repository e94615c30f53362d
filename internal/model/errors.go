package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested event or conflict does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidEvent indicates an OfflineEvent violates its shape rules
	ErrInvalidEvent = errors.New("invalid offline event")

	// ErrResolutionDataRequired indicates merge/manual was requested without resolvedData
	ErrResolutionDataRequired = errors.New("resolvedData is required for merge and manual resolutions")

	// ErrInvalidResolution indicates an unknown resolution value
	ErrInvalidResolution = errors.New("invalid resolution")
)

// StorageError wraps a local persistence I/O failure. It is fatal to the
// current operation and never retried silently.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TransientRemoteError is a network or 5xx failure; the event goes back to pending
type TransientRemoteError struct {
	Op         string
	StatusCode int // 0 for network-level failures
	Err        error
}

func (e *TransientRemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientRemoteError) Unwrap() error { return e.Err }

// PermanentRemoteError is a 4xx/validation failure; the event is marked
// failed and needs explicit user or developer action.
type PermanentRemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *PermanentRemoteError) Error() string {
	return fmt.Sprintf("remote %s: rejected (status %d): %s", e.Op, e.StatusCode, e.Message)
}

// CorruptedStateError is a decompression or deserialization failure of
// persisted state. It must never be swallowed.
type CorruptedStateError struct {
	What string
	Err  error
}

func (e *CorruptedStateError) Error() string {
	return fmt.Sprintf("corrupted state (%s): %v", e.What, e.Err)
}

func (e *CorruptedStateError) Unwrap() error { return e.Err }

// AlreadyResolvedError rejects a second resolution of the same conflict
type AlreadyResolvedError struct {
	ConflictID string
	Resolution Resolution
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("conflict %s already resolved (%s)", e.ConflictID, e.Resolution)
}

// IsTransient reports whether err is (or wraps) a TransientRemoteError
func IsTransient(err error) bool {
	var te *TransientRemoteError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentRemoteError
func IsPermanent(err error) bool {
	var pe *PermanentRemoteError
	return errors.As(err, &pe)
}

// IsAlreadyResolved reports whether err is (or wraps) an AlreadyResolvedError
func IsAlreadyResolved(err error) bool {
	var ae *AlreadyResolvedError
	return errors.As(err, &ae)
}
