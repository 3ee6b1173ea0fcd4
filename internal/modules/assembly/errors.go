package assembly

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConcurrentModificationError means the optimistic-concurrency timestamp check
// failed: another actor modified the root part after the caller fetched it.
// Recoverable; the caller must restart the interactive flow with fresh data.
type ConcurrentModificationError struct {
	PartID   uuid.UUID
	Expected time.Time
	Actual   time.Time
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf(
		"part %s was modified concurrently (expected last_modified_at %s, found %s)",
		e.PartID.String(), e.Expected.UTC().Format(time.RFC3339Nano), e.Actual.UTC().Format(time.RFC3339Nano),
	)
}

// AmbiguousIdentityError means sibling nodes resolve to the same Part or
// Document identity through conflicting reference fields, or a fresh
// Part/Document would violate a uniqueness constraint.
type AmbiguousIdentityError struct {
	ComponentName string
	Reason        string
	Err           error
}

func (e *AmbiguousIdentityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ambiguous identity for %q: %s: %v", e.ComponentName, e.Reason, e.Err)
	}
	return fmt.Sprintf("ambiguous identity for %q: %s", e.ComponentName, e.Reason)
}

func (e *AmbiguousIdentityError) Unwrap() error { return e.Err }

// LockConflictError means the root file (or a dependency) is already locked by
// another actor. Not retried automatically.
type LockConflictError struct {
	FileID uuid.UUID
	Locker string
}

func (e *LockConflictError) Error() string {
	if e.Locker != "" {
		return fmt.Sprintf("document file %s is locked by %s", e.FileID.String(), e.Locker)
	}
	return fmt.Sprintf("document file %s is locked", e.FileID.String())
}

// DeprecatedFileError means the requested root file is deprecated and cannot
// drive a decomposition pass.
type DeprecatedFileError struct {
	FileID uuid.UUID
}

func (e *DeprecatedFileError) Error() string {
	return fmt.Sprintf("document file %s is deprecated", e.FileID.String())
}

// PersistenceError wraps a failure writing Part/Document/Link/Extension rows.
// It triggers full rollback and orphan cleanup.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExternalPipelineError means the CAD-side regeneration collaborator reported
// failure; treated like a persistence failure for cleanup purposes.
type ExternalPipelineError struct {
	Stage string
	Err   error
}

func (e *ExternalPipelineError) Error() string {
	return fmt.Sprintf("external pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *ExternalPipelineError) Unwrap() error { return e.Err }
