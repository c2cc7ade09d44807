package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a job id does not exist in the store.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when the atomic status guard trips:
	// the job's current status was not in the caller's from-set. The caller
	// lost a race for this job and should abandon it and poll again.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DuplicateContentError is returned by job creation when the content hash
// already has a live dedup entry. Non-fatal: the intake short-circuits to
// the existing job.
type DuplicateContentError struct {
	ContentHash   string
	ExistingJobID uuid.UUID
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("content %s already claimed by job %s", e.ContentHash, e.ExistingJobID)
}
