package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

// Updates carries the field changes applied alongside a status transition.
// Nil pointers leave the column untouched.
type Updates struct {
	Extraction    *domain.ExtractedClaim
	SubmissionRef *string
	LastError     *string
	AttemptCount  *int
	// WorkerID and Note are recorded in the transition history row.
	WorkerID string
	Note     string
	// Enqueue, when non-empty, adds the job to that queue in the same
	// atomic operation as the status change. A crash can then never leave
	// a queueable status without its queue entry.
	Enqueue string
}

// SweepResult reports what a recovery sweep reclaimed.
type SweepResult struct {
	Processing  int64 // stuck processing jobs returned to pending
	Submitting  int64 // stuck submitting jobs returned to extracted
	DedupPurged int64
	WorkersDead int64
}

// Store is the single authoritative source of truth the workers coordinate
// through. All mutual exclusion between worker processes flows through
// Transition's atomic status guard and Dequeue's claim semantics.
type Store interface {
	// CreateJob atomically registers the dedup entry, inserts the job in
	// pending with the original receipt bytes, and enqueues it on the
	// extraction queue. Returns *domain.DuplicateContentError when the hash
	// has a live dedup entry.
	CreateJob(ctx context.Context, sourceRef, contentHash string, payload []byte) (domain.Job, error)

	GetJob(ctx context.Context, id uuid.UUID) (domain.Job, error)

	// Transition verifies the job's current status is in from before applying
	// to and upd. Exactly one of any set of concurrent callers with
	// overlapping from-sets succeeds; the rest get ErrInvalidTransition.
	// updated_at advances and a history row is appended on every success.
	Transition(ctx context.Context, id uuid.UUID, from []domain.JobStatus, to domain.JobStatus, upd Updates) (domain.Job, error)

	Enqueue(ctx context.Context, queue string, jobID uuid.UUID) error

	// Dequeue pops the oldest entry from queue. ok is false when the queue is
	// empty; callers poll with backoff.
	Dequeue(ctx context.Context, queue string) (jobID uuid.UUID, ok bool, err error)

	// Remove deletes a job's entry from queue without dequeuing order churn.
	// Used when a manual resolution takes a job off the exception queue.
	Remove(ctx context.Context, queue string, jobID uuid.UUID) error

	QueueDepth(ctx context.Context, queue string) (int64, error)

	// ListQueue returns the jobs currently on queue in FIFO order without
	// consuming them. Backs the operator exception listing.
	ListQueue(ctx context.Context, queue string, limit int) ([]domain.Job, error)

	History(ctx context.Context, jobID uuid.UUID) ([]domain.TransitionRecord, error)

	// TransitionsSince returns history rows recorded after the cursor,
	// oldest first. Feeds the operator event stream.
	TransitionsSince(ctx context.Context, since time.Time, limit int) ([]domain.TransitionRecord, error)

	// SweepStuck reclaims in-flight jobs whose updated_at is older than
	// olderThan: processing back to pending + extraction queue, submitting
	// back to extracted + submission queue. Also purges expired dedup
	// entries. The stuck worker's own completion transition loses the
	// status guard afterwards and abandons cleanly.
	SweepStuck(ctx context.Context, olderThan time.Duration) (SweepResult, error)
}
