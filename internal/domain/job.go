package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusExtracted  JobStatus = "extracted"
	StatusFlagged    JobStatus = "flagged"
	StatusSubmitting JobStatus = "submitting"
	StatusSubmitted  JobStatus = "submitted"
	StatusException  JobStatus = "exception"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no worker will pick the job up again without an
// external trigger (operator retry or manual resolution).
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSubmitted, StatusException, StatusFailed:
		return true
	}
	return false
}

// Queue names. Each is a durable FIFO list of job IDs backed by the store.
const (
	QueueExtraction = "extraction"
	QueueSubmission = "submission"
	QueueException  = "exception"
)

// Job tracks a single receipt from intake to terminal disposition.
type Job struct {
	ID            uuid.UUID
	Status        JobStatus
	SourceRef     string
	ContentHash   string
	Payload       []byte
	Extraction    *ExtractedClaim
	SubmissionRef *string
	AttemptCount  int
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExtractedClaim is the structured claim data produced by the extraction
// worker. Immutable once attached to a job; manual review correction replaces
// it wholesale through the resolve path.
type ExtractedClaim struct {
	MemberID        string             `json:"member_id"`
	TotalAmount     float64            `json:"total_amount"`
	ServiceDate     string             `json:"service_date"` // YYYY-MM-DD
	ReceiptNumber   string             `json:"receipt_number"`
	PolicyNumber    string             `json:"policy_number,omitempty"`
	ProviderName    string             `json:"provider_name,omitempty"`
	SSTAmount       float64            `json:"sst_amount,omitempty"`
	Items           []ClaimItem        `json:"items,omitempty"`
	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
}

type ClaimItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// TransitionRecord is one row of a job's transition history.
type TransitionRecord struct {
	JobID      uuid.UUID
	FromStatus JobStatus
	ToStatus   JobStatus
	WorkerID   string
	Note       string
	OccurredAt time.Time
}

// Worker mirrors a registered worker process. Informational: liveness is
// tracked via last_heartbeat and stale workers are marked dead by the sweeper.
type Worker struct {
	ID            uuid.UUID
	Hostname      string
	Role          string
	Status        string
	LastHeartbeat time.Time
	RegisteredAt  time.Time
}
