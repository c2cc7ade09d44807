package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

// Memory is an in-process Store with the same transition and dedup semantics
// as Postgres. It backs the worker and operator-API tests; it is not suitable
// for multi-process deployments since coordination lives in process memory.
type Memory struct {
	mu          sync.Mutex
	dedupTTL    time.Duration
	jobs        map[uuid.UUID]*domain.Job
	dedup       map[string]memDedupEntry
	queues      map[string][]uuid.UUID
	transitions []domain.TransitionRecord
	now         func() time.Time
}

type memDedupEntry struct {
	jobID     uuid.UUID
	expiresAt time.Time
}

func NewMemory(dedupTTL time.Duration) *Memory {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &Memory{
		dedupTTL: dedupTTL,
		jobs:     make(map[uuid.UUID]*domain.Job),
		dedup:    make(map[string]memDedupEntry),
		queues:   make(map[string][]uuid.UUID),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook for TTL and sweep behavior.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) CreateJob(_ context.Context, sourceRef, contentHash string, payload []byte) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.dedup[contentHash]; ok && e.expiresAt.After(now) {
		return domain.Job{}, &domain.DuplicateContentError{
			ContentHash:   contentHash,
			ExistingJobID: e.jobID,
		}
	}

	job := &domain.Job{
		ID:          uuid.New(),
		Status:      domain.StatusPending,
		SourceRef:   sourceRef,
		ContentHash: contentHash,
		Payload:     append([]byte(nil), payload...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.jobs[job.ID] = job
	m.dedup[contentHash] = memDedupEntry{jobID: job.ID, expiresAt: now.Add(m.dedupTTL)}
	m.queues[domain.QueueExtraction] = append(m.queues[domain.QueueExtraction], job.ID)
	m.record(job.ID, "", domain.StatusPending, "intake", "created")
	return *job, nil
}

func (m *Memory) GetJob(_ context.Context, id uuid.UUID) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return *job, nil
}

func (m *Memory) Transition(_ context.Context, id uuid.UUID, from []domain.JobStatus, to domain.JobStatus, upd Updates) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if job.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.Job{}, domain.ErrInvalidTransition
	}

	prev := job.Status
	job.Status = to
	if upd.Extraction != nil {
		claim := *upd.Extraction
		job.Extraction = &claim
	}
	if upd.SubmissionRef != nil {
		ref := *upd.SubmissionRef
		job.SubmissionRef = &ref
	}
	if upd.LastError != nil {
		msg := *upd.LastError
		job.LastError = &msg
	}
	if upd.AttemptCount != nil {
		job.AttemptCount = *upd.AttemptCount
	}
	job.UpdatedAt = m.now()

	workerID := upd.WorkerID
	if workerID == "" {
		workerID = "unknown"
	}
	m.record(id, prev, to, workerID, upd.Note)
	if upd.Enqueue != "" {
		m.queues[upd.Enqueue] = append(m.queues[upd.Enqueue], id)
	}
	return *job, nil
}

func (m *Memory) Enqueue(_ context.Context, queue string, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[queue] = append(m.queues[queue], jobID)
	return nil
}

func (m *Memory) Dequeue(_ context.Context, queue string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[queue]
	if len(q) == 0 {
		return uuid.Nil, false, nil
	}
	jobID := q[0]
	m.queues[queue] = q[1:]
	return jobID, true, nil
}

func (m *Memory) Remove(_ context.Context, queue string, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[queue]
	for i, id := range q {
		if id == jobID {
			m.queues[queue] = append(q[:i:i], q[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) QueueDepth(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[queue])), nil
}

func (m *Memory) ListQueue(_ context.Context, queue string, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var jobs []domain.Job
	for _, id := range m.queues[queue] {
		if len(jobs) >= limit {
			break
		}
		if job, ok := m.jobs[id]; ok {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func (m *Memory) History(_ context.Context, jobID uuid.UUID) ([]domain.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TransitionRecord
	for _, rec := range m.transitions {
		if rec.JobID == jobID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) TransitionsSince(_ context.Context, since time.Time, limit int) ([]domain.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 500
	}
	var out []domain.TransitionRecord
	for _, rec := range m.transitions {
		if rec.OccurredAt.After(since) {
			out = append(out, rec)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) SweepStuck(_ context.Context, olderThan time.Duration) (SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := SweepResult{}
	cutoff := m.now().Add(-olderThan)
	for _, job := range m.jobs {
		if !job.UpdatedAt.Before(cutoff) {
			continue
		}
		switch job.Status {
		case domain.StatusProcessing:
			job.Status = domain.StatusPending
			job.UpdatedAt = m.now()
			m.queues[domain.QueueExtraction] = append(m.queues[domain.QueueExtraction], job.ID)
			m.record(job.ID, domain.StatusProcessing, domain.StatusPending, "sweeper", "recovery sweep")
			res.Processing++
		case domain.StatusSubmitting:
			job.Status = domain.StatusExtracted
			job.UpdatedAt = m.now()
			m.queues[domain.QueueSubmission] = append(m.queues[domain.QueueSubmission], job.ID)
			m.record(job.ID, domain.StatusSubmitting, domain.StatusExtracted, "sweeper", "recovery sweep")
			res.Submitting++
		}
	}
	for hash, e := range m.dedup {
		if !e.expiresAt.After(m.now()) {
			delete(m.dedup, hash)
			res.DedupPurged++
		}
	}
	return res, nil
}

func (m *Memory) record(jobID uuid.UUID, from, to domain.JobStatus, workerID, note string) {
	m.transitions = append(m.transitions, domain.TransitionRecord{
		JobID:      jobID,
		FromStatus: from,
		ToStatus:   to,
		WorkerID:   workerID,
		Note:       note,
		OccurredAt: m.now(),
	})
}
