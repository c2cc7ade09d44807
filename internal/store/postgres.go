package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

// Postgres is the production Store. A single database instance is the
// authoritative source of truth for every worker process; row-level locking
// and the status guard provide the mutual exclusion the pipeline relies on.
type Postgres struct {
	pool     *pgxpool.Pool
	dedupTTL time.Duration
}

const DefaultDedupTTL = 90 * 24 * time.Hour

func NewPostgres(pool *pgxpool.Pool, dedupTTL time.Duration) *Postgres {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &Postgres{pool: pool, dedupTTL: dedupTTL}
}

// Pool exposes the underlying pool for worker registration and heartbeats.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// dedupClaimSQL claims a content hash for a new job. A live entry wins the
// conflict and returns no row; an expired entry is overwritten in place so
// the same file can be re-intaken after the TTL without waiting for a purge.
const dedupClaimSQL = `
INSERT INTO dedup_entries (content_hash, job_id, created_at, expires_at)
VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
ON CONFLICT (content_hash) DO UPDATE
SET job_id     = EXCLUDED.job_id,
    created_at = NOW(),
    expires_at = EXCLUDED.expires_at
WHERE dedup_entries.expires_at <= NOW()
RETURNING job_id`

const jobColumns = `id, status, source_ref, content_hash, payload, extraction,
	submission_ref, attempt_count, last_error, created_at, updated_at`

func (p *Postgres) CreateJob(ctx context.Context, sourceRef, contentHash string, payload []byte) (domain.Job, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Job{}, fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	jobID := uuid.New()

	var claimed uuid.UUID
	err = tx.QueryRow(ctx, dedupClaimSQL,
		contentHash, jobID, p.dedupTTL.Seconds()).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		// Hash is held by a live entry — surface the owning job.
		var existing uuid.UUID
		if err := p.pool.QueryRow(ctx,
			`SELECT job_id FROM dedup_entries WHERE content_hash = $1`,
			contentHash).Scan(&existing); err != nil {
			return domain.Job{}, fmt.Errorf("lookup dedup owner: %w", err)
		}
		return domain.Job{}, &domain.DuplicateContentError{
			ContentHash:   contentHash,
			ExistingJobID: existing,
		}
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("claim content hash: %w", err)
	}

	job := domain.Job{}
	row := tx.QueryRow(ctx, `
		INSERT INTO jobs (id, status, source_ref, content_hash, payload)
		VALUES ($1, 'pending', $2, $3, $4)
		RETURNING `+jobColumns,
		jobID, sourceRef, contentHash, payload)
	if err := scanJob(row, &job); err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO queue_entries (queue, job_id) VALUES ($1, $2)`,
		domain.QueueExtraction, jobID); err != nil {
		return domain.Job{}, fmt.Errorf("enqueue new job: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO job_transitions (job_id, from_status, to_status, worker_id, note)
		VALUES ($1, '', 'pending', 'intake', 'created')`, jobID); err != nil {
		return domain.Job{}, fmt.Errorf("record creation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Job{}, fmt.Errorf("commit create job: %w", err)
	}
	return job, nil
}

func (p *Postgres) GetJob(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	job := domain.Job{}
	row := p.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err := scanJob(row, &job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, err
	}
	return job, nil
}

// transitionSQL applies the status change only when the current status is in
// the caller's from-set. The CTE captures the prior status under a row lock
// so the history row records where the job actually came from. RowsAffected
// discrimination happens in Go: no row back means either a lost race or a
// missing job.
const transitionSQL = `
WITH prev AS (
    SELECT id, status FROM jobs
    WHERE id = $1
    FOR UPDATE
)
UPDATE jobs SET
    status         = $2,
    extraction     = COALESCE($3::jsonb, jobs.extraction),
    submission_ref = COALESCE($4::text, jobs.submission_ref),
    last_error     = COALESCE($5::text, jobs.last_error),
    attempt_count  = COALESCE($6::int, jobs.attempt_count),
    updated_at     = NOW()
FROM prev
WHERE jobs.id = prev.id
  AND prev.status = ANY($7::text[])
RETURNING prev.status, ` + qualifiedJobColumns

const qualifiedJobColumns = `jobs.id, jobs.status, jobs.source_ref,
	jobs.content_hash, jobs.payload, jobs.extraction, jobs.submission_ref,
	jobs.attempt_count, jobs.last_error, jobs.created_at, jobs.updated_at`

func (p *Postgres) Transition(ctx context.Context, id uuid.UUID, from []domain.JobStatus, to domain.JobStatus, upd Updates) (domain.Job, error) {
	var extJSON *string
	if upd.Extraction != nil {
		b, err := json.Marshal(upd.Extraction)
		if err != nil {
			return domain.Job{}, fmt.Errorf("marshal extraction: %w", err)
		}
		s := string(b)
		extJSON = &s
	}

	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Job{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	job := domain.Job{}
	var fromStatus string
	row := tx.QueryRow(ctx, transitionSQL,
		id, string(to), extJSON, upd.SubmissionRef, upd.LastError,
		upd.AttemptCount, fromStrs)
	if err := scanJobWithPrev(row, &fromStatus, &job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a lost race from a missing job.
			var exists bool
			if qerr := p.pool.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id,
			).Scan(&exists); qerr != nil {
				return domain.Job{}, qerr
			}
			if !exists {
				return domain.Job{}, domain.ErrNotFound
			}
			return domain.Job{}, domain.ErrInvalidTransition
		}
		return domain.Job{}, err
	}

	workerID := upd.WorkerID
	if workerID == "" {
		workerID = "unknown"
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO job_transitions (job_id, from_status, to_status, worker_id, note)
		VALUES ($1, $2, $3, $4, $5)`,
		id, fromStatus, string(to), workerID, upd.Note); err != nil {
		return domain.Job{}, fmt.Errorf("record transition: %w", err)
	}

	if upd.Enqueue != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO queue_entries (queue, job_id) VALUES ($1, $2)`,
			upd.Enqueue, id); err != nil {
			return domain.Job{}, fmt.Errorf("enqueue on transition: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Job{}, fmt.Errorf("commit transition: %w", err)
	}
	return job, nil
}

func (p *Postgres) Enqueue(ctx context.Context, queue string, jobID uuid.UUID) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO queue_entries (queue, job_id) VALUES ($1, $2)`,
		queue, jobID)
	return err
}

// dequeueSQL pops the oldest entry. FOR UPDATE SKIP LOCKED means workers that
// lose the race move on immediately rather than blocking on each other.
const dequeueSQL = `
WITH next AS (
    SELECT id, job_id FROM queue_entries
    WHERE queue = $1
    ORDER BY id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
DELETE FROM queue_entries q
USING next
WHERE q.id = next.id
RETURNING next.job_id`

func (p *Postgres) Dequeue(ctx context.Context, queue string) (uuid.UUID, bool, error) {
	var jobID uuid.UUID
	err := p.pool.QueryRow(ctx, dequeueSQL, queue).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return jobID, true, nil
}

func (p *Postgres) Remove(ctx context.Context, queue string, jobID uuid.UUID) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM queue_entries WHERE queue = $1 AND job_id = $2`,
		queue, jobID)
	return err
}

func (p *Postgres) QueueDepth(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE queue = $1`, queue).Scan(&n)
	return n, err
}

func (p *Postgres) ListQueue(ctx context.Context, queue string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+qualifiedJobColumns+`
		FROM queue_entries q
		JOIN jobs ON jobs.id = q.job_id
		WHERE q.queue = $1
		ORDER BY q.id ASC
		LIMIT $2`, queue, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job := domain.Job{}
		if err := scanJob(rows, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (p *Postgres) History(ctx context.Context, jobID uuid.UUID) ([]domain.TransitionRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT job_id, from_status, to_status, worker_id, note, occurred_at
		FROM job_transitions
		WHERE job_id = $1
		ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransitions(rows)
}

func (p *Postgres) TransitionsSince(ctx context.Context, since time.Time, limit int) ([]domain.TransitionRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := p.pool.Query(ctx, `
		SELECT job_id, from_status, to_status, worker_id, note, occurred_at
		FROM job_transitions
		WHERE occurred_at > $1
		ORDER BY id ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// sweepSQL reclaims in-flight jobs whose worker stopped advancing them. The
// reclaimed job goes back to the state it was claimed from and is re-enqueued,
// all in one statement so a sweeper crash cannot leave a job off-queue.
const sweepSQL = `
WITH stuck AS (
    SELECT id FROM jobs
    WHERE status = $1
      AND updated_at < NOW() - make_interval(secs => $3)
    ORDER BY updated_at ASC
    LIMIT 500
    FOR UPDATE SKIP LOCKED
),
moved AS (
    UPDATE jobs SET
        status     = $2,
        updated_at = NOW()
    FROM stuck
    WHERE jobs.id = stuck.id
    RETURNING jobs.id
),
queued AS (
    INSERT INTO queue_entries (queue, job_id)
    SELECT $4, id FROM moved
    RETURNING job_id
)
INSERT INTO job_transitions (job_id, from_status, to_status, worker_id, note)
SELECT id, $1, $2, 'sweeper', 'recovery sweep'
FROM moved`

func (p *Postgres) SweepStuck(ctx context.Context, olderThan time.Duration) (SweepResult, error) {
	res := SweepResult{}
	secs := olderThan.Seconds()

	tag, err := p.pool.Exec(ctx, sweepSQL,
		string(domain.StatusProcessing), string(domain.StatusPending),
		secs, domain.QueueExtraction)
	if err != nil {
		return res, fmt.Errorf("sweep processing: %w", err)
	}
	res.Processing = tag.RowsAffected()

	tag, err = p.pool.Exec(ctx, sweepSQL,
		string(domain.StatusSubmitting), string(domain.StatusExtracted),
		secs, domain.QueueSubmission)
	if err != nil {
		return res, fmt.Errorf("sweep submitting: %w", err)
	}
	res.Submitting = tag.RowsAffected()

	// Expired dedup entries only block re-intake until this purge or the next
	// conflicting insert, whichever comes first. Completed jobs keep their
	// own rows; purging never touches them.
	tag, err = p.pool.Exec(ctx,
		`DELETE FROM dedup_entries WHERE expires_at <= NOW()`)
	if err != nil {
		return res, fmt.Errorf("purge dedup: %w", err)
	}
	res.DedupPurged = tag.RowsAffected()

	tag, err = p.pool.Exec(ctx, `
		UPDATE workers SET status = 'dead'
		WHERE status = 'active'
		  AND last_heartbeat < NOW() - interval '30 seconds'`)
	if err != nil {
		return res, fmt.Errorf("mark stale workers: %w", err)
	}
	res.WorkersDead = tag.RowsAffected()

	return res, nil
}

// scanJob populates a Job from a row selected with jobColumns order.
func scanJob(row pgx.Row, job *domain.Job) error {
	var (
		status  string
		extJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&status,
		&job.SourceRef,
		&job.ContentHash,
		&job.Payload,
		&extJSON,
		&job.SubmissionRef,
		&job.AttemptCount,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatus(status)
	if len(extJSON) > 0 {
		claim := domain.ExtractedClaim{}
		if err := json.Unmarshal(extJSON, &claim); err != nil {
			return fmt.Errorf("decode extraction: %w", err)
		}
		job.Extraction = &claim
	}
	return nil
}

func scanJobWithPrev(row pgx.Row, prevStatus *string, job *domain.Job) error {
	var (
		status  string
		extJSON []byte
	)
	err := row.Scan(
		prevStatus,
		&job.ID,
		&status,
		&job.SourceRef,
		&job.ContentHash,
		&job.Payload,
		&extJSON,
		&job.SubmissionRef,
		&job.AttemptCount,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatus(status)
	if len(extJSON) > 0 {
		claim := domain.ExtractedClaim{}
		if err := json.Unmarshal(extJSON, &claim); err != nil {
			return fmt.Errorf("decode extraction: %w", err)
		}
		job.Extraction = &claim
	}
	return nil
}

func scanTransitions(rows pgx.Rows) ([]domain.TransitionRecord, error) {
	var out []domain.TransitionRecord
	for rows.Next() {
		var (
			rec      domain.TransitionRecord
			from, to string
		)
		if err := rows.Scan(&rec.JobID, &from, &to, &rec.WorkerID,
			&rec.Note, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.FromStatus = domain.JobStatus(from)
		rec.ToStatus = domain.JobStatus(to)
		out = append(out, rec)
	}
	return out, rows.Err()
}
