package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
	"github.com/userdra99/ncb-OCR-sub001/internal/submit"
)

// Submission pops jobs off the submission queue and drives them through the
// resilient client. Multiple instances may run in parallel; the
// extracted/flagged→submitting guard keeps each job with exactly one of them.
type Submission struct {
	identity Identity
	store    store.Store
	client   *submit.Client
	logger   *slog.Logger
	loop
}

func NewSubmission(identity Identity, st store.Store, client *submit.Client, pollInterval time.Duration, logger *slog.Logger) *Submission {
	return &Submission{
		identity: identity,
		store:    st,
		client:   client,
		logger:   logger,
		loop:     newLoop(logger, pollInterval),
	}
}

// Start runs the poll loop until ctx is canceled.
func (w *Submission) Start(ctx context.Context) {
	w.logger.Info("submission worker starting", "worker_id", w.identity.ID)
	w.run(ctx, w.cycle)
}

func (w *Submission) cycle(ctx context.Context) bool {
	jobID, ok, err := w.store.Dequeue(ctx, domain.QueueSubmission)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("dequeue failed", "err", err)
		}
		return false
	}
	if !ok {
		return false
	}

	log := w.logger.With("job_id", jobID)

	job, err := w.store.Transition(ctx, jobID,
		[]domain.JobStatus{domain.StatusExtracted, domain.StatusFlagged},
		domain.StatusSubmitting,
		store.Updates{WorkerID: w.identity.String(), Note: "submission started"})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn("stale queue entry ignored")
		} else {
			log.Error("claim transition failed", "err", err)
		}
		return true
	}

	w.submit(ctx, job, log)
	return true
}

func (w *Submission) submit(ctx context.Context, job domain.Job, log *slog.Logger) {
	if job.Extraction == nil {
		msg := "no extraction attached"
		w.finish(ctx, job, domain.StatusException, store.Updates{
			LastError: &msg, Note: msg,
		}, log)
		return
	}

	// The pre-claim status carries the review flag through to the payload.
	flagged := w.wasFlagged(ctx, job.ID)

	log.Info("submitting claim", "flagged", flagged)
	res, err := w.client.Submit(ctx, job.ID, *job.Extraction, flagged)
	attempts := job.AttemptCount + res.Attempts

	switch {
	case err == nil:
		ref := res.Reference
		w.finish(ctx, job, domain.StatusSubmitted, store.Updates{
			SubmissionRef: &ref,
			AttemptCount:  &attempts,
			Note:          "downstream accepted",
		}, log)
		log.Info("claim submitted", "reference", ref, "attempts", res.Attempts)

	case submit.Permanent(err):
		msg := err.Error()
		w.finish(ctx, job, domain.StatusException, store.Updates{
			LastError:    &msg,
			AttemptCount: &attempts,
			Note:         "downstream rejected",
		}, log)
		log.Warn("claim rejected permanently", "err", err)

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown mid-submission: leave the job in submitting for the
		// recovery sweep rather than guessing an outcome.
		log.Info("submission abandoned during shutdown")

	default:
		// Transient exhaustion or open breaker.
		msg := err.Error()
		w.finish(ctx, job, domain.StatusFailed, store.Updates{
			LastError:    &msg,
			AttemptCount: &attempts,
			Note:         "retries exhausted",
		}, log)
		log.Warn("submission failed", "err", err, "attempts", res.Attempts)
	}
}

func (w *Submission) finish(ctx context.Context, job domain.Job, to domain.JobStatus, upd store.Updates, log *slog.Logger) {
	upd.WorkerID = w.identity.String()
	if to == domain.StatusException {
		// Atomic with the transition: the job can never land in exception
		// without its queue entry.
		upd.Enqueue = domain.QueueException
	}
	if _, err := w.store.Transition(ctx, job.ID,
		[]domain.JobStatus{domain.StatusSubmitting}, to, upd); err != nil {
		log.Warn("stale completion ignored", "err", err)
	}
}

func (w *Submission) wasFlagged(ctx context.Context, jobID uuid.UUID) bool {
	recs, err := w.store.History(ctx, jobID)
	if err != nil {
		w.logger.Warn("history lookup failed", "job_id", jobID, "err", err)
		return false
	}
	for _, rec := range recs {
		if rec.ToStatus == domain.StatusFlagged {
			return true
		}
	}
	return false
}
