package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
	"github.com/userdra99/ncb-OCR-sub001/internal/extract"
	"github.com/userdra99/ncb-OCR-sub001/internal/route"
	"github.com/userdra99/ncb-OCR-sub001/internal/sink"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
)

// Extraction pops jobs off the extraction queue, runs the OCR engine, and
// routes the result. Claiming a job is the pending→processing transition;
// losing that race just means another worker already has it.
type Extraction struct {
	identity    Identity
	store       store.Store
	engine      extract.Engine
	audit       sink.Audit
	callTimeout time.Duration
	logger      *slog.Logger
	loop
}

func NewExtraction(identity Identity, st store.Store, engine extract.Engine, audit sink.Audit, callTimeout, pollInterval time.Duration, logger *slog.Logger) *Extraction {
	if audit == nil {
		audit = sink.NopAudit{}
	}
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &Extraction{
		identity:    identity,
		store:       st,
		engine:      engine,
		audit:       audit,
		callTimeout: callTimeout,
		logger:      logger,
		loop:        newLoop(logger, pollInterval),
	}
}

// Start runs the poll loop until ctx is canceled.
func (w *Extraction) Start(ctx context.Context) {
	w.logger.Info("extraction worker starting", "worker_id", w.identity.ID)
	w.run(ctx, w.cycle)
}

func (w *Extraction) cycle(ctx context.Context) bool {
	jobID, ok, err := w.store.Dequeue(ctx, domain.QueueExtraction)
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
		[]domain.JobStatus{domain.StatusPending}, domain.StatusProcessing,
		store.Updates{WorkerID: w.identity.String(), Note: "extraction started"})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn("stale queue entry ignored")
		} else {
			log.Error("claim transition failed", "err", err)
		}
		return true
	}

	log.Info("extraction started")
	w.extractAndRoute(ctx, job, log)
	return true
}

func (w *Extraction) extractAndRoute(ctx context.Context, job domain.Job, log *slog.Logger) {
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	raw, err := w.engine.Extract(callCtx, job.Payload, job.SourceRef)
	cancel()
	if err != nil {
		w.fail(ctx, job, "engine failure", err, log)
		return
	}

	claim, dropped, err := extract.ToClaim(raw)
	if err != nil {
		w.fail(ctx, job, "boundary rejection", err, log)
		return
	}
	if len(dropped) > 0 {
		log.Info("fields dropped at boundary", "fields", dropped)
	}

	decision := route.Route(claim)
	log = log.With("confidence", claim.Confidence, "disposition", string(decision.Disposition))

	var (
		to    domain.JobStatus
		queue string
		note  string
	)
	switch decision.Disposition {
	case route.AutoSubmit:
		to, queue, note = domain.StatusExtracted, domain.QueueSubmission, "auto submit"
	case route.ReviewSubmit:
		to, queue, note = domain.StatusFlagged, domain.QueueSubmission, "flagged for review"
	default:
		to, queue, note = domain.StatusException, domain.QueueException,
			strings.Join(decision.Problems, "; ")
	}

	// Enqueue rides on the transition so a crash here cannot leave the job
	// routed but absent from its queue.
	upd := store.Updates{
		Extraction: &claim,
		WorkerID:   w.identity.String(),
		Note:       note,
		Enqueue:    queue,
	}
	if decision.Disposition == route.Exception {
		msg := note
		upd.LastError = &msg
	}

	if _, err := w.store.Transition(ctx, job.ID,
		[]domain.JobStatus{domain.StatusProcessing}, to, upd); err != nil {
		// Most likely the sweeper reclaimed a slow extraction; the job will
		// be re-extracted by whoever owns it now.
		log.Warn("stale completion ignored", "err", err)
		return
	}

	log.Info("extraction routed")

	if err := w.audit.Log(ctx, job.ID, claim, string(decision.Disposition)); err != nil {
		log.Warn("audit log failed", "err", err)
	}
}

func (w *Extraction) fail(ctx context.Context, job domain.Job, reason string, cause error, log *slog.Logger) {
	msg := cause.Error()
	_, err := w.store.Transition(ctx, job.ID,
		[]domain.JobStatus{domain.StatusProcessing}, domain.StatusFailed,
		store.Updates{
			LastError: &msg,
			WorkerID:  w.identity.String(),
			Note:      reason,
		})
	if err != nil {
		log.Warn("stale failure transition ignored", "err", err)
		return
	}
	log.Warn("extraction failed", "reason", reason, "err", cause)
}
