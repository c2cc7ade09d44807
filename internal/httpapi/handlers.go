package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
)

// jobView is the wire shape for a job. The receipt bytes are deliberately
// omitted from operator responses.
type jobView struct {
	ID            uuid.UUID              `json:"id"`
	Status        domain.JobStatus       `json:"status"`
	SourceRef     string                 `json:"source_ref"`
	ContentHash   string                 `json:"content_hash"`
	Extraction    *domain.ExtractedClaim `json:"extraction,omitempty"`
	SubmissionRef *string                `json:"submission_ref,omitempty"`
	AttemptCount  int                    `json:"attempt_count"`
	LastError     *string                `json:"last_error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func viewOf(j domain.Job) jobView {
	return jobView{
		ID:            j.ID,
		Status:        j.Status,
		SourceRef:     j.SourceRef,
		ContentHash:   j.ContentHash,
		Extraction:    j.Extraction,
		SubmissionRef: j.SubmissionRef,
		AttemptCount:  j.AttemptCount,
		LastError:     j.LastError,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

type transitionView struct {
	JobID      uuid.UUID        `json:"job_id"`
	FromStatus domain.JobStatus `json:"from_status"`
	ToStatus   domain.JobStatus `json:"to_status"`
	WorkerID   string           `json:"worker_id,omitempty"`
	Note       string           `json:"note,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func transitionViews(recs []domain.TransitionRecord) []transitionView {
	out := make([]transitionView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, transitionView{
			JobID:      rec.JobID,
			FromStatus: rec.FromStatus,
			ToStatus:   rec.ToStatus,
			WorkerID:   rec.WorkerID,
			Note:       rec.Note,
			OccurredAt: rec.OccurredAt,
		})
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("job lookup failed", "job_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}

	recs, err := s.store.History(r.Context(), id)
	if err != nil {
		s.logger.Error("history lookup failed", "job_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(recs) == 0 {
		if _, err := s.store.GetJob(r.Context(), id); errors.Is(err, domain.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
	}

	s.writeJSON(w, http.StatusOK, transitionViews(recs))
}

// handleRetryJob re-enters a failed job into the pipeline. Jobs that already
// carry an extraction go straight back to the submission queue; the rest start
// over from extraction.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("job lookup failed", "job_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	to := domain.StatusPending
	queue := domain.QueueExtraction
	if job.Extraction != nil {
		to = domain.StatusExtracted
		queue = domain.QueueSubmission
	}

	job, err = s.store.Transition(r.Context(), id,
		[]domain.JobStatus{domain.StatusFailed}, to,
		store.Updates{WorkerID: operatorID(r), Note: "operator retry", Enqueue: queue})
	if errors.Is(err, domain.ErrInvalidTransition) {
		s.writeError(w, http.StatusConflict, "job is not in failed")
		return
	}
	if err != nil {
		s.logger.Error("retry transition failed", "job_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("operator retried job", "job_id", id, "queue", queue)
	s.writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListQueue(r.Context(), domain.QueueException, 200)
	if err != nil {
		s.logger.Error("exception listing failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, viewOf(j))
	}
	s.writeJSON(w, http.StatusOK, views)
}

type resolveRequest struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

// handleResolveException closes out an exception. Approval sends the claim on
// to submission; rejection retires it as failed. Either way the job leaves the
// exception queue.
func (s *Server) handleResolveException(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note := req.Note
	var to domain.JobStatus
	var queue string
	switch req.Action {
	case "approve":
		to = domain.StatusExtracted
		queue = domain.QueueSubmission
		if note == "" {
			note = "operator approved"
		}
	case "reject":
		to = domain.StatusFailed
		if note == "" {
			note = "operator rejected"
		}
	default:
		s.writeError(w, http.StatusBadRequest, "action must be approve or reject")
		return
	}

	if req.Action == "approve" {
		job, err := s.store.GetJob(r.Context(), id)
		if err == nil && job.Extraction == nil {
			s.writeError(w, http.StatusConflict, "cannot approve a job without an extraction")
			return
		}
	}

	job, err := s.store.Transition(r.Context(), id,
		[]domain.JobStatus{domain.StatusException}, to,
		store.Updates{WorkerID: operatorID(r), Note: note, Enqueue: queue})
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		s.writeError(w, http.StatusConflict, "job is not in exception")
		return
	}
	if err != nil {
		s.logger.Error("resolve transition failed", "job_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.store.Remove(r.Context(), domain.QueueException, id); err != nil {
		s.logger.Warn("exception queue removal failed", "job_id", id, "err", err)
	}

	s.logger.Info("operator resolved exception", "job_id", id, "action", req.Action)
	s.writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleQueueDepths(w http.ResponseWriter, r *http.Request) {
	depths := make(map[string]int64, 3)
	for _, queue := range []string{
		domain.QueueExtraction, domain.QueueSubmission, domain.QueueException,
	} {
		depth, err := s.store.QueueDepth(r.Context(), queue)
		if err != nil {
			s.logger.Error("queue depth failed", "queue", queue, "err", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		depths[queue] = depth
	}
	s.writeJSON(w, http.StatusOK, depths)
}

// operatorID records who performed a manual action in the transition history.
func operatorID(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok && user != "" {
		return "operator:" + user
	}
	return "operator"
}
