package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
	"github.com/userdra99/ncb-OCR-sub001/internal/extract"
	"github.com/userdra99/ncb-OCR-sub001/internal/inbox"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
	"github.com/userdra99/ncb-OCR-sub001/internal/submit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource yields each envelope batch once.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]inbox.Envelope
}

func (s *fakeSource) Poll(context.Context) ([]inbox.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// faultySource delivers a partial batch together with an error, the shape a
// directory inbox produces when one entry is unreadable.
type faultySource struct {
	envs []inbox.Envelope
	err  error
}

func (s *faultySource) Poll(context.Context) ([]inbox.Envelope, error) {
	return s.envs, s.err
}

// fakeEngine returns a canned extraction per source ref.
type fakeEngine struct {
	results map[string]extract.RawExtraction
	err     error
}

func (e *fakeEngine) Extract(_ context.Context, _ []byte, hint string) (extract.RawExtraction, error) {
	if e.err != nil {
		return extract.RawExtraction{}, e.err
	}
	raw, ok := e.results[hint]
	if !ok {
		return extract.RawExtraction{}, fmt.Errorf("no canned result for %s", hint)
	}
	return raw, nil
}

type auditEntry struct {
	jobID       uuid.UUID
	disposition string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) Log(_ context.Context, jobID uuid.UUID, _ domain.ExtractedClaim, disposition string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{jobID: jobID, disposition: disposition})
	return nil
}

func rawFields(confidence float64, fields string) extract.RawExtraction {
	return extract.RawExtraction{
		Fields:     json.RawMessage(fields),
		Confidence: confidence,
	}
}

const goodFields = `{
	"member_id": "MBR-1001",
	"total_amount": 152.40,
	"service_date": "2026-03-14",
	"receipt_number": "RCP-8872"
}`

func acceptServer(t *testing.T, ref string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reference": ref})
	}))
	t.Cleanup(server.Close)
	return server
}

func newSubmitClient(t *testing.T, endpoint string) *submit.Client {
	t.Helper()
	return submit.NewClient(submit.Config{
		Endpoint: endpoint,
		Policy:   submit.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, submit.NewBreaker(submit.BreakerConfig{}), submit.NopGate{}, testLogger())
}

func runIntake(t *testing.T, st store.Store, envs ...inbox.Envelope) {
	t.Helper()
	w := NewIntake(NewIdentity("test", RoleIntake), st,
		&fakeSource{batches: [][]inbox.Envelope{envs}}, nil, time.Millisecond, testLogger())
	w.cycle(context.Background())
}

// Receipts delivered alongside a poll error have already been consumed by
// the source and must still become jobs.
func TestIntakeIngestsPartialBatchOnPollError(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	src := &faultySource{
		envs: []inbox.Envelope{{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")}},
		err:  errors.New("reading broken.jpg: no such file"),
	}
	w := NewIntake(NewIdentity("test", RoleIntake), st, src, nil,
		time.Millisecond, testLogger())
	w.cycle(ctx)

	depth, err := st.QueueDepth(ctx, domain.QueueExtraction)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 1 {
		t.Fatalf("extraction queue depth = %d, want 1", depth)
	}

	job, err := st.GetJob(ctx, jobIDFromHistory(t, st))
	if err != nil {
		t.Fatal(err)
	}
	if job.SourceRef != "file:r1.jpg" || job.Status != domain.StatusPending {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestPipeline_HappyPathToSubmitted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	runIntake(t, st, inbox.Envelope{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")})

	audit := &fakeAudit{}
	engine := &fakeEngine{results: map[string]extract.RawExtraction{
		"file:r1.jpg": rawFields(0.96, goodFields),
	}}
	ew := NewExtraction(NewIdentity("test", RoleExtraction), st, engine, audit,
		time.Minute, time.Millisecond, testLogger())
	if !ew.cycle(ctx) {
		t.Fatal("extraction cycle found no work")
	}

	server := acceptServer(t, "SUB-100")
	sw := NewSubmission(NewIdentity("test", RoleSubmission), st,
		newSubmitClient(t, server.URL), time.Millisecond, testLogger())
	if !sw.cycle(ctx) {
		t.Fatal("submission cycle found no work")
	}

	recs, _ := st.History(ctx, jobIDFromHistory(t, st))
	final := recs[len(recs)-1]
	if final.ToStatus != domain.StatusSubmitted {
		t.Fatalf("final status = %s, want submitted (history: %+v)", final.ToStatus, recs)
	}

	job, err := st.GetJob(ctx, final.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.SubmissionRef == nil || *job.SubmissionRef != "SUB-100" {
		t.Errorf("submission_ref = %v, want SUB-100", job.SubmissionRef)
	}
	if job.AttemptCount != 1 {
		t.Errorf("attempt_count = %d, want 1", job.AttemptCount)
	}

	if len(audit.entries) != 1 || audit.entries[0].disposition != "AUTO_SUBMIT" {
		t.Errorf("audit entries = %+v", audit.entries)
	}
}

// jobIDFromHistory returns the single job's id via the transition stream.
func jobIDFromHistory(t *testing.T, st store.Store) uuid.UUID {
	t.Helper()
	recs, err := st.TransitionsSince(context.Background(), time.Time{}, 1)
	if err != nil || len(recs) == 0 {
		t.Fatalf("no transitions recorded: %v", err)
	}
	return recs[0].JobID
}

func TestPipeline_MidConfidenceFlaggedAndSubmitted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	runIntake(t, st, inbox.Envelope{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")})

	engine := &fakeEngine{results: map[string]extract.RawExtraction{
		"file:r1.jpg": rawFields(0.80, goodFields),
	}}
	ew := NewExtraction(NewIdentity("test", RoleExtraction), st, engine, nil,
		time.Minute, time.Millisecond, testLogger())
	ew.cycle(ctx)

	jobID := jobIDFromHistory(t, st)
	job, _ := st.GetJob(ctx, jobID)
	if job.Status != domain.StatusFlagged {
		t.Fatalf("status after extraction = %s, want flagged", job.Status)
	}

	var gotFlagged bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Flagged bool `json:"flagged_for_review"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		gotFlagged = payload.Flagged
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reference": "SUB-7"})
	}))
	defer server.Close()

	sw := NewSubmission(NewIdentity("test", RoleSubmission), st,
		newSubmitClient(t, server.URL), time.Millisecond, testLogger())
	sw.cycle(ctx)

	job, _ = st.GetJob(ctx, jobID)
	if job.Status != domain.StatusSubmitted {
		t.Fatalf("final status = %s, want submitted", job.Status)
	}
	if !gotFlagged {
		t.Error("flagged claim submitted without the review flag")
	}
}

func TestPipeline_LowConfidenceGoesToException(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	runIntake(t, st, inbox.Envelope{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")})

	engine := &fakeEngine{results: map[string]extract.RawExtraction{
		"file:r1.jpg": rawFields(0.40, goodFields),
	}}
	ew := NewExtraction(NewIdentity("test", RoleExtraction), st, engine, nil,
		time.Minute, time.Millisecond, testLogger())
	ew.cycle(ctx)

	jobID := jobIDFromHistory(t, st)
	job, _ := st.GetJob(ctx, jobID)
	if job.Status != domain.StatusException {
		t.Fatalf("status = %s, want exception", job.Status)
	}
	if job.LastError == nil {
		t.Error("exception recorded no reason")
	}

	depth, _ := st.QueueDepth(ctx, domain.QueueException)
	if depth != 1 {
		t.Errorf("exception queue depth = %d, want 1", depth)
	}
	depth, _ = st.QueueDepth(ctx, domain.QueueSubmission)
	if depth != 0 {
		t.Errorf("submission queue depth = %d, want 0: low confidence must never submit", depth)
	}
}

func TestPipeline_InvalidClaimBeatsHighConfidence(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	runIntake(t, st, inbox.Envelope{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")})

	// High confidence, but no member id.
	engine := &fakeEngine{results: map[string]extract.RawExtraction{
		"file:r1.jpg": rawFields(0.99, `{"total_amount": 50, "service_date": "2026-03-14", "receipt_number": "R1"}`),
	}}
	ew := NewExtraction(NewIdentity("test", RoleExtraction), st, engine, nil,
		time.Minute, time.Millisecond, testLogger())
	ew.cycle(ctx)

	job, _ := st.GetJob(ctx, jobIDFromHistory(t, st))
	if job.Status != domain.StatusException {
		t.Errorf("status = %s, want exception despite high confidence", job.Status)
	}
}

func TestPipeline_EngineFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	runIntake(t, st, inbox.Envelope{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")})

	engine := &fakeEngine{err: errors.New("model unavailable")}
	ew := NewExtraction(NewIdentity("test", RoleExtraction), st, engine, nil,
		time.Minute, time.Millisecond, testLogger())
	ew.cycle(ctx)

	job, _ := st.GetJob(ctx, jobIDFromHistory(t, st))
	if job.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.LastError == nil {
		t.Error("failure recorded no error")
	}
}

func TestPipeline_IntakeDeduplicates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(time.Hour)

	data := []byte("identical receipt bytes")
	runIntake(t, st,
		inbox.Envelope{SourceRef: "file:r1.jpg", Data: data},
		inbox.Envelope{SourceRef: "file:r1-copy.jpg", Data: data})

	depth, _ := st.QueueDepth(ctx, domain.QueueExtraction)
	if depth != 1 {
		t.Errorf("extraction queue depth = %d, want 1 after dedup", depth)
	}
}

func TestSubmission_RejectionGoesToException(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	runIntake(t, st, inbox.Envelope{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")})
	engine := &fakeEngine{results: map[string]extract.RawExtraction{
		"file:r1.jpg": rawFields(0.95, goodFields),
	}}
	NewExtraction(NewIdentity("test", RoleExtraction), st, engine, nil,
		time.Minute, time.Millisecond, testLogger()).cycle(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"member not covered"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	sw := NewSubmission(NewIdentity("test", RoleSubmission), st,
		newSubmitClient(t, server.URL), time.Millisecond, testLogger())
	sw.cycle(ctx)

	jobID := jobIDFromHistory(t, st)
	job, _ := st.GetJob(ctx, jobID)
	if job.Status != domain.StatusException {
		t.Fatalf("status = %s, want exception for permanent rejection", job.Status)
	}

	depth, _ := st.QueueDepth(ctx, domain.QueueException)
	if depth != 1 {
		t.Errorf("exception queue depth = %d, want 1", depth)
	}
}

func TestSubmission_ExhaustionFailsJob(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	runIntake(t, st, inbox.Envelope{SourceRef: "file:r1.jpg", Data: []byte("receipt-1")})
	engine := &fakeEngine{results: map[string]extract.RawExtraction{
		"file:r1.jpg": rawFields(0.95, goodFields),
	}}
	NewExtraction(NewIdentity("test", RoleExtraction), st, engine, nil,
		time.Minute, time.Millisecond, testLogger()).cycle(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sw := NewSubmission(NewIdentity("test", RoleSubmission), st,
		newSubmitClient(t, server.URL), time.Millisecond, testLogger())
	sw.cycle(ctx)

	job, _ := st.GetJob(ctx, jobIDFromHistory(t, st))
	if job.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed after exhaustion", job.Status)
	}
	if job.AttemptCount != 3 {
		t.Errorf("attempt_count = %d, want 3", job.AttemptCount)
	}
}

func TestSubmission_StaleQueueEntryIgnored(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(0)

	// A queue entry whose job has already moved on.
	job, _ := st.CreateJob(ctx, "file:r1.jpg", "hash-a", nil)
	st.Transition(ctx, job.ID,
		[]domain.JobStatus{domain.StatusPending}, domain.StatusFailed, store.Updates{})
	st.Dequeue(ctx, domain.QueueExtraction)
	st.Enqueue(ctx, domain.QueueSubmission, job.ID)

	server := acceptServer(t, "SUB-1")
	sw := NewSubmission(NewIdentity("test", RoleSubmission), st,
		newSubmitClient(t, server.URL), time.Millisecond, testLogger())
	if !sw.cycle(ctx) {
		t.Fatal("cycle did not consume the stale entry")
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("stale entry mutated the job: %s", got.Status)
	}
}
