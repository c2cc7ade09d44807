package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
	"github.com/userdra99/ncb-OCR-sub001/internal/inbox"
	"github.com/userdra99/ncb-OCR-sub001/internal/sink"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
)

// Intake polls the inbox collaborator, creates a job per new receipt, and
// archives the original bytes. Job creation and dedup registration are one
// atomic store operation; the local seen-cache only spares the database a
// round trip on rapid redelivery and is never authoritative.
type Intake struct {
	identity Identity
	store    store.Store
	source   inbox.Source
	archive  sink.Archive
	seen     *gocache.Cache
	logger   *slog.Logger
	loop
}

func NewIntake(identity Identity, st store.Store, source inbox.Source, archive sink.Archive, pollInterval time.Duration, logger *slog.Logger) *Intake {
	if archive == nil {
		archive = sink.NopArchive{}
	}
	return &Intake{
		identity: identity,
		store:    st,
		source:   source,
		archive:  archive,
		seen:     gocache.New(10*time.Minute, 30*time.Minute),
		logger:   logger,
		loop:     newLoop(logger, pollInterval),
	}
}

// Start runs the intake loop until ctx is canceled.
func (w *Intake) Start(ctx context.Context) {
	w.logger.Info("intake worker starting", "worker_id", w.identity.ID)
	w.run(ctx, w.cycle)
}

func (w *Intake) cycle(ctx context.Context) bool {
	// A partial batch alongside an error still gets ingested. The source may
	// have already consumed those receipts from wherever they came from.
	envelopes, err := w.source.Poll(ctx)
	for _, env := range envelopes {
		w.ingest(ctx, env)
	}
	if err != nil && ctx.Err() == nil {
		w.logger.Error("inbox poll failed", "err", err)
	}
	return len(envelopes) > 0
}

func (w *Intake) ingest(ctx context.Context, env inbox.Envelope) {
	sum := sha256.Sum256(env.Data)
	contentHash := hex.EncodeToString(sum[:])

	log := w.logger.With("source_ref", env.SourceRef, "content_hash", contentHash)

	if prior, found := w.seen.Get(contentHash); found {
		log.Info("duplicate receipt skipped (local cache)", "duplicate_of", prior)
		return
	}

	job, err := w.store.CreateJob(ctx, env.SourceRef, contentHash, env.Data)
	if err != nil {
		var dup *domain.DuplicateContentError
		if errors.As(err, &dup) {
			w.seen.SetDefault(contentHash, dup.ExistingJobID.String())
			log.Info("duplicate receipt skipped", "duplicate_of", dup.ExistingJobID)
			return
		}
		log.Error("create job failed", "err", err)
		return
	}
	w.seen.SetDefault(contentHash, job.ID.String())

	log = log.With("job_id", job.ID)
	log.Info("job created")

	uri, err := w.archive.Archive(ctx, job.ID, env.Data)
	if err != nil {
		// Archival is off the primary path; the job proceeds regardless.
		log.Warn("archive failed", "err", err)
		return
	}
	if uri != "" {
		log.Info("receipt archived", "uri", uri)
	}
}
