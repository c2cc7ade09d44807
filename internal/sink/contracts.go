// Package sink holds the notification targets the pipeline writes to on the
// side: an audit log of dispositions and an archive of original receipt
// files. Both are fire-and-forget — a sink failure is logged as a warning and
// never blocks a job's progress.
package sink

import (
	"context"

	"github.com/google/uuid"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

// Audit records each routed claim and its disposition.
type Audit interface {
	Log(ctx context.Context, jobID uuid.UUID, claim domain.ExtractedClaim, disposition string) error
}

// Archive stores the original receipt bytes and returns a retrieval URI.
type Archive interface {
	Archive(ctx context.Context, jobID uuid.UUID, data []byte) (string, error)
}

// NopAudit and NopArchive satisfy the contracts for deployments that have
// not configured a sink.
type NopAudit struct{}

func (NopAudit) Log(context.Context, uuid.UUID, domain.ExtractedClaim, string) error {
	return nil
}

type NopArchive struct{}

func (NopArchive) Archive(context.Context, uuid.UUID, []byte) (string, error) {
	return "", nil
}
