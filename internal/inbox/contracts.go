// Package inbox supplies incoming receipt files to the intake worker. The
// pipeline only needs each (source_ref, bytes) pair delivered at most once
// effectively; true duplicate suppression is the dedup index's job.
package inbox

import "context"

// Envelope is one incoming receipt.
type Envelope struct {
	// SourceRef identifies the originating artifact, e.g. a message id plus
	// attachment name or a dropped file path.
	SourceRef string
	Data      []byte
}

// Source is the inbox collaborator.
type Source interface {
	// Poll returns any envelopes that arrived since the last call. An empty
	// slice is the normal idle result.
	Poll(ctx context.Context) ([]Envelope, error)
}
