// Package worker holds the three polling loops that drive claim jobs through
// the pipeline, plus the recovery sweeper. Loops are independent processes
// with no shared memory: all coordination goes through the store's atomic
// transitions and queue operations.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Worker roles.
const (
	RoleIntake     = "intake"
	RoleExtraction = "extraction"
	RoleSubmission = "submission"
)

// Identity names one worker process for registration, heartbeats and the
// transition history.
type Identity struct {
	ID       uuid.UUID
	Hostname string
	Role     string
}

func NewIdentity(hostname, role string) Identity {
	return Identity{ID: uuid.New(), Hostname: hostname, Role: role}
}

func (id Identity) String() string {
	return id.Role + ":" + id.ID.String()
}

// loop is the shared poll cycle: body reports whether it did work; idle
// cycles sleep pollInterval so an empty queue is not busy-spun. run is called
// exactly once per worker, from Start.
type loop struct {
	logger       *slog.Logger
	pollInterval time.Duration
	startDone    chan struct{}
}

func newLoop(logger *slog.Logger, pollInterval time.Duration) loop {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return loop{
		logger:       logger,
		pollInterval: pollInterval,
		startDone:    make(chan struct{}),
	}
}

func (l *loop) run(ctx context.Context, body func(context.Context) bool) {
	defer close(l.startDone)

	for {
		if ctx.Err() != nil {
			return
		}
		if busy := body(ctx); busy {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.pollInterval):
		}
	}
}

// DrainAndWait blocks until the poll loop exits (usually after ctx
// cancellation) or until the caller's timeout is reached.
func (l *loop) DrainAndWait(ctx context.Context) error {
	select {
	case <-l.startDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
