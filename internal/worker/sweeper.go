package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/userdra99/ncb-OCR-sub001/internal/store"
)

// sweeperLockKey is the PostgreSQL advisory lock key used for sweeper
// election. Only one sweeper wins the lock across all processes.
const sweeperLockKey = int64(0x4E434253)

// SweeperConfig tunes the recovery sweep.
type SweeperConfig struct {
	// Interval between sweeps on the elected process.
	Interval time.Duration
	// StuckAfter is how long a job may sit in processing or submitting
	// before the sweep requeues it.
	StuckAfter time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 10 * time.Minute
	}
	return c
}

// RunSweeper competes for the advisory lock and runs the sweep loop on the
// winner. The lock is held on a dedicated connection so it auto-releases if
// the process crashes. Non-winners sleep and retry every 10 seconds.
func RunSweeper(ctx context.Context, pool *pgxpool.Pool, st store.Store,
	cfg SweeperConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			logger.Error("sweeper: acquire failed", "err", err)
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		var won bool
		err = conn.QueryRow(ctx,
			`SELECT pg_try_advisory_lock($1)`, sweeperLockKey).Scan(&won)
		if err != nil || !won {
			conn.Release()
			sleepCtx(ctx, 10*time.Second)
			continue
		}

		logger.Info("sweeper: won election")
		runSweepLoop(ctx, st, cfg, logger)
		conn.Release()
	}
}

// runSweepLoop ticks on the configured interval until ctx is canceled or a
// sweep fails, which releases the advisory lock so another process can win
// the next election.
func runSweepLoop(ctx context.Context, st store.Store,
	cfg SweeperConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := st.SweepStuck(ctx, cfg.StuckAfter)
			if err != nil {
				logger.Error("sweeper: sweep failed", "err", err)
				return
			}
			if res.Processing > 0 || res.Submitting > 0 ||
				res.DedupPurged > 0 || res.WorkersDead > 0 {
				logger.Info("sweeper: cycle complete",
					"requeued_extraction", res.Processing,
					"requeued_submission", res.Submitting,
					"dedup_purged", res.DedupPurged,
					"workers_dead", res.WorkersDead)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
