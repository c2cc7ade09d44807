package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Register upserts the worker row so the transition history and operator
// surface can attribute work to a process. Safe to call on restart — ON
// CONFLICT refreshes the heartbeat and re-marks the worker active.
func Register(ctx context.Context, pool *pgxpool.Pool, id Identity) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO workers (id, hostname, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
			SET hostname       = EXCLUDED.hostname,
			    role           = EXCLUDED.role,
			    status         = 'active',
			    last_heartbeat = NOW()`,
		id.ID, id.Hostname, id.Role)
	return err
}

// RunHeartbeat updates last_heartbeat every 5 seconds so the sweeper can
// distinguish live workers from crashed ones. Stops cleanly on context
// cancellation. Run in a goroutine alongside the poll loop.
func RunHeartbeat(ctx context.Context, pool *pgxpool.Pool, id Identity, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := pool.Exec(ctx,
				`UPDATE workers SET last_heartbeat = NOW() WHERE id = $1`, id.ID)
			if err != nil {
				logger.Error("heartbeat failed", "err", err)
			}
		}
	}
}
