// Package migrate applies the embedded schema migrations in filename order.
// Every daemon runs it at startup, so application and recording happen in one
// transaction to keep concurrent starters from half-applying a version.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func Run(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT        PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		version := strings.TrimSuffix(e.Name(), ".sql")
		applied, err := apply(ctx, pool, version, "migrations/"+e.Name())
		if err != nil {
			return err
		}
		if applied {
			logger.Info("migration applied", "version", version)
		}
	}
	return nil
}

func apply(ctx context.Context, pool *pgxpool.Pool, version, path string) (bool, error) {
	sql, err := migrationFS.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The insert doubles as the already-applied check. A conflict means a
	// concurrent starter got here first.
	tag, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (version) VALUES ($1)
		ON CONFLICT (version) DO NOTHING`, version)
	if err != nil {
		return false, fmt.Errorf("record migration %s: %w", version, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", version, err)
	}
	return true, nil
}
