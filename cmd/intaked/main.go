// intaked watches the receipt drop folder, registers each file as a claim job,
// and archives the original bytes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/userdra99/ncb-OCR-sub001/internal/config"
	"github.com/userdra99/ncb-OCR-sub001/internal/inbox"
	"github.com/userdra99/ncb-OCR-sub001/internal/migrate"
	"github.com/userdra99/ncb-OCR-sub001/internal/sink"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
	"github.com/userdra99/ncb-OCR-sub001/internal/worker"
)

func main() {
	cfg := config.Load("intaked", os.Args[1:])
	logger := cfg.Logger()

	if err := worker.EnableParentDeathSignal(); err != nil {
		logger.Warn("failed to enable parent-death signal", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger.Info("connecting to database", "url", cfg.DatabaseURL)
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, logger); err != nil {
		logger.Error("run migrations failed", "err", err)
		os.Exit(1)
	}

	source, err := inbox.NewDirectory(cfg.InboxDir)
	if err != nil {
		logger.Error("open inbox failed", "err", err, "dir", cfg.InboxDir)
		os.Exit(1)
	}

	var archive sink.Archive = sink.NopArchive{}
	if cfg.ArchiveDir != "" {
		dir, err := sink.NewDir(cfg.ArchiveDir)
		if err != nil {
			logger.Error("open archive failed", "err", err, "dir", cfg.ArchiveDir)
			os.Exit(1)
		}
		archive = dir
	}

	hostname, _ := os.Hostname()
	identity := worker.NewIdentity(hostname, worker.RoleIntake)

	if err := worker.Register(ctx, pool, identity); err != nil {
		logger.Error("register worker failed", "err", err)
		os.Exit(1)
	}
	go worker.RunHeartbeat(ctx, pool, identity, logger)

	st := store.NewPostgres(pool, cfg.DedupTTL)
	w := worker.NewIntake(identity, st, source, archive, cfg.PollInterval, logger)

	go w.Start(ctx)

	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer drainCancel()
	if err := w.DrainAndWait(drainCtx); err != nil {
		logger.Warn("shutdown drain timeout", "err", err)
	}
	logger.Info("shutdown complete")
}
