// extractord pulls jobs off the extraction queue, runs the vision model over
// the receipt, and routes the result by confidence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/userdra99/ncb-OCR-sub001/internal/config"
	"github.com/userdra99/ncb-OCR-sub001/internal/extract"
	"github.com/userdra99/ncb-OCR-sub001/internal/migrate"
	"github.com/userdra99/ncb-OCR-sub001/internal/sink"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
	"github.com/userdra99/ncb-OCR-sub001/internal/worker"
)

func main() {
	cfg := config.Load("extractord", os.Args[1:])
	logger := cfg.Logger()

	if cfg.OpenAIKey == "" {
		logger.Error("openai key is required, set --openai-key or NCB_OPENAI_KEY")
		os.Exit(1)
	}

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

	engine, err := extract.NewOpenAIEngine(extract.OpenAIConfig{
		APIKey: cfg.OpenAIKey,
		Model:  cfg.OpenAIModel,
	})
	if err != nil {
		logger.Error("init extraction engine failed", "err", err)
		os.Exit(1)
	}

	var audit sink.Audit = sink.NopAudit{}
	if cfg.AuditXLSX != "" {
		audit = sink.NewXLSX(cfg.AuditXLSX)
	}

	hostname, _ := os.Hostname()
	identity := worker.NewIdentity(hostname, worker.RoleExtraction)

	if err := worker.Register(ctx, pool, identity); err != nil {
		logger.Error("register worker failed", "err", err)
		os.Exit(1)
	}
	go worker.RunHeartbeat(ctx, pool, identity, logger)

	st := store.NewPostgres(pool, cfg.DedupTTL)
	w := worker.NewExtraction(identity, st, engine, audit,
		2*time.Minute, cfg.PollInterval, logger)

	// The sweeper rides along with extraction workers; the advisory lock
	// keeps it single-instance across the cluster.
	go worker.RunSweeper(ctx, pool, st, worker.SweeperConfig{
		Interval:   cfg.SweepInterval,
		StuckAfter: cfg.StuckAfter,
	}, logger)

	go w.Start(ctx)

	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer drainCancel()
	if err := w.DrainAndWait(drainCtx); err != nil {
		logger.Warn("shutdown drain timeout", "err", err)
	}
	logger.Info("shutdown complete")
}
