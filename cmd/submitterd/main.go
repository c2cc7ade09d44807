// submitterd pulls extracted claims off the submission queue and drives them
// to the downstream claims endpoint through the resilient client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/userdra99/ncb-OCR-sub001/internal/config"
	"github.com/userdra99/ncb-OCR-sub001/internal/migrate"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
	"github.com/userdra99/ncb-OCR-sub001/internal/submit"
	"github.com/userdra99/ncb-OCR-sub001/internal/worker"
)

func main() {
	cfg := config.Load("submitterd", os.Args[1:])
	logger := cfg.Logger()

	if cfg.Endpoint == "" {
		logger.Error("submission endpoint is required, set --endpoint or NCB_ENDPOINT")
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

	// Redis shares the 429 throttle window across all submitter processes.
	// Without it each process honors Retry-After independently.
	var gate submit.Gate = submit.NopGate{}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("parse redis URL failed", "err", err, "url", cfg.RedisURL)
			os.Exit(1)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()

		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, throttle window is process-local", "err", err)
		} else {
			gate = submit.NewRedisGate(rc, cfg.Endpoint)
		}
	}

	breaker := submit.NewBreaker(submit.BreakerConfig{})
	client := submit.NewClient(submit.Config{
		Endpoint:      cfg.Endpoint,
		APIKey:        cfg.APIKey,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.RateBurst,
	}, breaker, gate, logger)

	hostname, _ := os.Hostname()
	identity := worker.NewIdentity(hostname, worker.RoleSubmission)

	if err := worker.Register(ctx, pool, identity); err != nil {
		logger.Error("register worker failed", "err", err)
		os.Exit(1)
	}
	go worker.RunHeartbeat(ctx, pool, identity, logger)

	st := store.NewPostgres(pool, cfg.DedupTTL)
	w := worker.NewSubmission(identity, st, client, cfg.PollInterval, logger)

	go w.Start(ctx)

	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer drainCancel()
	if err := w.DrainAndWait(drainCtx); err != nil {
		logger.Warn("shutdown drain timeout, in-flight jobs will be swept", "err", err)
	}
	logger.Info("shutdown complete")
}
