// opsd serves the operator API: job inspection, manual retries, exception
// resolution, queue depths, and the websocket transition stream.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/userdra99/ncb-OCR-sub001/internal/config"
	"github.com/userdra99/ncb-OCR-sub001/internal/httpapi"
	"github.com/userdra99/ncb-OCR-sub001/internal/migrate"
	"github.com/userdra99/ncb-OCR-sub001/internal/store"
)

func main() {
	cfg := config.Load("opsd", os.Args[1:])
	logger := cfg.Logger()

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

	st := store.NewPostgres(pool, cfg.DedupTTL)

	stream := httpapi.NewStream(st, time.Second, logger)
	go stream.Run(ctx)

	server := httpapi.NewServer(st, httpapi.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	}, stream, logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server,
	}

	go func() {
		logger.Info("operator API listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timeout", "err", err)
	}
	logger.Info("shutdown complete")
}
