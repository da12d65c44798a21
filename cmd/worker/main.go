package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/config"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if cfg.QueueType != "redis" {
		slog.Error("worker requires QUEUE_TYPE=redis; the memory queue is in-process only")
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := cfg.BuildService(ctx)
	if err != nil {
		logger.Error("failed to build service", "err", err)
		os.Exit(1)
	}
	svc := b.Service

	pipeline, err := worker.NewPipeline(svc, b.Store,
		worker.WithNotifier(b.Notifier),
		worker.WithScratchDir(cfg.ScratchDir),
		worker.WithThumbnailWidth(cfg.ThumbnailWidth),
		worker.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to build pipeline", "err", err)
		os.Exit(1)
	}

	srv := queue.NewServer(queue.ServerConfig{
		Redis:       cfg.RedisConfig(),
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
	})
	pipeline.Register(srv)

	if err := srv.Start(); err != nil {
		logger.Error("failed to start worker server", "err", err)
		os.Exit(1)
	}
	logger.Info("media pipeline worker started",
		"concurrency", cfg.WorkerConcurrency,
		"storage", cfg.StorageType,
		"reconcile_interval", cfg.ReconcileInterval,
	)

	// Periodic sweep for records stuck in an in-flight state whose queue
	// bookkeeping was lost (for example a Redis flush).
	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := svc.ReconcileStale(ctx, cfg.StaleAfter)
				if err != nil {
					logger.Warn("reconciliation sweep failed", "err", err)
					continue
				}
				if n > 0 {
					logger.Info("reconciliation sweep failed stalled records", "count", n)
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down worker")

	cancel()
	srv.Shutdown()
	logger.Info("worker exiting")
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
