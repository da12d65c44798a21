package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DESpear262/delicious-lotus-sub004/internal/api"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/config"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/worker"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
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

	// Inline image pipeline for synchronous small-image imports. The
	// heavy video work always goes through the queue.
	images, err := worker.NewPipeline(b.Service, b.Store,
		worker.WithNotifier(b.Notifier),
		worker.WithScratchDir(cfg.ScratchDir),
		worker.WithThumbnailWidth(cfg.ThumbnailWidth),
		worker.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to build image pipeline", "err", err)
		os.Exit(1)
	}

	// The memory queue lives in this process only, so this process is
	// also its consumer; without the loop every enqueued job would sit
	// unclaimed forever.
	if mq, ok := b.Queue.(*queue.Memory); ok {
		images.Register(mq)
		go func() {
			if err := mq.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("in-process queue loop stopped", "err", err)
			}
		}()
		logger.Info("consuming in-process queue")
	}

	server := api.NewServer(b.Service, b.Subscriber, images)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: server.Routes(),
	}

	go func() {
		logger.Info("media pipeline server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"storage", cfg.StorageType,
			"queue", cfg.QueueType,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")
	cancel() // stops the in-process queue loop, if any

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("server exiting")
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
