package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// RedisConfig holds connection parameters for the Redis queue backend.
// Queue bookkeeping (visibility locks, retry counts, dead-letter entries)
// lives here and is not durable business data; losing it loses in-flight
// jobs, which the reconciliation sweep detects.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Client is the Redis-backed producer side, wrapping an asynq client.
type Client struct {
	client *asynq.Client
}

// NewClient creates a Redis-backed queue client.
func NewClient(cfg RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Enqueue implements Enqueuer on top of asynq. Jobs with a deterministic
// id conflict with their live predecessor, which callers use to coalesce
// duplicate submissions for the same artifact.
func (c *Client) Enqueue(ctx context.Context, kind string, payload []byte, opts ...Option) (string, error) {
	o := applyOptions(opts)

	asynqOpts := []asynq.Option{
		asynq.Queue(o.queue),
		asynq.MaxRetry(o.maxRetries),
		asynq.Timeout(o.timeout),
		asynq.Retention(o.retention),
	}
	if o.jobID != "" {
		asynqOpts = append(asynqOpts, asynq.TaskID(o.jobID))
	}
	if o.delay > 0 {
		asynqOpts = append(asynqOpts, asynq.ProcessIn(o.delay))
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(kind, payload), asynqOpts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateJob, o.jobID)
		}
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return info.ID, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// ServerConfig tunes the Redis-backed worker server.
type ServerConfig struct {
	Redis       RedisConfig
	Concurrency int
	// QueuePriorities maps queue name to weight; drained strictly in
	// priority order.
	QueuePriorities map[string]int
	MaxBackoff      time.Duration
	Logger          *slog.Logger
}

// Server is the Redis-backed consumer side. asynq provides the visibility
// lease, heartbeat extension and re-delivery on worker crash; terminal
// handler errors skip the retry budget and land in the archived set,
// which serves as the dead-letter queue for operator inspection.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewServer creates a Redis-backed worker server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.QueuePriorities == nil {
		cfg.QueuePriorities = map[string]int{QueueCritical: 6, QueueDefault: 3}
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    cfg.Concurrency,
			Queues:         cfg.QueuePriorities,
			StrictPriority: true,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := Backoff(n, cfg.MaxBackoff)
				logger.Warn("job attempt failed, retry scheduled",
					"kind", task.Type(), "attempt", n, "delay", delay, "err", err)
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("job attempt failed", "kind", task.Type(), "err", err)
			}),
		},
	)

	return &Server{server: srv, mux: asynq.NewServeMux(), logger: logger}
}

// Handle registers a handler for a job kind.
func (s *Server) Handle(kind string, h Handler) {
	s.mux.HandleFunc(kind, func(ctx context.Context, task *asynq.Task) error {
		job := &Job{
			Kind:    task.Type(),
			Payload: task.Payload(),
		}
		if id, ok := asynq.GetTaskID(ctx); ok {
			job.ID = id
		}
		if n, ok := asynq.GetRetryCount(ctx); ok {
			job.Attempt = n + 1
		}
		if max, ok := asynq.GetMaxRetry(ctx); ok {
			job.MaxRetries = max
		}
		if q, ok := asynq.GetQueueName(ctx); ok {
			job.Queue = q
		}

		err := h.ProcessJob(ctx, job)
		if err != nil && IsTerminal(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	})
}

// Start runs the server until Shutdown.
func (s *Server) Start() error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Shutdown drains in-flight jobs and stops the server.
func (s *Server) Shutdown() {
	s.server.Shutdown()
}
