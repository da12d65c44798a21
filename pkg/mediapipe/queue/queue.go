// Package queue provides a durable, prioritized, at-least-once job
// channel between producers (the ingress API, inbound webhooks) and a
// pool of workers. Delivery is at-least-once; handlers must be
// idempotent with respect to re-delivery. FIFO within a queue is
// best-effort, not a correctness requirement.
package queue

import (
	"context"
	"errors"
	"time"
)

// JobKind names for the media pipeline.
const (
	KindImportVideo = "media:import_video"
	KindImportImage = "media:import_image"
	KindCompose     = "media:compose"
)

// Queue names, drained in priority order by workers listening to both.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Defaults applied when enqueue options are omitted.
const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 10 * time.Minute
	DefaultRetention  = 24 * time.Hour
)

var (
	// ErrQueueUnavailable indicates the queue backend rejected the operation
	ErrQueueUnavailable = errors.New("queue backend unavailable")

	// ErrDuplicateJob indicates a job with the same id is already enqueued or active
	ErrDuplicateJob = errors.New("duplicate job id")

	// ErrJobNotFound indicates no claimed job matches the given id
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotClaimed indicates the job is not currently held by a claimant
	ErrJobNotClaimed = errors.New("job not claimed")
)

// Job is one unit of queued work.
type Job struct {
	ID         string
	Kind       string
	Queue      string
	Payload    []byte
	Attempt    int // 1-based once claimed
	MaxRetries int
	Timeout    time.Duration
	EnqueuedAt time.Time
}

// Handler processes one claimed job. Returning nil completes the job;
// returning an error fails the attempt and triggers retry or dead-letter
// per the job's retry budget. Wrap errors with Terminal to skip retries.
type Handler interface {
	ProcessJob(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) ProcessJob(ctx context.Context, job *Job) error { return f(ctx, job) }

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	// Enqueue adds a job and returns its id. It never blocks on worker
	// availability and fails only on backend errors (ErrQueueUnavailable)
	// or id conflicts (ErrDuplicateJob).
	Enqueue(ctx context.Context, kind string, payload []byte, opts ...Option) (string, error)
}

// Option configures a single enqueue call.
type Option func(*enqueueOptions)

type enqueueOptions struct {
	queue      string
	jobID      string
	maxRetries int
	timeout    time.Duration
	retention  time.Duration
	delay      time.Duration
}

// WithQueue places the job on a named queue for coarse priority.
func WithQueue(name string) Option {
	return func(o *enqueueOptions) { o.queue = name }
}

// WithJobID sets a producer-assigned job id. Deterministic ids make
// duplicate submissions for the same target coalesce at the queue.
func WithJobID(id string) Option {
	return func(o *enqueueOptions) { o.jobID = id }
}

// WithMaxRetries sets the retry budget for failed attempts.
func WithMaxRetries(n int) Option {
	return func(o *enqueueOptions) { o.maxRetries = n }
}

// WithTimeout sets the per-attempt visibility timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *enqueueOptions) { o.timeout = d }
}

// WithRetention bounds how long terminal results are kept.
func WithRetention(d time.Duration) Option {
	return func(o *enqueueOptions) { o.retention = d }
}

// WithDelay schedules the job to become claimable after d.
func WithDelay(d time.Duration) Option {
	return func(o *enqueueOptions) { o.delay = d }
}

func applyOptions(opts []Option) enqueueOptions {
	o := enqueueOptions{
		queue:      QueueDefault,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		retention:  DefaultRetention,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// terminalError marks a handler failure that must not be retried.
type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps a handler error so the queue dead-letters the job
// immediately instead of consuming the remaining retry budget.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err carries the no-retry marker.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// Backoff returns the delay before retry attempt n (1-based),
// exponential with a ceiling.
func Backoff(attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if max > 0 && d > max {
		d = max
	}
	return d
}
