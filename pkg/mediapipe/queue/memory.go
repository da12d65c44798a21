package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Queue with the full claim/complete/fail
// contract: visibility locks with expiry, attempt counting, backoff
// re-queue and a dead-letter list. It backs tests and single-process
// deployments; production deployments use the Redis-backed Client/Server.
type Memory struct {
	mu        sync.Mutex
	ready     map[string][]*memJob // queue name -> claimable jobs
	scheduled []*memJob            // delayed or backing off, claimable at readyAt
	active    map[string]*memJob   // claimed jobs by id, lock held
	results   map[string]result    // terminal results, bounded retention
	dead      []*Job               // exhausted or terminal failures
	live      map[string]struct{}  // ids enqueued or active, for dedupe
	handlers  map[string]Handler
	now       func() time.Time
}

type memJob struct {
	job     Job
	readyAt time.Time // for scheduled jobs
	expiry  time.Time // visibility lock expiry while active
	retain  time.Duration
}

type result struct {
	err       error
	expiresAt time.Time
}

// MemoryOption configures a Memory queue.
type MemoryOption func(*Memory)

// WithClock injects a time source; tests use it to expire visibility locks.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-process queue.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ready:    make(map[string][]*memJob),
		active:   make(map[string]*memJob),
		results:  make(map[string]result),
		live:     make(map[string]struct{}),
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue implements Enqueuer.
func (m *Memory) Enqueue(ctx context.Context, kind string, payload []byte, opts ...Option) (string, error) {
	o := applyOptions(opts)

	id := o.jobID
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.live[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}

	j := &memJob{
		job: Job{
			ID:         id,
			Kind:       kind,
			Queue:      o.queue,
			Payload:    append([]byte(nil), payload...),
			MaxRetries: o.maxRetries,
			Timeout:    o.timeout,
			EnqueuedAt: m.now(),
		},
		retain: o.retention,
	}
	m.live[id] = struct{}{}

	if o.delay > 0 {
		j.readyAt = m.now().Add(o.delay)
		m.scheduled = append(m.scheduled, j)
	} else {
		m.ready[o.queue] = append(m.ready[o.queue], j)
	}
	return id, nil
}

// Claim pops a job from the first non-empty queue in the given priority
// order and sets a visibility lock equal to the job's timeout. It returns
// nil when no job is claimable. Exactly one concurrent claimant can win a
// given job; expired locks make the job claimable again.
func (m *Memory) Claim(queues ...string) (*Job, error) {
	if len(queues) == 0 {
		queues = []string{QueueCritical, QueueDefault}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.promoteScheduled()
	m.reapExpired()

	for _, q := range queues {
		list := m.ready[q]
		if len(list) == 0 {
			continue
		}
		j := list[0]
		m.ready[q] = list[1:]

		j.job.Attempt++
		j.expiry = m.now().Add(j.job.Timeout)
		m.active[j.job.ID] = j

		jobCopy := j.job
		return &jobCopy, nil
	}
	return nil, nil
}

// Complete removes the visibility lock and records a terminal success.
func (m *Memory) Complete(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.active[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotClaimed, jobID)
	}
	delete(m.active, jobID)
	delete(m.live, jobID)
	m.results[jobID] = result{expiresAt: m.now().Add(j.retain)}
	return nil
}

// Fail records a failed attempt. Retryable failures within the retry
// budget are re-queued with exponential backoff; terminal failures and
// exhausted budgets move the job to the dead-letter list, never dropped.
func (m *Memory) Fail(jobID string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.active[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotClaimed, jobID)
	}
	delete(m.active, jobID)

	if IsTerminal(cause) || j.job.Attempt > j.job.MaxRetries {
		delete(m.live, jobID)
		m.results[jobID] = result{err: cause, expiresAt: m.now().Add(j.retain)}
		deadCopy := j.job
		m.dead = append(m.dead, &deadCopy)
		return nil
	}

	j.readyAt = m.now().Add(Backoff(j.job.Attempt, 5*time.Minute))
	m.scheduled = append(m.scheduled, j)
	return nil
}

// Heartbeat extends the caller's visibility lock by the job timeout so a
// long-running but healthy attempt is not re-delivered.
func (m *Memory) Heartbeat(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.active[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotClaimed, jobID)
	}
	j.expiry = m.now().Add(j.job.Timeout)
	return nil
}

// Handle registers a handler for a job kind, used by Run.
func (m *Memory) Handle(kind string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

// Run polls for jobs and dispatches them to registered handlers until the
// context is canceled. Each attempt runs under the job's timeout.
func (m *Memory) Run(ctx context.Context, queues ...string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := m.Claim(queues...)
		if err != nil {
			return err
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		m.dispatch(ctx, job)
	}
}

func (m *Memory) dispatch(ctx context.Context, job *Job) {
	m.mu.Lock()
	h, ok := m.handlers[job.Kind]
	m.mu.Unlock()
	if !ok {
		_ = m.Fail(job.ID, Terminal(fmt.Errorf("no handler for kind %s", job.Kind)))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	if err := h.ProcessJob(jobCtx, job); err != nil {
		_ = m.Fail(job.ID, err)
		return
	}
	_ = m.Complete(job.ID)
}

// DeadLetter returns a snapshot of dead-lettered jobs for operator inspection.
func (m *Memory) DeadLetter() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Job, 0, len(m.dead))
	for _, j := range m.dead {
		jobCopy := *j
		out = append(out, &jobCopy)
	}
	return out
}

// Depth returns the number of claimable jobs on a queue.
func (m *Memory) Depth(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.promoteScheduled()
	return len(m.ready[queue])
}

// promoteScheduled moves due scheduled jobs onto their ready queues.
// Caller must hold m.mu.
func (m *Memory) promoteScheduled() {
	now := m.now()
	var remaining []*memJob
	for _, j := range m.scheduled {
		if !j.readyAt.After(now) {
			m.ready[j.job.Queue] = append(m.ready[j.job.Queue], j)
		} else {
			remaining = append(remaining, j)
		}
	}
	m.scheduled = remaining

	for id, r := range m.results {
		if r.expiresAt.Before(now) {
			delete(m.results, id)
		}
	}
}

// reapExpired releases visibility locks whose holder has gone quiet,
// making the job claimable again or dead-lettering it when the retry
// budget is spent. Caller must hold m.mu.
func (m *Memory) reapExpired() {
	now := m.now()
	for id, j := range m.active {
		if j.expiry.After(now) {
			continue
		}
		delete(m.active, id)
		if j.job.Attempt > j.job.MaxRetries {
			delete(m.live, id)
			deadCopy := j.job
			m.dead = append(m.dead, &deadCopy)
			continue
		}
		m.ready[j.job.Queue] = append(m.ready[j.job.Queue], j)
	}
}
