package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemory(WithClock(clock.Now)), clock
}

func TestMemoryEnqueueClaim(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, KindImportVideo, []byte(`{"x":1}`), WithJobID("import:abc"))
	require.NoError(t, err)
	assert.Equal(t, "import:abc", id)

	job, err := q.Claim(QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "import:abc", job.ID)
	assert.Equal(t, KindImportVideo, job.Kind)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, []byte(`{"x":1}`), job.Payload)

	// The job is locked; nothing else is claimable.
	second, err := q.Claim(QueueDefault)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestMemoryDuplicateJobID(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindCompose, nil, WithJobID("compose:1"))
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, KindCompose, nil, WithJobID("compose:1"))
	assert.ErrorIs(t, err, ErrDuplicateJob)

	// Dedupe covers active jobs too.
	_, err = q.Claim(QueueDefault)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, KindCompose, nil, WithJobID("compose:1"))
	assert.ErrorIs(t, err, ErrDuplicateJob)

	// Completion releases the id.
	require.NoError(t, q.Complete("compose:1"))
	_, err = q.Enqueue(ctx, KindCompose, nil, WithJobID("compose:1"))
	assert.NoError(t, err)
}

func TestMemoryPriorityOrder(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindImportVideo, nil, WithJobID("slow"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, KindImportImage, nil, WithJobID("fast"), WithQueue(QueueCritical))
	require.NoError(t, err)

	// Default claim order drains critical before default.
	job, err := q.Claim()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "fast", job.ID)

	job, err = q.Claim()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "slow", job.ID)
}

func TestMemoryRetryWithBackoff(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindImportVideo, nil, WithJobID("j1"), WithMaxRetries(2))
	require.NoError(t, err)

	job, err := q.Claim(QueueDefault)
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempt)

	require.NoError(t, q.Fail("j1", assert.AnError))

	// Backing off: not claimable until the backoff elapses.
	job, err = q.Claim(QueueDefault)
	require.NoError(t, err)
	assert.Nil(t, job)

	clock.Advance(2 * time.Second)
	job, err = q.Claim(QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempt)
}

func TestMemoryDeadLetterAfterExhaustion(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindImportVideo, nil, WithJobID("doomed"), WithMaxRetries(1))
	require.NoError(t, err)

	// Attempt 1 and the single retry both fail.
	for i := 0; i < 2; i++ {
		clock.Advance(time.Minute)
		job, err := q.Claim(QueueDefault)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d should be claimable", i+1)
		require.NoError(t, q.Fail("doomed", assert.AnError))
	}

	dead := q.DeadLetter()
	require.Len(t, dead, 1)
	assert.Equal(t, "doomed", dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempt)

	// Exhausted jobs never come back.
	clock.Advance(time.Hour)
	job, err := q.Claim(QueueDefault)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestMemoryTerminalFailureSkipsRetries(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindImportVideo, nil, WithJobID("bad-input"), WithMaxRetries(5))
	require.NoError(t, err)

	_, err = q.Claim(QueueDefault)
	require.NoError(t, err)
	require.NoError(t, q.Fail("bad-input", Terminal(assert.AnError)))

	dead := q.DeadLetter()
	require.Len(t, dead, 1)
	assert.Equal(t, "bad-input", dead[0].ID)
	assert.Equal(t, 1, dead[0].Attempt)
}

func TestMemoryVisibilityExpiry(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindImportVideo, nil, WithJobID("j1"), WithTimeout(time.Minute), WithMaxRetries(3))
	require.NoError(t, err)

	job, err := q.Claim(QueueDefault)
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempt)

	// Lock still held.
	clock.Advance(30 * time.Second)
	redelivered, err := q.Claim(QueueDefault)
	require.NoError(t, err)
	assert.Nil(t, redelivered)

	// Claimant has gone quiet; the lock expires and the job is redelivered.
	clock.Advance(time.Minute)
	redelivered, err = q.Claim(QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, "j1", redelivered.ID)
	assert.Equal(t, 2, redelivered.Attempt)

	require.NoError(t, q.Complete("j1"))
	assert.ErrorIs(t, q.Complete("j1"), ErrJobNotClaimed)
}

func TestMemoryHeartbeatExtendsLock(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindCompose, nil, WithJobID("long"), WithTimeout(time.Minute))
	require.NoError(t, err)

	_, err = q.Claim(QueueDefault)
	require.NoError(t, err)

	// Keep the lock alive past its original expiry.
	clock.Advance(45 * time.Second)
	require.NoError(t, q.Heartbeat("long"))
	clock.Advance(45 * time.Second)

	job, err := q.Claim(QueueDefault)
	require.NoError(t, err)
	assert.Nil(t, job, "heartbeated job must not be redelivered")

	require.NoError(t, q.Complete("long"))
}

func TestMemoryDelayedJob(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindImportVideo, nil, WithJobID("later"), WithDelay(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, q.Depth(QueueDefault))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, q.Depth(QueueDefault))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(1, 5*time.Minute))
	assert.Equal(t, 2*time.Second, Backoff(2, 5*time.Minute))
	assert.Equal(t, 8*time.Second, Backoff(4, 5*time.Minute))
	assert.Equal(t, 5*time.Minute, Backoff(60, 5*time.Minute))
	assert.Equal(t, time.Second, Backoff(0, 5*time.Minute))
}

func TestTerminalWrapping(t *testing.T) {
	assert.Nil(t, Terminal(nil))
	err := Terminal(assert.AnError)
	assert.True(t, IsTerminal(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, IsTerminal(assert.AnError))
}

func TestMemoryRunDispatch(t *testing.T) {
	q, _ := newTestQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan string, 1)
	q.Handle(KindImportImage, HandlerFunc(func(ctx context.Context, job *Job) error {
		done <- job.ID
		return nil
	}))

	_, err := q.Enqueue(ctx, KindImportImage, nil, WithJobID("img-1"))
	require.NoError(t, err)

	go func() { _ = q.Run(ctx) }()

	select {
	case id := <-done:
		assert.Equal(t, "img-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestMemoryConcurrentClaimSingleWinner(t *testing.T) {
	q := NewMemory()
	_, err := q.Enqueue(context.Background(), KindImportVideo, nil, WithJobID("contested"))
	require.NoError(t, err)

	const claimants = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			job, err := q.Claim(QueueDefault)
			if err == nil && job != nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
