package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	n := NewMemory()
	ctx := context.Background()

	ch, cancel, err := n.Subscribe(ctx, "artifact-1")
	require.NoError(t, err)
	defer cancel()

	ev := Event{
		SubjectID:   "artifact-1",
		SubjectKind: SubjectArtifact,
		Status:      "uploading",
		Progress:    Progress(40),
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, n.Publish(ctx, ev))

	select {
	case got := <-ch:
		assert.Equal(t, "artifact-1", got.SubjectID)
		assert.Equal(t, "uploading", got.Status)
		require.NotNil(t, got.Progress)
		assert.Equal(t, 40.0, *got.Progress)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestMemorySubjectIsolation(t *testing.T) {
	n := NewMemory()
	ctx := context.Background()

	ch, cancel, err := n.Subscribe(ctx, "artifact-1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, n.Publish(ctx, Event{SubjectID: "artifact-2", Status: "ready"}))

	select {
	case ev := <-ch:
		t.Fatalf("received event for foreign subject: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemorySlowSubscriberDrops(t *testing.T) {
	n := NewMemory()
	ctx := context.Background()

	ch, cancel, err := n.Subscribe(ctx, "artifact-1")
	require.NoError(t, err)
	defer cancel()

	// Overfill the buffer; Publish must never block.
	for i := 0; i < 32; i++ {
		require.NoError(t, n.Publish(ctx, Event{SubjectID: "artifact-1", Status: "uploading"}))
	}
	assert.Equal(t, 16, len(ch))
}

func TestMemoryCancelClosesChannel(t *testing.T) {
	n := NewMemory()
	ctx := context.Background()

	ch, cancel, err := n.Subscribe(ctx, "artifact-1")
	require.NoError(t, err)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel is a no-op, not a panic.
	require.NoError(t, n.Publish(ctx, Event{SubjectID: "artifact-1", Status: "ready"}))
}
