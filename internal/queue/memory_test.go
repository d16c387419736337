package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendlater/internal/queue"
)

func TestMemoryQueue_PullReturnsDueEntry(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1", time.Now().Add(-time.Second)))

	id, err := q.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Zero(t, q.Len())
}

func TestMemoryQueue_PullBlocksUntilDue(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue()
	ctx := context.Background()

	due := time.Now().Add(150 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, "job-1", due))

	id, err := q.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.False(t, time.Now().Before(due), "pull returned before the due time")
}

func TestMemoryQueue_EnqueueReplacesDueTime(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1", time.Now().Add(time.Hour)))
	assert.Equal(t, 1, q.Len())

	// Re-adding the same id must replace the entry, not duplicate it.
	require.NoError(t, q.Enqueue(ctx, "job-1", time.Now().Add(-time.Second)))
	assert.Equal(t, 1, q.Len())

	pullCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	id, err := q.Pull(pullCtx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}

func TestMemoryQueue_EarliestDueFirst(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, q.Enqueue(ctx, "late", now.Add(-time.Second)))
	require.NoError(t, q.Enqueue(ctx, "early", now.Add(-time.Minute)))

	first, err := q.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, "early", first)

	second, err := q.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", second)
}

func TestMemoryQueue_PullHonoursCancellation(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Pull(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_RemoveAndContains(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1", time.Now().Add(time.Hour)))

	ok, err := q.Contains(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := q.Remove(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err = q.Contains(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = q.Remove(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, removed)
}
