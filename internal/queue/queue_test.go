package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignkb/internal/kberrors"
)

func newTestQueue(t *testing.T) *Queue {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return WithClient(client, "test", "ingest")
}

func TestEnqueue_ThenDequeue_ReturnsJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "index-document", map[string]string{"documentId": "doc1"}, EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "index-document", job.Name)
	assert.Equal(t, StateActive, job.State)
	assert.Equal(t, 1, job.Attempts)
}

func TestDequeue_ReturnsLowerPriorityFirst(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	lowID, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{Priority: 10})
	require.NoError(t, err)
	highID, err := q.Enqueue(ctx, "job", "b", EnqueueOptions{Priority: 1})
	require.NoError(t, err)

	first, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, highID, first.ID)

	second, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, lowID, second.ID)
}

func TestEnqueue_WithJobIDDeduplicates(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{JobID: "fixed-id"})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "job", "b", EnqueueOptions{JobID: "fixed-id"})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Waiting)
}

func TestEnqueue_WithDelayGoesToDelayedSet(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{DelayMs: 60_000})
	require.NoError(t, err)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, counts.Waiting)
	assert.EqualValues(t, 1, counts.Delayed)

	job, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFail_RetriesUntilAttemptsExhaustedThenFails(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{
		Attempts: 2,
		Backoff:  Backoff{Kind: BackoffFixed, InitialDelayMs: 0},
	})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, q.Fail(ctx, id, "boom"))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, got.State)

	job2, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job2)
	require.NoError(t, q.Fail(ctx, id, "boom again"))

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, final.State)
}

func TestComplete_MovesJobToCompletedSet(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, id, `{"ok":true}`))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, `{"ok":true}`, got.Result)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Completed)
}

func TestReclaimStalled_RequeuesUnderBudgetAndFailsOverBudget(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{StalledLimit: 1})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, -time.Second) // lease already expired
	require.NoError(t, err)

	reclaimed, err := q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, reclaimed)

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, got.State)
	assert.Equal(t, 1, got.StalledCount)

	_, err = q.Dequeue(ctx, -time.Second)
	require.NoError(t, err)
	_, err = q.ReclaimStalled(ctx)
	require.NoError(t, err)

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, final.State)
	assert.Equal(t, string(kberrors.Stalled), final.FailReason)
}

func TestRemove_DeletesJobFromAnyState(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{})
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, id))

	_, err = q.Get(ctx, id)
	assert.True(t, kberrors.Is(err, kberrors.NotFound))
}

func TestPauseResume_StopsAndResumesDequeue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{})
	require.NoError(t, err)
	require.NoError(t, q.Pause(ctx))

	job, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, q.Resume(ctx))
	job, err = q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestClean_RemovesOldCompletedJobs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "job", "a", EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, id, ""))

	n, err := q.Clean(ctx, 0, 100, StateCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = q.Get(ctx, id)
	assert.True(t, kberrors.Is(err, kberrors.NotFound))
}

func TestBackoffDelay_ExponentialDoublesPerAttempt(t *testing.T) {
	b := Backoff{Kind: BackoffExponential, InitialDelayMs: 100}
	assert.Equal(t, 100*time.Millisecond, b.delay(1))
	assert.Equal(t, 200*time.Millisecond, b.delay(2))
	assert.Equal(t, 400*time.Millisecond, b.delay(3))
}

func TestBackoffDelay_FixedStaysConstant(t *testing.T) {
	b := Backoff{Kind: BackoffFixed, InitialDelayMs: 250}
	assert.Equal(t, 250*time.Millisecond, b.delay(1))
	assert.Equal(t, 250*time.Millisecond, b.delay(5))
}
