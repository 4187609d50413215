package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFullDoesNotBlock(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{ID: "a"}))
	err := q.Enqueue(ctx, Job{ID: "b"})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, 1, q.Len(ctx))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(4)
	require.NoError(t, q.Close())

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{}), ErrQueueClosed)
}

func TestMemoryQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisQueueRoundTripIsFIFO(t *testing.T) {
	client := setupTestRedis(t)
	q := NewRedisQueue(client, "test:notifications")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{ID: "first", EventType: "payment", Data: map[string]any{"payment_id": "PAY-1"}}))
	require.NoError(t, q.Enqueue(ctx, Job{ID: "second", EventType: "invoice"}))
	assert.Equal(t, 2, q.Len(ctx))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", first.ID)
	assert.Equal(t, "PAY-1", first.Data["payment_id"])

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", second.ID)
	assert.Equal(t, 0, q.Len(ctx))
}

func TestRedisDeduperClaimAndRelease(t *testing.T) {
	client := setupTestRedis(t)
	d := NewRedisDeduper(client)
	ctx := context.Background()

	token, first, err := d.Claim(ctx, "payment:PAY-1:finished", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	assert.NotEmpty(t, token)

	_, again, err := d.Claim(ctx, "payment:PAY-1:finished", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Release(ctx, "payment:PAY-1:finished", "someone-else"))
	_, stillHeld, err := d.Claim(ctx, "payment:PAY-1:finished", time.Minute)
	require.NoError(t, err)
	assert.False(t, stillHeld)

	require.NoError(t, d.Release(ctx, "payment:PAY-1:finished", token))
	_, reclaimed, err := d.Claim(ctx, "payment:PAY-1:finished", time.Minute)
	require.NoError(t, err)
	assert.True(t, reclaimed)
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}
