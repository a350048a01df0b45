package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cache"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

func newTestQueue(t *testing.T) *PriorityQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPriorityQueue(cache.NewWithClient(rdb))
}

func job(session, prompt string, priority int) models.Job {
	return models.Job{
		SessionID:  session,
		PromptID:   prompt,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job("s1", "p-low-1", 5)))
	require.NoError(t, q.Enqueue(ctx, job("s1", "p-high", 1)))
	require.NoError(t, q.Enqueue(ctx, job("s2", "p-low-2", 5)))

	var order []string
	for {
		j, ok, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		order = append(order, j.PromptID)
	}
	// Lower priority value first; equal priorities in enqueue order
	assert.Equal(t, []string{"p-high", "p-low-1", "p-low-2"}, order)
}

func TestDequeueRoundTripsJobFields(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	in := job("s1", "p1", 7)
	require.NoError(t, q.Enqueue(ctx, in))

	out, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", out.PromptID)
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, 7, out.Priority)
	assert.True(t, in.EnqueuedAt.Equal(out.EnqueuedAt))
}

func TestDequeueEmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	_, ok, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDequeueEligibleSkipsBlockedSession(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job("busy", "p1", 1)))
	require.NoError(t, q.Enqueue(ctx, job("busy", "p2", 1)))
	require.NoError(t, q.Enqueue(ctx, job("idle", "p3", 2)))

	blocked := func(sessionID string) bool { return sessionID == "busy" }

	j, ok, err := q.DequeueEligible(ctx, blocked)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p3", j.PromptID)

	// Nothing else is eligible while the session stays blocked
	_, ok, err = q.DequeueEligible(ctx, blocked)
	require.NoError(t, err)
	assert.False(t, ok)

	// Blocked jobs kept their order
	j, ok, err = q.DequeueEligible(ctx, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", j.PromptID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEnqueuePreservedAcrossClients(t *testing.T) {
	// A new PriorityQueue over the same Redis sees jobs enqueued before it
	// existed: restart durability.
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rdb1 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q1 := NewPriorityQueue(cache.NewWithClient(rdb1))
	require.NoError(t, q1.Enqueue(ctx, job("s1", "p1", 1)))
	require.NoError(t, rdb1.Close())

	rdb2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb2.Close() }()
	q2 := NewPriorityQueue(cache.NewWithClient(rdb2))

	j, ok, err := q2.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", j.PromptID)
	assert.Equal(t, "s1", j.SessionID)
}

func TestRemoveSession(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job("s1", "p1", 1)))
	require.NoError(t, q.Enqueue(ctx, job("s2", "p2", 1)))
	require.NoError(t, q.Enqueue(ctx, job("s1", "p3", 2)))

	removed, err := q.RemoveSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPriorityBandsDominateSequence(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// Many low-priority jobs enqueued first must not outrank a later
	// high-priority one.
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Enqueue(ctx, job("s1", "low", 10)))
	}
	require.NoError(t, q.Enqueue(ctx, job("s2", "urgent", 0)))

	j, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "urgent", j.PromptID)
}
