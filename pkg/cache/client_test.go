package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb), mr
}

func TestSetGetJSON(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, c.SetJSON(ctx, "session:abc", payload{Name: "x", Count: 3}, time.Minute))

	var got payload
	require.NoError(t, c.GetJSON(ctx, "session:abc", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)
}

func TestGetJSONMiss(t *testing.T) {
	c, _ := newTestClient(t)

	var dst map[string]any
	err := c.GetJSON(context.Background(), "session:missing", &dst)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestTTLAndExpire(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "session:abc", "v", time.Minute))
	mr.FastForward(61 * time.Second)

	var dst string
	assert.ErrorIs(t, c.GetJSON(ctx, "session:abc", &dst), ErrCacheMiss)

	// Expire refreshes a live key's TTL
	require.NoError(t, c.SetJSON(ctx, "session:def", "v", time.Minute))
	mr.FastForward(30 * time.Second)
	require.NoError(t, c.Expire(ctx, time.Minute, "session:def"))
	mr.FastForward(45 * time.Second)
	require.NoError(t, c.GetJSON(ctx, "session:def", &dst))
	assert.Equal(t, "v", dst)
}

func TestSetOperations(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, ActiveSessionsKey, "s1", "s2"))
	members, err := c.SMembers(ctx, ActiveSessionsKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, members)

	require.NoError(t, c.SRem(ctx, ActiveSessionsKey, "s1"))
	members, err = c.SMembers(ctx, ActiveSessionsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)
}

func TestDeleteSessionKeys(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for _, key := range SessionKeys("s1") {
		require.NoError(t, c.SetJSON(ctx, key, "v", 0))
	}
	require.NoError(t, c.Delete(ctx, SessionKeys("s1")...))

	var dst string
	for _, key := range SessionKeys("s1") {
		assert.ErrorIs(t, c.GetJSON(ctx, key, &dst), ErrCacheMiss)
	}
}
