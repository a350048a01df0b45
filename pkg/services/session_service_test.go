package services

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

func newTestSessionService(t *testing.T, ttl time.Duration) (*SessionService, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSessionService(nil, cache.NewWithClient(rdb), ttl), rdb
}

func TestGetDoesNotSlideExpiry(t *testing.T) {
	svc, rdb := newTestSessionService(t, time.Hour)
	ctx := context.Background()

	expiresAt := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	seeded := &models.Session{
		ID:        "s1",
		Status:    models.SessionActive,
		CreatedAt: time.Now().UTC().Add(-time.Minute),
		ExpiresAt: expiresAt,
	}
	require.NoError(t, svc.cacheSession(ctx, seeded))

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(got.ExpiresAt), "reading must not move expires_at")

	// The hot-tier copy keeps only the remaining lifetime, not the full TTL
	remaining := rdb.TTL(ctx, cache.SessionKey("s1")).Val()
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 10*time.Minute)

	cached := &models.Session{}
	require.NoError(t, svc.cache.GetJSON(ctx, cache.SessionKey("s1"), cached))
	assert.True(t, expiresAt.Equal(cached.ExpiresAt))
}

func TestGetRefusesOverdueCachedSession(t *testing.T) {
	svc, _ := newTestSessionService(t, time.Hour)
	ctx := context.Background()

	// Overdue by clock but still cached: hot-tier TTL must be positive for
	// SetJSON, the status check catches it on read.
	seeded := &models.Session{
		ID:        "s1",
		Status:    models.SessionExpired,
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}
	require.NoError(t, svc.cache.SetJSON(ctx, cache.SessionKey("s1"), seeded, time.Minute))

	_, err := svc.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionExpired)
}
