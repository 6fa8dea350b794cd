package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/furniture-storefront/internal/logger"
)

func newTestLimiter(t *testing.T, opts ...Option) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return New(rdb, "rl", opts...), mr
}

func TestCheckCountsThenRejects(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := l.Key("auth", "10.0.0.1")

	for i := 1; i <= 5; i++ {
		res, err := l.Check(ctx, key, 15*time.Minute, 5)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 5-i, res.Remaining)
	}

	res, err := l.Check(ctx, key, 15*time.Minute, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// the rejected request was still counted
	v, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "6", v)
	assert.Equal(t, 15*time.Minute, mr.TTL(key))
}

func TestWindowReset(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := l.Key("password_reset", "user:7")
	window := time.Hour

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, key, window, 3)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	for _, step := range []time.Duration{time.Minute, 30 * time.Minute, 28 * time.Minute} {
		mr.FastForward(step)
		res, err := l.Check(ctx, key, window, 3)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	}

	mr.FastForward(window)
	res, err := l.Check(ctx, key, window, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestResetAtFollowsTTL(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	l, mr := newTestLimiter(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	key := l.Key("api", "1.2.3.4")

	res, err := l.Check(ctx, key, 15*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), res.ResetAt)

	mr.FastForward(5 * time.Minute)
	res, err = l.Check(ctx, key, 15*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), res.ResetAt)
}

func TestKeyWithoutExpiryIsRepaired(t *testing.T) {
	l, mr := newTestLimiter(t)
	key := l.Key("api", "stuck")
	require.NoError(t, mr.Set(key, "4"))

	_, err := l.Check(context.Background(), key, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestFailOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	res, err := l.Check(context.Background(), l.Key("auth", "x"), time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)
}

func TestFailClosed(t *testing.T) {
	l, mr := newTestLimiter(t, WithFailOpen(false))
	mr.Close()

	res, err := l.Check(context.Background(), l.Key("auth", "x"), time.Minute, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, res.Allowed)
}

func TestReset(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := l.Key("auth", "y")
	_, err := l.Check(ctx, key, time.Minute, 1)
	require.NoError(t, err)

	require.NoError(t, l.Reset(ctx, key))
	assert.False(t, mr.Exists(key))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rl:auth:1.2.3.4", New(nil, "rl").Key("auth", "1.2.3.4"))
	assert.Equal(t, "auth:1.2.3.4", New(nil, "").Key("auth", "1.2.3.4"))
}
