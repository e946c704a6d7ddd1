package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/computeledger/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerSingleHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client)
	ctx := context.Background()

	release, err := Acquire(ctx, l, "snapshot:2025-03-01T10:00:00Z", time.Minute)
	require.NoError(t, err)

	_, err = Acquire(ctx, l, "snapshot:2025-03-01T10:00:00Z", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"snapshot:2025-03-01T10:00:00Z"))

	release, err = Acquire(ctx, l, "snapshot:2025-03-01T10:00:00Z", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedisLockerStaleTokenKeepsNewHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client)
	ctx := context.Background()

	stale, ok, err := l.TryLock(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "sweep", stale))
	assert.True(t, mr.Exists(keyPrefix+"sweep"))
}

func TestRedisLockerBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := Acquire(context.Background(), NewRedisLocker(client), "snapshot", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLeaseHeld)
}

func TestLocalLockerExpiry(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	l := NewLocalLocker(fc)
	ctx := context.Background()

	_, err := Acquire(ctx, l, "snapshot", time.Minute)
	require.NoError(t, err)

	_, err = Acquire(ctx, l, "snapshot", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	fc.Advance(2 * time.Minute)
	release, err := Acquire(ctx, l, "snapshot", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))

	_, _, err = l.TryLock(ctx, "", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, _, err = l.TryLock(ctx, "x", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}
