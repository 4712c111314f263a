package lock

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(time.Minute)

	lease, err := l.Acquire(ctx, "content:7")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "content:7")
	require.ErrorIs(t, err, ErrLocked)

	// other aggregates are independent
	other, err := l.Acquire(ctx, "content:8")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, "content:7")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker(time.Second)
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	// releasing the expired lease must not drop the new holder
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "k")
	require.ErrorIs(t, err, ErrLocked)
	require.NoError(t, fresh.Release(ctx))
}

func TestNoopAlwaysGrants(t *testing.T) {
	ctx := context.Background()
	var l Locker = Noop{}
	a, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	b, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	l := NewRedisLocker(client, "test:lock:", 5*time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "content:1")
	require.NoError(t, err)
	require.True(t, m.Exists("test:lock:content:1"))

	_, err = l.Acquire(ctx, "content:1")
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lease.Release(ctx))
	require.False(t, m.Exists("test:lock:content:1"))
}

func TestRedisLocker_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	l := NewRedisLocker(client, "", time.Second)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "content:2")
	require.NoError(t, err)

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "content:2")
	require.NoError(t, err)

	// the stale token no longer matches, the key survives
	require.NoError(t, stale.Release(ctx))
	require.True(t, m.Exists("lock:content:2"))
	require.NoError(t, fresh.Release(ctx))
	require.False(t, m.Exists("lock:content:2"))
}
