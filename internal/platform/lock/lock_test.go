package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	l := NewRedisLocker(client, time.Minute)

	release, err := l.Acquire(ctx, "demo-reset")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "demo-reset")
	assert.True(t, errors.Is(err, ErrLocked), "second acquire should fail, got %v", err)

	require.NoError(t, release(ctx))

	release2, err := l.Acquire(ctx, "demo-reset")
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestRedisLocker_IndependentNames(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	l := NewRedisLocker(client, time.Minute)

	r1, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	r2, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	assert.NoError(t, r1(ctx))
	assert.NoError(t, r2(ctx))
}

func TestRedisLocker_ExpiredLockIsNotStolenBack(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	l := NewRedisLocker(client, time.Second)

	stale, err := l.Acquire(ctx, "demo-reset")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "demo-reset")
	require.NoError(t, err)

	// The stale holder's release must not drop the new holder's key.
	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("clinic:lock:demo-reset"))

	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("clinic:lock:demo-reset"))
}

func TestPGLocker_RequiresTransaction(t *testing.T) {
	_, err := PGLocker{}.Acquire(context.Background(), "demo-reset")
	assert.Error(t, err)
}
