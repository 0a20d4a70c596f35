package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalTryLock(t *testing.T) {
	t.Parallel()

	var l Local
	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release2, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l, err := NewRedis(client, "", ttl, zap.NewNop())
	require.NoError(t, err)
	return mr, l
}

func TestRedisTryLockIsExclusive(t *testing.T) {
	t.Parallel()

	mr, l := newRedisLocker(t, time.Minute)
	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(DefaultKey))

	_, ok, err = l.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(DefaultKey))
}

func TestRedisReleaseKeepsForeignLock(t *testing.T) {
	t.Parallel()

	mr, l := newRedisLocker(t, time.Minute)
	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set(DefaultKey, "other-replica"))

	release()
	got, err := mr.Get(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "other-replica", got)
}

func TestRedisLockExpires(t *testing.T) {
	t.Parallel()

	mr, l := newRedisLocker(t, time.Second)
	_, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = l.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisTryLockError(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	l, err := NewRedis(client, "", time.Minute, nil)
	require.NoError(t, err)
	_, ok, err := l.TryLock(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDial(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), mr.Addr(), "")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = Dial(context.Background(), "127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestNewRedisValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRedis(nil, "", 0, nil)
	assert.Error(t, err)
}
