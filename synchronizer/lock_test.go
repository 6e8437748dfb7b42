package synchronizer

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLock(t *testing.T) *RedisLock {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	lock, err := NewRedisLock(context.Background(), RedisLockConfig{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { lock.Close() })
	return lock
}

func TestRedisLockCoalescesConcurrentRuns(t *testing.T) {
	l := newTestRedisLock(t)
	ctx := context.Background()

	acquired, err := l.TryAcquire(ctx, "rule/local/global")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired2, err := l.TryAcquire(ctx, "rule/local/global")
	require.NoError(t, err)
	assert.False(t, acquired2)

	dirty, err := l.ReleaseAndCheckDirty(ctx, "rule/local/global")
	require.NoError(t, err)
	assert.True(t, dirty)

	dirty2, err := l.ReleaseAndCheckDirty(ctx, "rule/local/global")
	require.NoError(t, err)
	assert.False(t, dirty2)
}

func TestRedisLockKeysAreIndependent(t *testing.T) {
	l := newTestRedisLock(t)
	ctx := context.Background()

	acquired, err := l.TryAcquire(ctx, "rule-a/local/global")
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = l.TryAcquire(ctx, "rule-b/local/global")
	require.NoError(t, err)
	assert.True(t, acquired, "a different triple must not contend on the same lock")

	dirty, err := l.ReleaseAndCheckDirty(ctx, "rule-a/local/global")
	require.NoError(t, err)
	assert.False(t, dirty)
}
