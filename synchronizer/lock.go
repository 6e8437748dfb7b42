package synchronizer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLock is a CoalescingLock for multi-process deployments, so two
// Synchronizer instances (e.g. one per facade replica) don't both run
// the same rule concurrently: a SETNX-with-TTL running key plus a
// companion dirty-flag key.
type RedisLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisLockConfig configures a RedisLock.
type RedisLockConfig struct {
	RedisURL  string
	KeyPrefix string
	// TTL bounds how long a lock may be held before it is considered
	// abandoned (e.g. the holder crashed); a live run normally releases
	// well before this.
	TTL time.Duration
}

// NewRedisLock connects to Redis and returns a ready RedisLock.
func NewRedisLock(ctx context.Context, cfg RedisLockConfig) (*RedisLock, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "syncer:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLock{client: client, prefix: prefix, ttl: ttl}, nil
}

// Close releases the underlying Redis connection.
func (l *RedisLock) Close() error { return l.client.Close() }

func (l *RedisLock) runningKey(key string) string { return l.prefix + "running:" + key }
func (l *RedisLock) dirtyKey(key string) string   { return l.prefix + "dirty:" + key }

// TryAcquire sets the running key with NX semantics; if it's already
// set, marks the dirty flag instead and reports not-acquired.
func (l *RedisLock) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.runningKey(key), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %q: %w", key, err)
	}
	if !ok {
		if err := l.client.Set(ctx, l.dirtyKey(key), "1", l.ttl).Err(); err != nil {
			return false, fmt.Errorf("marking lock %q dirty: %w", key, err)
		}
		return false, nil
	}
	return true, nil
}

// ReleaseAndCheckDirty clears the running key and reports (and clears)
// whether a coalesced attempt occurred while it was held.
func (l *RedisLock) ReleaseAndCheckDirty(ctx context.Context, key string) (bool, error) {
	dirty, err := l.client.GetDel(ctx, l.dirtyKey(key)).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("reading dirty flag for lock %q: %w", key, err)
	}
	if err := l.client.Del(ctx, l.runningKey(key)).Err(); err != nil {
		return false, fmt.Errorf("releasing lock %q: %w", key, err)
	}
	return dirty == "1", nil
}
