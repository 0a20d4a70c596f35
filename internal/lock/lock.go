// Package lock serialises loader runs, either within one process or across
// server replicas through a Redis key.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker grants at most one run at a time. TryLock never blocks; ok is false
// when another holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// Local is a process-wide Locker.
type Local struct {
	mu sync.Mutex
}

// TryLock takes the mutex if it is free.
func (l *Local) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// DefaultKey is the Redis key shared by replicas.
const DefaultKey = "govcontracts:run-lock"

// DefaultTTL bounds how long a crashed holder can block other replicas.
const DefaultTTL = 30 * time.Minute

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX with an expiry.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis builds a Redis locker. Empty key and non-positive ttl use the defaults.
func NewRedis(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, key: key, ttl: ttl, logger: logger}, nil
}

// TryLock claims the key with a fresh token.
func (r *Redis) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			r.logger.Warn("run lock release failed", zap.String("key", r.key), zap.Error(err))
		}
	}
	return release, true, nil
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
