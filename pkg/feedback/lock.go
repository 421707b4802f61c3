package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("feedback: lock held")

// Locker is a non-blocking named lock. The returned func releases it.
type Locker interface {
	TryLock(ctx context.Context, name string) (func(context.Context) error, error)
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX lock with a TTL.
type RedisLock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLock connects to the Redis server at url.
func NewRedisLock(url string, ttl time.Duration) (*RedisLock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisLockWithClient(redis.NewClient(opts), ttl), nil
}

// NewRedisLockWithClient wraps an existing client.
func NewRedisLockWithClient(client redis.UniversalClient, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{client: client, prefix: "switchboard:lock:", ttl: ttl}
}

// TryLock implements Locker.
func (r *RedisLock) TryLock(ctx context.Context, name string) (func(context.Context) error, error) {
	key := r.prefix + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, r.client, []string{key}, token).Err()
	}, nil
}

// Ping checks the connection.
func (r *RedisLock) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisLock) Close() error {
	return r.client.Close()
}
