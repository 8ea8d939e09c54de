package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// Lock coordinates exclusive scheduled sweeps across instances. Acquire
// claims the lock on behalf of one sweep; when another sweep already holds
// it, ok is false and holder names that sweep's owner.
type Lock interface {
	Acquire(ctx context.Context, sweepID string) (holder string, ok bool, err error)
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock stores "<instance>:<sweepID>" under key with SETNX. The TTL bounds
// how long a crashed sweeper can block the other instances.
type RedisLock struct {
	client   redisStore
	key      string
	instance string
	ttl      time.Duration
	owner    string
}

func NewRedisLock(client redisStore, key, instanceID string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, instance: instanceID, ttl: ttl}, nil
}

func (l *RedisLock) ownerFor(sweepID string) string {
	if l.instance == "" {
		return sweepID
	}
	return l.instance + ":" + sweepID
}

func (l *RedisLock) Acquire(ctx context.Context, sweepID string) (string, bool, error) {
	if sweepID == "" {
		return "", false, errors.New("sweep id is required to take the lock")
	}
	owner := l.ownerFor(sweepID)
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return "", false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
		return owner, true, nil
	}
	holder, err := l.client.Get(ctx, l.key)
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, fmt.Errorf("read lock owner: %w", err)
	}
	return holder, false, nil
}

// Owner is the value this lock wrote on its last successful Acquire, or empty
// when it holds nothing.
func (l *RedisLock) Owner() string {
	return l.owner
}

// Release frees the lock only if this sweep still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	defer func() { l.owner = "" }()
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
