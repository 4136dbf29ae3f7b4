package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/inklift/inklift/internal/config"
)

// Locks serializes lifecycle operations per post. Conflicting
// operations on the same post run one at a time; different posts
// proceed in parallel.
type Locks interface {
	WithPostLock(ctx context.Context, postID string, fn func(ctx context.Context) error) error
	Close() error
}

// RedisLocks implements Locks with SET NX leases in Redis, so
// serialization holds across multiple service instances.
type RedisLocks struct {
	client   *redis.Client
	prefix   string
	leaseTTL time.Duration
}

var _ Locks = (*RedisLocks)(nil)

// NewRedisLocks connects to Redis and verifies the connection.
func NewRedisLocks(cfg *config.Config) (*RedisLocks, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLocks{
		client:   client,
		prefix:   cfg.RedisPrefix + "lock:",
		leaseTTL: cfg.LockTTL,
	}, nil
}

func (r *RedisLocks) Close() error {
	return r.client.Close()
}

// WithPostLock acquires the post's lease, runs fn, then releases it.
// Acquisition polls until the context is cancelled. The lease TTL
// bounds how long a crashed holder can block other writers.
func (r *RedisLocks) WithPostLock(ctx context.Context, postID string, fn func(ctx context.Context) error) error {
	key := r.prefix + postID
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.leaseTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire post lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	defer func() {
		// Only release a lease we still hold.
		current, err := r.client.Get(context.Background(), key).Result()
		if err == nil && current == token {
			r.client.Del(context.Background(), key)
		}
	}()

	return fn(ctx)
}

// ClearLocks removes every held lease. Admin escape hatch for leases
// orphaned by a crashed process before their TTL expires.
func (r *RedisLocks) ClearLocks(ctx context.Context) (int, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning lock keys: %w", err)
	}

	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return 0, fmt.Errorf("error deleting lock keys: %w", err)
		}
	}
	return len(keys), nil
}
