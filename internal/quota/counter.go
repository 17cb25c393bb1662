package quota

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is an atomic counter keyed by string. IncrBy must return the
// post-increment value atomically across concurrent callers.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, amount int64, expiry time.Duration) (int64, error)
	DecrBy(ctx context.Context, key string, amount int64) error
}

// RedisCounter backs the counter store with redis INCRBY/DECRBY.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) IncrBy(ctx context.Context, key string, amount int64, expiry time.Duration) (int64, error) {
	value, err := c.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, err
	}

	// First writer sets the expiry; refreshing it on later increments would
	// let a busy key live forever.
	if value == amount {
		if err := c.client.Expire(ctx, key, expiry).Err(); err != nil {
			return value, err
		}
	}

	return value, nil
}

func (c *RedisCounter) DecrBy(ctx context.Context, key string, amount int64) error {
	return c.client.DecrBy(ctx, key, amount).Err()
}

// MemoryCounter is an in-process counter store for tests and local runs.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) IncrBy(_ context.Context, key string, amount int64, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] += amount
	return c.counts[key], nil
}

func (c *MemoryCounter) DecrBy(_ context.Context, key string, amount int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] -= amount
	return nil
}
