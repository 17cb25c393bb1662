// Package store holds the durable and semi-durable sides of the pipeline:
// the short-lived summary cache and the session/feedback tables.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"recapbot/internal/summarize"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// summaryTTL keeps cached summaries alive long enough for the user to post
// them or leave feedback.
const summaryTTL = time.Hour

// ErrNotFound marks a cache miss. Misses are a normal outcome (TTL expiry,
// unknown key) and are reported separately from storage errors.
var ErrNotFound = errors.New("not found")

// KV is the TTL key-value primitive behind the summary cache.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ErrNotFound for missing keys.
	Get(ctx context.Context, key string) (string, error)
}

// RedisKV backs KV with redis.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// MemoryKV is an in-process KV for tests and local runs.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable for TTL tests.
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

// SummaryCache stores accepted summaries under opaque keys with a one-hour
// TTL. It satisfies summarize.SummaryCache.
type SummaryCache struct {
	kv KV
}

func NewSummaryCache(kv KV) *SummaryCache {
	return &SummaryCache{kv: kv}
}

// Set stores the summary and returns the key used. An empty key generates
// an opaque one. Existing entries are overwritten only via an explicit Set
// with the same key.
func (c *SummaryCache) Set(ctx context.Context, summary summarize.CachedSummary, key string) (string, error) {
	if key == "" {
		key = uuid.New().String()
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := c.kv.Set(ctx, cacheKey(key), string(payload), summaryTTL); err != nil {
		return "", fmt.Errorf("failed to cache summary: %w", err)
	}

	return key, nil
}

// Get fetches a cached summary. The second return value distinguishes a
// normal miss from a storage error.
func (c *SummaryCache) Get(ctx context.Context, key string) (summarize.CachedSummary, bool, error) {
	payload, err := c.kv.Get(ctx, cacheKey(key))
	if errors.Is(err, ErrNotFound) {
		return summarize.CachedSummary{}, false, nil
	}
	if err != nil {
		return summarize.CachedSummary{}, false, fmt.Errorf("failed to read summary cache: %w", err)
	}

	var summary summarize.CachedSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return summarize.CachedSummary{}, false, fmt.Errorf("failed to unmarshal cached summary: %w", err)
	}

	return summary, true, nil
}

func cacheKey(key string) string {
	return "summary:" + key
}
