// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a cached completion lives.
const DefaultCacheTTL = 30 * 24 * time.Hour

// Cache stores completion text by request key. PutIfAbsent never
// overwrites an existing entry.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	PutIfAbsent(ctx context.Context, key, text string) error
}

// RedisClient is the subset of go-redis used by RedisCache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisCache keeps completions in Redis with a fixed TTL.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisCache wraps client. A non-positive ttl selects DefaultCacheTTL.
func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// DialRedis parses a redis:// URL and returns a connected client.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing cache URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to cache: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) PutIfAbsent(ctx context.Context, key, text string) error {
	return c.client.SetNX(ctx, key, text, c.ttl).Err()
}

// MemoryCache is a process-local Cache used when no Redis URL is
// configured.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	text    string
	expires time.Time
}

// NewMemoryCache returns an empty MemoryCache. A non-positive ttl selects
// DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.text, true, nil
}

func (c *MemoryCache) PutIfAbsent(_ context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !c.now().After(e.expires) {
		return nil
	}
	c.entries[key] = memoryEntry{text: text, expires: c.now().Add(c.ttl)}
	return nil
}
