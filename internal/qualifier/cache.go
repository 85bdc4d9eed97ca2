package qualifier

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores AI signals keyed by the hash of the request text.
type Cache interface {
	Get(ctx context.Context, key string) (Signal, bool, error)
	Set(ctx context.Context, key string, s Signal) error
}

// DefaultMemoryCacheSize bounds a MemoryCache built by NewMemoryCache.
const DefaultMemoryCacheSize = 4096

// MemoryCache is a process-local Cache that evicts the least recently used
// signal once it holds its maximum.
type MemoryCache struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key    string
	signal Signal
}

// NewMemoryCache constructs an empty MemoryCache of DefaultMemoryCacheSize.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheSize(DefaultMemoryCacheSize)
}

// NewMemoryCacheSize constructs an empty MemoryCache holding at most size
// signals. Values below 1 fall back to DefaultMemoryCacheSize.
func NewMemoryCacheSize(size int) *MemoryCache {
	if size < 1 {
		size = DefaultMemoryCacheSize
	}
	return &MemoryCache{max: size, order: list.New(), items: make(map[string]*list.Element)}
}

// Get returns the cached signal for key.
func (c *MemoryCache) Get(_ context.Context, key string) (Signal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Signal{}, false, nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).signal, true, nil
}

// Set stores s under key.
func (c *MemoryCache) Set(_ context.Context, key string, s Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).signal = s
		c.order.MoveToFront(el)
		return nil
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, signal: s})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
	return nil
}

// Len reports how many signals are cached.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

const redisKeyPrefix = "leadpipe:ai-signal:"

// RedisCache shares AI signals across processes through Redis.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache wraps a go-redis client. A zero ttl keeps entries forever.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached signal for key.
func (c *RedisCache) Get(ctx context.Context, key string) (Signal, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Signal{}, false, nil
	}
	if err != nil {
		return Signal{}, false, fmt.Errorf("redis get: %w", err)
	}
	var s Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return Signal{}, false, fmt.Errorf("decode cached signal: %w", err)
	}
	return s, true, nil
}

// Set stores s under key.
func (c *RedisCache) Set(ctx context.Context, key string, s Signal) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
