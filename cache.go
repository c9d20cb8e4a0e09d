package accesskit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached rule may outlive a change made by
// another process. Changes made through the same Service invalidate at once.
const DefaultCacheTTL = 30 * time.Second

func ruleCacheKey(roleID, resource string) string {
	return roleID + "|" + resource
}

// MemoryRuleCache is a process local RuleCache with per entry expiry.
type MemoryRuleCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value     CachedRule
	expiresAt time.Time
}

// NewMemoryRuleCache returns an empty cache. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewMemoryRuleCache(ttl time.Duration) *MemoryRuleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryRuleCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryCacheEntry),
	}
}

// Get returns a live entry.
func (c *MemoryRuleCache) Get(_ context.Context, roleID, resource string) (CachedRule, bool) {
	c.mu.RLock()
	e, ok := c.entries[ruleCacheKey(roleID, resource)]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return CachedRule{}, false
	}
	return e.value, true
}

// Set stores entry until the TTL elapses.
func (c *MemoryRuleCache) Set(_ context.Context, roleID, resource string, entry CachedRule) {
	c.mu.Lock()
	c.entries[ruleCacheKey(roleID, resource)] = memoryCacheEntry{value: entry, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops every entry.
func (c *MemoryRuleCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryCacheEntry)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryRuleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const redisRuleVersionKey = "accesskit:rules:version"

// RedisRuleCache shares rule lookups between processes. Keys embed a
// version counter; Invalidate increments it so every older key becomes
// unreachable and expires on its own TTL.
type RedisRuleCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisRuleCache returns a cache storing entries in client.
// A non-positive ttl falls back to DefaultCacheTTL.
func NewRedisRuleCache(client redis.UniversalClient, ttl time.Duration) *RedisRuleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisRuleCache{client: client, ttl: ttl}
}

func (c *RedisRuleCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, redisRuleVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *RedisRuleCache) key(ctx context.Context, roleID, resource string) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{"accesskit", "rule", strconv.FormatInt(ver, 10), roleID, resource}, ":"), nil
}

// Get returns the cached entry. Redis failures are reported as a miss so the
// caller falls back to the store.
func (c *RedisRuleCache) Get(ctx context.Context, roleID, resource string) (CachedRule, bool) {
	key, err := c.key(ctx, roleID, resource)
	if err != nil {
		return CachedRule{}, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return CachedRule{}, false
	}
	var entry CachedRule
	if err := json.Unmarshal(payload, &entry); err != nil {
		return CachedRule{}, false
	}
	return entry, true
}

// Set stores entry with the cache TTL. Failures are ignored.
func (c *RedisRuleCache) Set(ctx context.Context, roleID, resource string, entry CachedRule) {
	key, err := c.key(ctx, roleID, resource)
	if err != nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate bumps the version counter.
func (c *RedisRuleCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, redisRuleVersionKey).Err()
}

// Ping checks that Redis is reachable.
func (c *RedisRuleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// noopRuleCache is used when caching is disabled.
type noopRuleCache struct{}

func (noopRuleCache) Get(context.Context, string, string) (CachedRule, bool) {
	return CachedRule{}, false
}

func (noopRuleCache) Set(context.Context, string, string, CachedRule) {}

func (noopRuleCache) Invalidate(context.Context) error { return nil }

var (
	_ RuleCache = (*MemoryRuleCache)(nil)
	_ RuleCache = (*RedisRuleCache)(nil)
	_ RuleCache = noopRuleCache{}
)
