package accesskit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRuleCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryRuleCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	_, ok := cache.Get(ctx, "r1", "orders")
	assert.False(t, ok)

	rule := &PermissionRule{ID: "rule-1", Read: true}
	cache.Set(ctx, "r1", "orders", CachedRule{Rule: rule})
	cache.Set(ctx, "r1", "products", CachedRule{})

	entry, ok := cache.Get(ctx, "r1", "orders")
	require.True(t, ok)
	assert.Equal(t, "rule-1", entry.Rule.ID)

	// negative entries are cached too
	entry, ok = cache.Get(ctx, "r1", "products")
	require.True(t, ok)
	assert.Nil(t, entry.Rule)

	now = now.Add(time.Minute)
	_, ok = cache.Get(ctx, "r1", "orders")
	assert.False(t, ok, "entry must expire after the ttl")

	require.NoError(t, cache.Invalidate(ctx))
	assert.Equal(t, 0, cache.Len())
}

func newTestRedisCache(t *testing.T) (*RedisRuleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRuleCache(client, time.Minute), mr
}

func TestRedisRuleCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)

	_, ok := cache.Get(ctx, "r1", "orders")
	assert.False(t, ok)

	cache.Set(ctx, "r1", "orders", CachedRule{Rule: &PermissionRule{ID: "rule-1", Update: true}})
	entry, ok := cache.Get(ctx, "r1", "orders")
	require.True(t, ok)
	assert.Equal(t, "rule-1", entry.Rule.ID)
	assert.True(t, entry.Rule.Update)

	t.Run("Invalidate bumps the version", func(t *testing.T) {
		require.NoError(t, cache.Invalidate(ctx))
		_, ok := cache.Get(ctx, "r1", "orders")
		assert.False(t, ok)

		v, err := mr.Get(redisRuleVersionKey)
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	})

	t.Run("entries expire", func(t *testing.T) {
		cache.Set(ctx, "r2", "orders", CachedRule{})
		_, ok := cache.Get(ctx, "r2", "orders")
		require.True(t, ok)

		mr.FastForward(2 * time.Minute)
		_, ok = cache.Get(ctx, "r2", "orders")
		assert.False(t, ok)
	})

	require.NoError(t, cache.Ping(ctx))
}

// TestRedisRuleCacheUnavailable checks that an outage degrades to misses.
func TestRedisRuleCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)
	mr.Close()

	cache.Set(ctx, "r1", "orders", CachedRule{})
	_, ok := cache.Get(ctx, "r1", "orders")
	assert.False(t, ok)
	assert.Error(t, cache.Ping(ctx))
	assert.Error(t, cache.Invalidate(ctx))
}

// TestServiceWithRedisCache runs decisions through a shared cache that two
// services use, as two processes would.
func TestServiceWithRedisCache(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestRedisCache(t)
	service, store, _ := newBootstrappedService(t, WithRuleCache(cache))
	admin := mustRegister(t, service, "admin@x.com", RoleAdmin)
	user := mustRegister(t, service, "u@x.com", RoleUser)

	assert.True(t, service.Can(ctx, admin, ResourceUsers, OpDelete, WithOwner("x")))
	assert.False(t, service.Can(ctx, user, ResourceOrders, OpCreate))

	other := NewService(store, NewTokenIssuer(testSecret, 0), WithRuleCache(cache))

	userRole, err := store.GetRoleByName(ctx, RoleUser)
	require.NoError(t, err)
	orders, err := store.GetResourceByName(ctx, ResourceOrders)
	require.NoError(t, err)
	_, err = other.CreateRule(ctx, admin, RuleInput{RoleID: userRole.ID, ResourceID: orders.ID, Create: true})
	require.NoError(t, err)

	assert.True(t, service.Can(ctx, user, ResourceOrders, OpCreate))

	report := service.Health(ctx)
	require.NotNil(t, report.Cache)
	assert.True(t, report.Cache.Healthy)
}
