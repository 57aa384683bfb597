package areas

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TreeCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTreeCache(client, 10*time.Minute), mr
}

func TestTreeCacheServesFromRedisUntilBumped(t *testing.T) {
	cache, mr := newTestCache(t)
	store := newMemStore()
	ctx := context.Background()

	first, err := cache.Load(ctx, store.ActiveAreas)
	require.NoError(t, err)
	second, err := cache.Load(ctx, store.ActiveAreas)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.treeLoads)
	assert.True(t, mr.Exists("areas:tree:1"))

	require.NoError(t, cache.Bump(ctx))
	_, err = cache.Load(ctx, store.ActiveAreas)
	require.NoError(t, err)
	assert.Equal(t, 2, store.treeLoads)
	assert.True(t, mr.Exists("areas:tree:2"))
	assert.Equal(t, 10*time.Minute, mr.TTL("areas:tree:2"))
}

func TestTreeCacheDoesNotStoreFailures(t *testing.T) {
	cache, mr := newTestCache(t)
	store := newMemStore()
	store.failTree = errBackend

	_, err := cache.Load(context.Background(), store.ActiveAreas)
	assert.ErrorIs(t, err, errBackend)
	assert.False(t, mr.Exists("areas:tree:1"))
}

func TestTreeCacheFallsThroughWhenRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()
	store := newMemStore()

	tree, err := cache.Load(context.Background(), store.ActiveAreas)
	require.NoError(t, err)
	assert.Len(t, tree, len(orgChart()))
}

func TestNilTreeCachePassesThrough(t *testing.T) {
	var cache *TreeCache
	store := newMemStore()
	_, err := cache.Load(context.Background(), store.ActiveAreas)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(context.Background()))
	assert.Equal(t, 1, store.treeLoads)
}
