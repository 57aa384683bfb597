package areas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	treeVersionKey = "areas:tree:version"
	treeKeyPrefix  = "areas:tree"
)

// TreeCache keeps the active area tree in Redis under a versioned key. Bump
// moves readers to a fresh key; old entries age out through their TTL. A nil
// TreeCache passes every load through.
type TreeCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewTreeCache constructs a TreeCache.
func NewTreeCache(client redis.Cmdable, ttl time.Duration) *TreeCache {
	return &TreeCache{client: client, ttl: ttl}
}

// Version returns the current generation, initialising it when missing.
func (c *TreeCache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, treeVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, treeVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, treeVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Load returns the cached tree or fills it with loader.
func (c *TreeCache) Load(ctx context.Context, loader func(context.Context) ([]Area, error)) ([]Area, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("%s:%d", treeKeyPrefix, ver)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached []Area
		if json.Unmarshal(payload, &cached) == nil {
			return cached, nil
		}
	}
	list, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(list); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return list, nil
}

// Bump invalidates every cached tree.
func (c *TreeCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, treeVersionKey).Err()
}
