package token

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roledir/roledir/internal/shared"
)

// RedisCache is a Cache backed by Redis, for deployments where multiple
// instances should share validation results. Redis failures degrade to
// cache misses; they are never surfaced to validation callers.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache constructs a RedisCache. A non-positive TTL falls back to
// the default.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "roledir:token:"}
}

// Get looks up a cached identity by token digest.
func (c *RedisCache) Get(ctx context.Context, token string) (shared.Identity, bool) {
	if token == "" {
		return shared.Identity{}, false
	}
	payload, err := c.client.Get(ctx, c.prefix+digest(token)).Bytes()
	if err != nil {
		return shared.Identity{}, false
	}
	var id shared.Identity
	if err := json.Unmarshal(payload, &id); err != nil {
		return shared.Identity{}, false
	}
	return id, true
}

// Put stores a validated identity under the token digest with the cache TTL.
func (c *RedisCache) Put(ctx context.Context, token string, id shared.Identity) {
	if token == "" {
		return
	}
	payload, err := json.Marshal(id)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.prefix+digest(token), payload, c.ttl).Err()
}
