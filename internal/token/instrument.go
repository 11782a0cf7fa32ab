package token

import (
	"context"

	"github.com/roledir/roledir/internal/shared"
)

// CacheMetrics receives cache outcome signals. Satisfied by
// observability.Metrics.
type CacheMetrics interface {
	TokenCacheHit()
	TokenCacheMiss()
}

type instrumentedCache struct {
	inner   Cache
	metrics CacheMetrics
}

// InstrumentCache wraps a Cache so hits and misses show up in metrics.
func InstrumentCache(inner Cache, metrics CacheMetrics) Cache {
	if metrics == nil {
		return inner
	}
	return &instrumentedCache{inner: inner, metrics: metrics}
}

func (c *instrumentedCache) Get(ctx context.Context, tok string) (shared.Identity, bool) {
	id, ok := c.inner.Get(ctx, tok)
	if ok {
		c.metrics.TokenCacheHit()
	} else {
		c.metrics.TokenCacheMiss()
	}
	return id, ok
}

func (c *instrumentedCache) Put(ctx context.Context, tok string, id shared.Identity) {
	c.inner.Put(ctx, tok, id)
}
