// Package token resolves caller credentials into verified identity tokens
// and caches validation results to avoid repeated network round trips.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/roledir/roledir/internal/shared"
)

// Cache memoizes token validation results. A miss or eviction only costs a
// re-validation round trip; the cache is never a source of truth.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, token string) (shared.Identity, bool)
	Put(ctx context.Context, token string, id shared.Identity)
}

// Defaults for the in-memory cache.
const (
	DefaultCacheSize    = 1000
	DefaultCacheMaxSize = 2000
	DefaultCacheTTL     = 5 * time.Minute
)

type cacheEntry struct {
	identity shared.Identity
	stored   time.Time
	access   time.Time
}

// MemoryCache is an in-process Cache. Entries expire after a TTL. When the
// cache grows past maxSize it is trimmed back to size, discarding the
// least recently accessed entries first. Tokens are stored under their
// SHA-256 digest so raw credentials never sit in memory longer than needed.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	size    int
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache constructs a MemoryCache. Non-positive parameters fall
// back to the defaults; size is clamped below maxSize.
func NewMemoryCache(size, maxSize int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if maxSize <= size {
		maxSize = size * 2
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]*cacheEntry, maxSize),
		size:    size,
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached identity for a token, refreshing its access time.
func (c *MemoryCache) Get(_ context.Context, token string) (shared.Identity, bool) {
	if token == "" {
		return shared.Identity{}, false
	}
	key := digest(token)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return shared.Identity{}, false
	}
	if c.now().Sub(entry.stored) > c.ttl {
		delete(c.entries, key)
		return shared.Identity{}, false
	}
	entry.access = c.now()
	return entry.identity, true
}

// Put stores a validated identity. The caller asserts the token is valid.
func (c *MemoryCache) Put(_ context.Context, token string, id shared.Identity) {
	if token == "" {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[digest(token)] = &cacheEntry{identity: id, stored: now, access: now}
	if len(c.entries) > c.maxSize {
		c.trim()
	}
}

// trim discards the oldest-accessed entries until the cache is back at its
// nominal size. Callers must hold the lock.
func (c *MemoryCache) trim() {
	type keyed struct {
		key    string
		access time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, keyed{key: k, access: e.access})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].access.Before(all[j].access) })
	for _, k := range all[:len(all)-c.size] {
		delete(c.entries, k.key)
	}
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
