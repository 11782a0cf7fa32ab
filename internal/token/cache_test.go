package token

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/roledir/roledir/internal/shared"
)

func TestMemoryCachePutGet(t *testing.T) {
	c := NewMemoryCache(10, 20, time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "tok-1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(ctx, "tok-1", shared.Identity{UserID: "alice", Source: "test"})
	id, ok := c.Get(ctx, "tok-1")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if id.UserID != "alice" || id.Source != "test" {
		t.Fatalf("unexpected identity %+v", id)
	}

	// The exact token string is the key.
	if _, ok := c.Get(ctx, "tok-2"); ok {
		t.Fatal("different token must not hit")
	}
}

func TestMemoryCacheEmptyToken(t *testing.T) {
	c := NewMemoryCache(10, 20, time.Minute)
	ctx := context.Background()
	c.Put(ctx, "", shared.Identity{UserID: "alice"})
	if _, ok := c.Get(ctx, ""); ok {
		t.Fatal("empty token must never be cached")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache(10, 20, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Put(ctx, "tok-1", shared.Identity{UserID: "alice"})

	now = now.Add(30 * time.Second)
	if _, ok := c.Get(ctx, "tok-1"); !ok {
		t.Fatal("entry should still be fresh")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get(ctx, "tok-1"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestMemoryCacheEvictsOldestAccess(t *testing.T) {
	c := NewMemoryCache(2, 4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.Put(ctx, fmt.Sprintf("tok-%d", i), shared.Identity{UserID: fmt.Sprintf("u%d", i)})
		now = now.Add(time.Second)
	}
	// Refresh tok-0 so it is the most recently accessed.
	if _, ok := c.Get(ctx, "tok-0"); !ok {
		t.Fatal("tok-0 should be present before trim")
	}
	now = now.Add(time.Second)

	// Fifth entry pushes the cache past maxSize and trims back to size.
	c.Put(ctx, "tok-4", shared.Identity{UserID: "u4"})

	if _, ok := c.Get(ctx, "tok-0"); !ok {
		t.Fatal("most recently accessed entry must survive the trim")
	}
	if _, ok := c.Get(ctx, "tok-1"); ok {
		t.Fatal("oldest-accessed entry must be evicted")
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(100, 200, time.Minute)
	ctx := context.Background()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				tok := fmt.Sprintf("tok-%d-%d", g, i)
				c.Put(ctx, tok, shared.Identity{UserID: "u"})
				c.Get(ctx, tok)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
