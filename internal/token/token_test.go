package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roledir/roledir/internal/shared"
)

// newVerifyServer stands in for the identity-verification endpoint. It
// accepts the given tokens and counts round trips.
func newVerifyServer(t *testing.T, valid map[string]string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		raw := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(raw) <= len(prefix) {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		user, ok := valid[raw[len(prefix):]]
		if !ok {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id": "` + user + `", "source": "test"}`))
	}))
}

func TestValidateCachesResult(t *testing.T) {
	var calls atomic.Int64
	srv := newVerifyServer(t, map[string]string{"tok-alice": "alice"}, &calls)
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	cache := NewMemoryCache(10, 20, time.Minute)
	tok := NewToken("tok-alice", client, cache)

	ctx := context.Background()
	id, err := tok.Validate(ctx)
	if err != nil {
		t.Fatalf("first validate: %v", err)
	}
	if id.UserID != "alice" {
		t.Fatalf("resolved user = %q, want alice", id.UserID)
	}
	if tok.UserID != "alice" {
		t.Fatalf("token user = %q, want alice", tok.UserID)
	}

	// Second validation is a cache hit: exactly one network call total.
	if _, err := tok.Validate(ctx); err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("verification calls = %d, want 1", got)
	}
}

func TestValidateSharedCacheAcrossTokens(t *testing.T) {
	var calls atomic.Int64
	srv := newVerifyServer(t, map[string]string{"tok-alice": "alice"}, &calls)
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	cache := NewMemoryCache(10, 20, time.Minute)
	ctx := context.Background()

	if _, err := NewToken("tok-alice", client, cache).Validate(ctx); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := NewToken("tok-alice", client, cache).Validate(ctx); err != nil {
		t.Fatalf("validate via second token: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("verification calls = %d, want 1", got)
	}
}

func TestValidateRejectedToken(t *testing.T) {
	var calls atomic.Int64
	srv := newVerifyServer(t, nil, &calls)
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	tok := NewToken("bogus", client, NewMemoryCache(10, 20, time.Minute))

	_, err := tok.Validate(context.Background())
	if err == nil {
		t.Fatal("rejected token must fail, not read as anonymous")
	}
	var authErr *shared.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if authErr.Kind != shared.CredentialToken {
		t.Fatalf("kind = %q, want token", authErr.Kind)
	}

	// Rejections are not cached.
	_, _ = tok.Validate(context.Background())
	if got := calls.Load(); got != 2 {
		t.Fatalf("verification calls = %d, want 2", got)
	}
}

func TestValidateEmptyToken(t *testing.T) {
	tok := NewToken("", nil, NewMemoryCache(10, 20, time.Minute))
	_, err := tok.Validate(context.Background())
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 20*time.Millisecond)
	tok := NewToken("tok", client, NewMemoryCache(10, 20, time.Minute))

	_, err := tok.Validate(context.Background())
	var authErr *shared.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("timeout must surface as AuthError, got %v", err)
	}
}
