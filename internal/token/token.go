package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/roledir/roledir/internal/shared"
)

// ErrInvalidToken indicates the verification endpoint rejected a token.
var ErrInvalidToken = errors.New("invalid token")

// Token is a resolved identity: the raw credential string plus the user id
// it authenticates. Tokens are created by the Resolver and owned by the
// calling adapter; the only shared state they touch is the Cache.
type Token struct {
	Raw    string
	UserID string

	verifier Verifier
	cache    Cache
}

// NewToken wraps an already-obtained token string. Validation is deferred
// to Validate.
func NewToken(raw string, verifier Verifier, cache Cache) *Token {
	return &Token{Raw: raw, verifier: verifier, cache: cache}
}

// Validate checks the token's own raw string.
func (t *Token) Validate(ctx context.Context) (shared.Identity, error) {
	return t.ValidateToken(ctx, t.Raw)
}

// ValidateToken checks an arbitrary token string. The cache is consulted
// first; on a miss the verification endpoint is called and a successful
// result is memoized under the exact token string. Endpoint rejection is
// an error, never an empty identity.
func (t *Token) ValidateToken(ctx context.Context, raw string) (shared.Identity, error) {
	if raw == "" {
		return shared.Identity{}, fmt.Errorf("token: %w", ErrInvalidToken)
	}
	if id, ok := t.cache.Get(ctx, raw); ok {
		if raw == t.Raw {
			t.UserID = id.UserID
		}
		return id, nil
	}
	id, err := t.verifier.Verify(ctx, raw)
	if err != nil {
		return shared.Identity{}, fmt.Errorf("token: %w", err)
	}
	t.cache.Put(ctx, raw, id)
	if raw == t.Raw {
		t.UserID = id.UserID
	}
	return id, nil
}
