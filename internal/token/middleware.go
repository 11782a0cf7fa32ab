package token

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/roledir/roledir/internal/shared"
)

// Middleware authenticates inbound requests by validating the bearer token
// in the Authorization header. Requests without a token, or with a token
// the verification endpoint rejects, continue as anonymous; the decision
// engine denies them with its own reason. The cache keeps repeated
// requests with the same token to a single verification round trip.
func Middleware(verifier Verifier, cache Cache, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			checker := NewToken(raw, verifier, cache)
			id, err := checker.Validate(r.Context())
			if err != nil {
				if logger != nil {
					logger.Warn("token validation failed", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := shared.ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
