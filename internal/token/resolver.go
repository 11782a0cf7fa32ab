package token

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roledir/roledir/internal/shared"
)

// DefaultTokenEnvVar is the well-known environment variable consulted when
// no other credential is supplied. Deployments override it via config.
const DefaultTokenEnvVar = "KB_AUTH_TOKEN"

// Credentials is the partial set of inputs the resolver selects from.
// All fields are optional; the resolver picks exactly one method.
type Credentials struct {
	UserID string
	// Password authenticates via password grant.
	Password string
	// PrivateKey is PEM-encoded key material for the signed-request method.
	PrivateKey []byte
	// Passphrase decrypts PrivateKey when it is encrypted.
	Passphrase string
	// AgentKeyName selects a key loaded in the ssh agent by comment. When
	// empty, any single loaded key is used.
	AgentKeyName string
	// Token is a pre-existing token; it short-circuits every other method.
	Token string
}

// Resolver turns credentials into a Token using a fixed priority order:
// explicit token, private key, password, ssh agent, environment token.
// No retries: a failed attempt is reported immediately.
type Resolver struct {
	granter     Granter
	verifier    Verifier
	cache       Cache
	tokenEnvVar string
	dialAgent   AgentDialer
	lookupEnv   func(string) (string, bool)
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithTokenEnvVar overrides the environment variable consulted for a
// fallback token.
func WithTokenEnvVar(name string) ResolverOption {
	return func(r *Resolver) {
		if name != "" {
			r.tokenEnvVar = name
		}
	}
}

// WithAgentDialer overrides how the resolver reaches a signing agent.
func WithAgentDialer(d AgentDialer) ResolverOption {
	return func(r *Resolver) { r.dialAgent = d }
}

// withEnvLookup overrides environment access for tests.
func withEnvLookup(fn func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// NewResolver constructs a Resolver. The granter and verifier are usually
// the same *Client.
func NewResolver(granter Granter, verifier Verifier, cache Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		granter:     granter,
		verifier:    verifier,
		cache:       cache,
		tokenEnvVar: DefaultTokenEnvVar,
		dialAgent:   DialSSHAgent,
		lookupEnv:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve selects exactly one authentication method for the supplied
// credentials, first match wins. It fails with ErrCredentialsNeeded when
// no method is attemptable, or an AuthError when an attempt was made and
// rejected.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (*Token, error) {
	// 1. Explicit token: wrap directly, validation deferred to Validate.
	if creds.Token != "" {
		return NewToken(creds.Token, r.verifier, r.cache), nil
	}

	// 2. Signed request with in-process private key.
	if creds.UserID != "" && len(creds.PrivateKey) > 0 {
		signer, err := newKeySigner(creds.PrivateKey, creds.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
		return r.grantSigned(ctx, creds.UserID, signer)
	}

	// 3. Password grant.
	if creds.UserID != "" && creds.Password != "" {
		raw, err := r.granter.PasswordGrant(ctx, creds.UserID, creds.Password)
		if err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
		return r.newResolvedToken(raw, creds.UserID), nil
	}

	// 4. Agent-signed challenge. An explicit key name commits to this
	// method; otherwise it is attempted only when an agent is reachable
	// and holds a key.
	if creds.UserID != "" {
		tok, attempted, err := r.tryAgent(ctx, creds.UserID, creds.AgentKeyName)
		if attempted {
			return tok, err
		}
	}

	// 5. Environment token.
	if raw, ok := r.lookupEnv(r.tokenEnvVar); ok && raw != "" {
		return NewToken(raw, r.verifier, r.cache), nil
	}

	// 6. Not enough inputs to attempt any method.
	return nil, fmt.Errorf("resolve: %w", shared.ErrCredentialsNeeded)
}

// ResolveOptional resolves like Resolve but swallows exactly the
// "not enough credentials" case, returning an unauthenticated Token that
// can be retried later with more input. Used when construction was given
// only a user id. Any other failure propagates.
func (r *Resolver) ResolveOptional(ctx context.Context, creds Credentials) (*Token, error) {
	tok, err := r.Resolve(ctx, creds)
	if err != nil {
		if errors.Is(err, shared.ErrCredentialsNeeded) {
			return NewToken("", r.verifier, r.cache), nil
		}
		return nil, err
	}
	return tok, nil
}

func (r *Resolver) grantSigned(ctx context.Context, userID string, signer ChallengeSigner) (*Token, error) {
	raw, err := r.granter.SignedGrant(ctx, userID, signer)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	return r.newResolvedToken(raw, userID), nil
}

// tryAgent reports whether the agent method was attempted. With no
// explicit key name, an unreachable or empty agent means "skip", not
// "fail": the ladder continues to the environment token.
func (r *Resolver) tryAgent(ctx context.Context, userID, keyName string) (*Token, bool, error) {
	ag, closer, err := r.dialAgent()
	if err != nil {
		if keyName != "" {
			return nil, true, fmt.Errorf("resolve: %w", &shared.AuthError{Kind: shared.CredentialAgent, Err: err})
		}
		return nil, false, nil
	}
	if closer != nil {
		defer closer.Close()
	}
	key, err := pickAgentKey(ag, keyName)
	if err != nil {
		return nil, true, fmt.Errorf("resolve: %w", &shared.AuthError{Kind: shared.CredentialAgent, Err: err})
	}
	if key == nil {
		if keyName != "" {
			return nil, true, fmt.Errorf("resolve: %w", &shared.AuthError{
				Kind: shared.CredentialAgent,
				Err:  fmt.Errorf("key %q not loaded in agent", keyName),
			})
		}
		return nil, false, nil
	}
	tok, err := r.grantSigned(ctx, userID, &agentSigner{ag: ag, key: key})
	return tok, true, err
}

func (r *Resolver) newResolvedToken(raw, userID string) *Token {
	tok := NewToken(raw, r.verifier, r.cache)
	tok.UserID = userID
	return tok
}
