package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roledir/roledir/internal/shared"
)

// Verifier validates an opaque token against the identity-verification
// endpoint. Any 2xx response is success; anything else means the token is
// cryptographically or semantically invalid, never "no token".
type Verifier interface {
	Verify(ctx context.Context, token string) (shared.Identity, error)
}

// Granter exchanges primary credentials for a token.
type Granter interface {
	PasswordGrant(ctx context.Context, userID, password string) (string, error)
	SignedGrant(ctx context.Context, userID string, signer ChallengeSigner) (string, error)
}

// ChallengeSigner signs a server challenge with a private key held by the
// caller, either in-process key material or a key loaded in an ssh agent.
type ChallengeSigner interface {
	Sign(data []byte) ([]byte, error)
	Kind() shared.CredentialKind
}

// Client talks HTTP(S) to the identity provider. It implements both
// Verifier and Granter.
type Client struct {
	base    string
	httpc   *http.Client
	timeout time.Duration
}

// NewClient constructs a Client for the given base URL. A non-positive
// timeout falls back to 30 seconds.
func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type grantResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

type verifyResponse struct {
	UserID string `json:"user_id"`
	Source string `json:"source"`
}

// Verify checks a token with the identity provider.
func (c *Client) Verify(ctx context.Context, token string) (shared.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/validate", nil)
	if err != nil {
		return shared.Identity{}, &shared.AuthError{Kind: shared.CredentialToken, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Includes timeouts: "couldn't confirm" is "not confirmed".
		return shared.Identity{}, &shared.AuthError{Kind: shared.CredentialToken, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return shared.Identity{}, &shared.AuthError{
			Kind: shared.CredentialToken,
			Err:  fmt.Errorf("verification endpoint returned %d", resp.StatusCode),
		}
	}

	var parsed verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return shared.Identity{}, &shared.AuthError{Kind: shared.CredentialToken, Err: fmt.Errorf("decode verification response: %w", err)}
	}
	if parsed.UserID == "" {
		return shared.Identity{}, &shared.AuthError{Kind: shared.CredentialToken, Err: errors.New("verification response missing user_id")}
	}
	return shared.Identity{UserID: parsed.UserID, Source: parsed.Source}, nil
}

// PasswordGrant authenticates with user_id and password and returns a token.
func (c *Client) PasswordGrant(ctx context.Context, userID, password string) (string, error) {
	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("password", password)
	return c.requestToken(ctx, shared.CredentialPassword, form)
}

// SignedGrant authenticates by signing a one-time challenge with the
// caller's private key and returns a token.
func (c *Client) SignedGrant(ctx context.Context, userID string, signer ChallengeSigner) (string, error) {
	challenge := fmt.Sprintf("%s:%d:%s", userID, time.Now().Unix(), uuid.NewString())
	signature, err := signer.Sign([]byte(challenge))
	if err != nil {
		return "", &shared.AuthError{Kind: signer.Kind(), Err: fmt.Errorf("sign challenge: %w", err)}
	}

	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("challenge", challenge)
	form.Set("signature", base64.StdEncoding.EncodeToString(signature))
	return c.requestToken(ctx, signer.Kind(), form)
}

func (c *Client) requestToken(ctx context.Context, kind shared.CredentialKind, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &shared.AuthError{Kind: kind, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &shared.AuthError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &shared.AuthError{
			Kind: kind,
			Err:  fmt.Errorf("identity endpoint rejected credentials with status %d", resp.StatusCode),
		}
	}

	var parsed grantResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", &shared.AuthError{Kind: kind, Err: fmt.Errorf("decode grant response: %w", err)}
	}
	if parsed.AccessToken == "" {
		return "", &shared.AuthError{Kind: kind, Err: errors.New("grant response missing access_token")}
	}
	return parsed.AccessToken, nil
}
