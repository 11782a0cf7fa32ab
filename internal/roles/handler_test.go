package roles_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roledir/roledir/internal/authz"
	"github.com/roledir/roledir/internal/roles"
	"github.com/roledir/roledir/internal/shared"
	"github.com/roledir/roledir/internal/token"
)

// mapVerifier resolves tokens from a fixed table, standing in for the
// external verification endpoint.
type mapVerifier map[string]string

func (m mapVerifier) Verify(_ context.Context, tok string) (shared.Identity, error) {
	userID, ok := m[tok]
	if !ok {
		return shared.Identity{}, &shared.AuthError{Kind: shared.CredentialToken, Err: shared.ErrUnauthenticated}
	}
	return shared.Identity{UserID: userID, Source: "test"}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := roles.NewMemoryStore()
	gate := roles.Document{
		RoleID:      authz.DefaultGateRole,
		Description: "users permitted to use the service",
		Owner:       "root",
		Members:     []string{"alice", "bob"},
	}
	gate.Normalize()
	require.NoError(t, store.Insert(context.Background(), gate))

	svc := roles.NewService(store, authz.NewEngine(""), nil, roles.RootReadHelp)
	handler := roles.NewHandler(nil, svc)

	verifier := mapVerifier{"tok-alice": "alice", "tok-bob": "bob", "tok-mallory": "mallory"}
	cache := token.NewMemoryCache(0, 0, 0)

	r := chi.NewRouter()
	r.Use(token.Middleware(verifier, cache, nil))
	handler.MountRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, tok, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doRequest(t, srv, http.MethodGet, "/Roles/", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A token the verifier rejects falls back to anonymous.
	resp, _ = doRequest(t, srv, http.MethodGet, "/Roles/", "tok-bogus", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateReadUpdateDelete(t *testing.T) {
	srv := newTestServer(t)

	// Create by alice. The body's role_owner is ignored.
	resp, body := doRequest(t, srv, http.MethodPost, "/Roles/", "tok-alice",
		`{"role_id":"team","description":"a team","members":["alice"],"role_owner":"mallory"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "alice", created["role_owner"])

	// Read by bob, a gate member.
	resp, body = doRequest(t, srv, http.MethodGet, "/Roles/team", "tok-bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "a team", got["description"])

	// Update by bob is forbidden.
	resp, _ = doRequest(t, srv, http.MethodPut, "/Roles/team", "tok-bob",
		`{"description":"hijacked"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Update by alice; role_owner in the body cannot reassign ownership.
	resp, body = doRequest(t, srv, http.MethodPut, "/Roles/team", "tok-alice",
		`{"description":"renamed","role_owner":"mallory"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated map[string]any
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "renamed", updated["description"])
	assert.Equal(t, "alice", updated["role_owner"])

	// Delete by bob is forbidden, by alice allowed.
	resp, _ = doRequest(t, srv, http.MethodDelete, "/Roles/team", "tok-bob", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodDelete, "/Roles/team", "tok-alice", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet, "/Roles/team", "tok-alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateViaBareRootPut(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/Roles/", "tok-alice",
		`{"role_id":"team","description":"a team"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// PUT to the collection with the role_id in the body.
	resp, body := doRequest(t, srv, http.MethodPut, "/Roles/", "tok-alice",
		`{"role_id":"team","description":"via root put"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = doRequest(t, srv, http.MethodPut, "/Roles/", "tok-alice",
		`{"description":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateConflictsAndValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/Roles/", "tok-alice",
		`{"role_id":"team","description":"a team"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/Roles/", "tok-alice",
		`{"role_id":"team","description":"again"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/Roles/", "tok-alice",
		`{"role_id":"other"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/Roles/", "tok-alice", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/Roles/", "tok-mallory",
		`{"role_id":"sneaky","description":"d"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFilteredRead(t *testing.T) {
	srv := newTestServer(t)

	for _, id := range []string{"team_a", "team_b"} {
		resp, _ := doRequest(t, srv, http.MethodPost, "/Roles/", "tok-alice",
			`{"role_id":"`+id+`","description":"d","members":["zed"]}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	query := "?filter=" + url.QueryEscape(`{"members":"zed"}`) +
		"&fields=" + url.QueryEscape(`["role_id"]`)
	resp, body := doRequest(t, srv, http.MethodGet, "/Roles/"+query, "tok-bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var results []map[string]any
	require.NoError(t, json.Unmarshal(body, &results))
	require.Len(t, results, 2)
	ids := []any{results[0]["role_id"], results[1]["role_id"]}
	assert.ElementsMatch(t, []any{"team_a", "team_b"}, ids)
	for _, doc := range results {
		assert.Len(t, doc, 1)
	}

	// Explicit operator form and comma-separated fields.
	query = "?filter=" + url.QueryEscape(`{"role_id":{"regex":"^team_"}}`) +
		"&fields=role_id,description"
	resp, body = doRequest(t, srv, http.MethodGet, "/Roles/"+query, "tok-bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &results))
	assert.Len(t, results, 2)

	// Unknown fields in filter or projection are rejected outright.
	resp, _ = doRequest(t, srv, http.MethodGet,
		"/Roles/?filter="+url.QueryEscape(`{"_id":"x"}`), "tok-bob", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet,
		"/Roles/?filter="+url.QueryEscape(`{"members":"zed"}`)+"&fields="+url.QueryEscape(`["_id"]`),
		"tok-bob", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRootReadReturnsHelp(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/Roles/", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var help map[string]any
	require.NoError(t, json.Unmarshal(body, &help))
	assert.Contains(t, help, "resources")
	assert.Contains(t, help, "usage")
}

func TestNonGateMemberReadForbidden(t *testing.T) {
	srv := newTestServer(t)

	// Existing and nonexistent roles answer identically to outsiders.
	resp, _ := doRequest(t, srv, http.MethodGet, "/Roles/"+authz.DefaultGateRole, "tok-mallory", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet, "/Roles/nothing-here", "tok-mallory", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
