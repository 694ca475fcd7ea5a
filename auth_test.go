package registryinspector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenProviderFor(t *testing.T) {
	tests := []struct {
		host        string
		wantRealm   string
		wantService string
	}{
		{host: "index.docker.io", wantRealm: "https://auth.docker.io/token", wantService: "registry.docker.io"},
		{host: "docker.io", wantRealm: "https://auth.docker.io/token", wantService: "registry.docker.io"},
		{host: "Registry-1.Docker.io", wantRealm: "https://auth.docker.io/token", wantService: "registry.docker.io"},
		{host: "ghcr.io", wantRealm: "https://ghcr.io/token", wantService: "ghcr.io"},
		{host: "quay.example.com"},
		{host: "localhost:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			provider := TokenProviderFor(tt.host, nil)
			if tt.wantRealm == "" {
				assert.IsType(t, NoTokenProvider{}, provider)
				return
			}
			anon, ok := provider.(*AnonymousTokenProvider)
			require.True(t, ok, "got %T", provider)
			assert.Equal(t, tt.wantRealm, anon.Realm)
			assert.Equal(t, tt.wantService, anon.Service)
		})
	}
}

func TestNoTokenProvider(t *testing.T) {
	token, err := NoTokenProvider{}.Token(context.Background(), "library/redis")
	require.NoError(t, err)
	assert.Empty(t, token)

	auth, err := newTokenAuth(context.Background(), NoTokenProvider{}, "library/redis")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestAnonymousTokenProvider_Token(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "token field", body: `{"token":"abc","expires_in":300}`, want: "abc"},
		{name: "access_token field", body: `{"access_token":"xyz"}`, want: "xyz"},
		{name: "token preferred", body: `{"token":"abc","access_token":"xyz"}`, want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "registry.docker.io", r.URL.Query().Get("service"))
				assert.Equal(t, "repository:library/redis:pull", r.URL.Query().Get("scope"))
				assert.Empty(t, r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := &AnonymousTokenProvider{Realm: server.URL + "/token", Service: "registry.docker.io"}
			token, err := provider.Token(context.Background(), "library/redis")

			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestAnonymousTokenProvider_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
		wantParse  bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"details":"incorrect username or password"}`, wantStatus: http.StatusUnauthorized, wantMsg: "incorrect username or password"},
		{name: "server error", status: http.StatusServiceUnavailable, body: "", wantStatus: http.StatusServiceUnavailable},
		{name: "not JSON", status: http.StatusOK, body: "<html>", wantStatus: http.StatusOK, wantParse: true},
		{name: "no token", status: http.StatusOK, body: `{"expires_in":300}`, wantStatus: http.StatusOK, wantParse: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := &AnonymousTokenProvider{Realm: server.URL, Service: "svc", Client: NewClient("", Timeouts{})}
			token, err := provider.Token(context.Background(), "repo")

			assert.Empty(t, token)
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantStatus, authErr.Status)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			var parseErr *ParseError
			assert.Equal(t, tt.wantParse, errors.As(err, &parseErr))
		})
	}
}

func TestAnonymousTokenProvider_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	realm := server.URL
	server.Close()

	provider := &AnonymousTokenProvider{Realm: realm, Service: "svc"}
	_, err := provider.Token(context.Background(), "repo")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
}

// countingProvider issues "token-1", "token-2", ... and counts calls.
type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (c *countingProvider) Token(ctx context.Context, repository string) (string, error) {
	n := c.calls.Add(1)
	if c.err != nil && n > 1 {
		return "", c.err
	}
	return fmt.Sprintf("token-%d", n), nil
}

func TestTokenAuth_Refresh(t *testing.T) {
	provider := &countingProvider{}
	auth, err := newTokenAuth(context.Background(), provider, "repo")
	require.NoError(t, err)
	require.NotNil(t, auth)

	req := httptest.NewRequest(http.MethodGet, "http://registry/v2/", nil)
	auth.Apply(req)
	assert.Equal(t, "Bearer token-1", req.Header.Get("Authorization"))

	refresher := auth.(Refresher)

	ok, err := refresher.Refresh(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), provider.calls.Load())

	stale := httptest.NewRequest(http.MethodGet, "http://registry/v2/", nil)
	stale.Header.Set("Authorization", "Bearer token-1")
	ok, err = refresher.Refresh(context.Background(), stale)
	require.NoError(t, err)
	assert.True(t, ok, "a request sent with the old token is repeated with the new one")
	assert.Equal(t, int32(2), provider.calls.Load())

	current := httptest.NewRequest(http.MethodGet, "http://registry/v2/", nil)
	auth.Apply(current)
	assert.Equal(t, "Bearer token-2", current.Header.Get("Authorization"))
	ok, err = refresher.Refresh(context.Background(), current)
	require.NoError(t, err)
	assert.False(t, ok, "the token is re-acquired once per session")
	assert.Equal(t, int32(2), provider.calls.Load())
}

func TestTokenAuth_RefreshError(t *testing.T) {
	provider := &countingProvider{err: &AuthError{Status: http.StatusUnauthorized}}
	auth, err := newTokenAuth(context.Background(), provider, "repo")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://registry/v2/", nil)
	auth.Apply(req)

	ok, err := auth.(Refresher).Refresh(context.Background(), req)
	assert.False(t, ok)
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestScope(t *testing.T) {
	assert.Equal(t, "repository:library/redis:pull", Scope("library/redis"))
}
