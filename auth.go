package registryinspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	json "github.com/eznix86/registry-inspector/jsoncompat"
)

// TokenProvider obtains a bearer token allowing anonymous pull access to a
// repository. An empty token means requests are sent without Authorization.
type TokenProvider interface {
	Token(ctx context.Context, repository string) (string, error)
}

// NoTokenProvider is used for registries that are assumed open.
type NoTokenProvider struct{}

func (NoTokenProvider) Token(context.Context, string) (string, error) {
	return "", nil
}

// TokenRealm identifies the token endpoint of a registry.
type TokenRealm struct {
	Realm   string
	Service string
}

var (
	dockerHubRealm = TokenRealm{Realm: "https://auth.docker.io/token", Service: "registry.docker.io"}
	ghcrRealm      = TokenRealm{Realm: "https://ghcr.io/token", Service: "ghcr.io"}
)

// knownTokenRealms lists the registries that refuse anonymous requests
// without a pull token.
var knownTokenRealms = map[string]TokenRealm{
	"docker.io":               dockerHubRealm,
	"index.docker.io":         dockerHubRealm,
	"registry-1.docker.io":    dockerHubRealm,
	"registry.hub.docker.com": dockerHubRealm,
	"ghcr.io":                 ghcrRealm,
}

// TokenRealmFor reports the token endpoint for host, if it needs one.
func TokenRealmFor(host string) (TokenRealm, bool) {
	realm, ok := knownTokenRealms[strings.ToLower(host)]
	return realm, ok
}

// TokenProviderFor picks the token strategy for host. Registries with a known
// token realm get an AnonymousTokenProvider; all others get NoTokenProvider.
func TokenProviderFor(host string, client *Client) TokenProvider {
	realm, ok := TokenRealmFor(host)
	if !ok {
		return NoTokenProvider{}
	}
	return &AnonymousTokenProvider{Realm: realm.Realm, Service: realm.Service, Client: client}
}

// AnonymousTokenProvider requests pull-scoped tokens from a registry's token
// endpoint. Tokens are neither cached nor refreshed.
type AnonymousTokenProvider struct {
	Realm   string
	Service string
	Client  *Client // BaseURL and Auth are ignored; nil uses default timeouts
}

// Scope returns the pull scope requested for repository.
func Scope(repository string) string {
	return fmt.Sprintf("repository:%s:pull", repository)
}

func (p *AnonymousTokenProvider) client() *Client {
	if p.Client != nil {
		return p.Client
	}
	return NewClient("", DefaultTimeouts())
}

// Token requests a token for repository. Any failure is an AuthError.
func (p *AnonymousTokenProvider) Token(ctx context.Context, repository string) (string, error) {
	c := p.client()

	u, err := url.Parse(p.Realm)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("invalid token realm %q: %w", p.Realm, err)}
	}
	q := u.Query()
	q.Set("service", p.Service)
	q.Set("scope", Scope(repository))
	u.RawQuery = q.Encode()

	c.logDebug("Token request",
		"operation", "Token",
		"method", http.MethodGet,
		"repository", repository,
		"realm", p.Realm,
		"service", p.Service,
	)

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &AuthError{Err: err}
	}

	// The token endpoint is called without the session's credentials.
	resp, err := c.doWithRetry(req)
	if err != nil {
		return "", &AuthError{Err: transportError("token", err)}
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &AuthError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var data struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", &AuthError{Status: resp.StatusCode, Err: &ParseError{Operation: "token", Err: err}}
	}

	token := data.Token
	if token == "" {
		token = data.AccessToken
	}
	if token == "" {
		return "", &AuthError{Status: resp.StatusCode, Err: &ParseError{Operation: "token", Err: errors.New("no token in response")}}
	}

	c.logDebug("Token response",
		"operation", "Token",
		"repository", repository,
		"status_code", resp.StatusCode,
	)

	return token, nil
}

// tokenAuth is the Auth of one inspection session. It carries the token
// issued at session start and may re-acquire it once after a 401.
type tokenAuth struct {
	provider   TokenProvider
	repository string

	mu        sync.Mutex
	token     string
	refreshed bool
}

// newTokenAuth acquires the session token. It returns nil Auth when the
// provider issues no token.
func newTokenAuth(ctx context.Context, provider TokenProvider, repository string) (Auth, error) {
	token, err := provider.Token(ctx, repository)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	return &tokenAuth{provider: provider, repository: repository, token: token}, nil
}

func (a *tokenAuth) Apply(req *http.Request) {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	BearerAuth{Token: token}.Apply(req)
}

// Refresh re-acquires the token at most once per session. A request sent
// with an older token than the current one is simply repeated.
func (a *tokenAuth) Refresh(ctx context.Context, req *http.Request) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.Header.Get("Authorization") != "Bearer "+a.token {
		return true, nil
	}
	if a.refreshed {
		return false, nil
	}
	a.refreshed = true

	token, err := a.provider.Token(ctx, a.repository)
	if err != nil {
		return false, err
	}
	if token == "" || token == a.token {
		return false, nil
	}
	a.token = token
	return true, nil
}

var (
	_ TokenProvider = NoTokenProvider{}
	_ TokenProvider = (*AnonymousTokenProvider)(nil)
	_ Refresher     = (*tokenAuth)(nil)
)
