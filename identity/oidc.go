package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-session/users"
	"golang.org/x/oauth2"
)

var _ Client = (*OIDCClient)(nil)

// OIDCClient uses an OpenID Connect provider as the identity service: the
// resource owner password grant for login, the refresh_token grant for
// renewal, the UserInfo endpoint for the profile and RFC 7009 revocation for
// logout.
type OIDCClient struct {
	provider         *oidc.Provider
	config           *oauth2.Config
	httpClient       *http.Client
	revocationURL    string
	adminRoleClaimed string
}

// OIDCOption configures an OIDCClient.
type OIDCOption func(*OIDCClient)

// WithOIDCHTTPClient sets the transport for discovery, token and userinfo calls.
func WithOIDCHTTPClient(client *http.Client) OIDCOption {
	return func(c *OIDCClient) {
		c.httpClient = client
	}
}

// WithScopes replaces the requested scopes.
func WithScopes(scopes ...string) OIDCOption {
	return func(c *OIDCClient) {
		c.config.Scopes = scopes
	}
}

// WithAdminRole names the role that carries administrative access when the
// provider only returns a flat list of role names.
func WithAdminRole(name string) OIDCOption {
	return func(c *OIDCClient) {
		c.adminRoleClaimed = name
	}
}

// NewOIDCClient discovers the provider at issuer.
func NewOIDCClient(ctx context.Context, issuer, clientID, clientSecret string, options ...OIDCOption) (*OIDCClient, error) {
	c := &OIDCClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
		},
	}
	for _, opt := range options {
		opt(c)
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), issuer)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, unreachable("NewOIDCClient", err)
		}
		return nil, fmt.Errorf("[NewOIDCClient] discovering %s: %w", issuer, err)
	}
	c.provider = provider
	c.config.Endpoint = provider.Endpoint()

	var discovery struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return nil, fmt.Errorf("[NewOIDCClient] reading discovery document: %w", err)
	}
	c.revocationURL = discovery.RevocationEndpoint

	return c, nil
}

func (c *OIDCClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Login performs the password grant.
func (c *OIDCClient) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	tok, err := c.config.PasswordCredentialsToken(c.clientContext(ctx), email, password)
	if err != nil {
		return nil, oauthError("OIDCClient.Login", err)
	}
	return tokenResponse(tok), nil
}

// Refresh performs the refresh_token grant.
func (c *OIDCClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	// An empty access token forces the source to hit the token endpoint
	tok, err := c.config.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, oauthError("OIDCClient.Refresh", err)
	}
	return tokenResponse(tok), nil
}

// Logout revokes the refresh token. Providers that advertise no revocation
// endpoint have nothing to revoke, so this is a no-op for them.
func (c *OIDCClient) Logout(ctx context.Context, refreshToken string) error {
	if c.revocationURL == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("token_type_hint", "refresh_token")
	form.Set("client_id", c.config.ClientID)
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("[OIDCClient.Logout] building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable("OIDCClient.Logout", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{Status: resp.StatusCode, Message: "token revocation failed"}
	}
	return nil
}

// WithToken returns a transport authorized with accessToken.
func (c *OIDCClient) WithToken(accessToken string) Authorized {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return &oidcAuthorized{
		oidc:   c,
		source: source,
		client: oauth2.NewClient(c.clientContext(context.Background()), source),
	}
}

type oidcAuthorized struct {
	oidc   *OIDCClient
	source oauth2.TokenSource
	client *http.Client
}

// userInfoClaims covers both a Directus-like role object and the flat role
// list most providers emit.
type userInfoClaims struct {
	Subject    string      `json:"sub"`
	Email      string      `json:"email"`
	GivenName  string      `json:"given_name"`
	FamilyName string      `json:"family_name"`
	Role       *users.Role `json:"role"`
	Roles      []string    `json:"roles"`
}

// Me reads the UserInfo endpoint. fields is ignored: UserInfo has no
// projection and returns what the granted scopes allow.
func (a *oidcAuthorized) Me(ctx context.Context, _ ...string) (*users.User, error) {
	info, err := a.oidc.provider.UserInfo(oidc.ClientContext(ctx, a.oidc.httpClient), a.source)
	if err != nil {
		return nil, userInfoError(err)
	}

	var claims userInfoClaims
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("[OIDCClient.Me] decoding claims: %w", err)
	}

	u := &users.User{
		ID:        claims.Subject,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		Role:      claims.Role,
	}
	if u.Email == "" {
		u.Email = info.Email
	}
	if u.Role == nil && len(claims.Roles) > 0 {
		name := claims.Roles[0]
		u.Role = &users.Role{ID: name, Name: name}
		if a.oidc.adminRoleClaimed != "" {
			for _, r := range claims.Roles {
				if r == a.oidc.adminRoleClaimed {
					admin := true
					u.Role.AdminAccess = &admin
					break
				}
			}
		}
	}
	return u, nil
}

func (a *oidcAuthorized) HTTPClient() *http.Client {
	return a.client
}

func tokenResponse(tok *oauth2.Token) *TokenResponse {
	tr := &TokenResponse{}
	if tok.AccessToken != "" {
		tr.AccessToken = &tok.AccessToken
	}
	if tok.RefreshToken != "" {
		tr.RefreshToken = &tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		expires := tok.Expiry.UnixMilli()
		tr.Expires = &expires
	}
	return tr
}

func oauthError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		apiErr := &APIError{
			Code:    retrieveErr.ErrorCode,
			Message: retrieveErr.ErrorDescription,
		}
		if retrieveErr.Response != nil {
			apiErr.Status = retrieveErr.Response.StatusCode
		}
		if apiErr.Message == "" {
			apiErr.Message = apiErr.Code
		}
		return apiErr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return unreachable(op, err)
	}
	return fmt.Errorf("[%s] %w", op, err)
}

// userInfoError maps go-oidc's "401 Unauthorized: body" style errors.
func userInfoError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return unreachable("OIDCClient.Me", err)
	}
	msg := err.Error()
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		if strings.HasPrefix(msg, fmt.Sprintf("%d ", status)) {
			return &APIError{Status: status, Message: msg}
		}
	}
	return fmt.Errorf("[OIDCClient.Me] %w", err)
}
