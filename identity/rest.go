package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/users"
	"golang.org/x/oauth2"
)

// REST endpoints of a Directus-style identity service.
const (
	RouteLogin   = "/auth/login"
	RouteRefresh = "/auth/refresh"
	RouteLogout  = "/auth/logout"
	RouteMe      = "/users/me"
)

const (
	contentTypeJSON = "application/json"
	defaultTimeout  = 30 * time.Second
	maxBodyBytes    = 1 << 20
)

// DefaultBaseURL is used when no service URL is configured.
const DefaultBaseURL = "http://localhost:8055"

var _ Client = (*RESTClient)(nil)

// RESTClient talks to a Directus-style REST identity service. Tokens are
// requested in JSON mode so they come back in the response body.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient sets the transport used for all calls, including the
// bearer-authorized transports built by WithToken.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.httpClient = client
	}
}

// NewRESTClient creates a client for the service at baseURL.
func NewRESTClient(baseURL string, options ...RESTOption) (*RESTClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[NewRESTClient] invalid base URL %q", baseURL)
	}

	c := &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root.
func (c *RESTClient) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Mode     string `json:"mode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Mode         string `json:"mode,omitempty"`
}

// Login calls POST /auth/login.
func (c *RESTClient) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var tr TokenResponse
	err := c.do(ctx, c.httpClient, http.MethodPost, RouteLogin, loginRequest{Email: email, Password: password, Mode: "json"}, &tr)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// Refresh calls POST /auth/refresh.
func (c *RESTClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var tr TokenResponse
	err := c.do(ctx, c.httpClient, http.MethodPost, RouteRefresh, refreshRequest{RefreshToken: refreshToken, Mode: "json"}, &tr)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// Logout calls POST /auth/logout.
func (c *RESTClient) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, RouteLogout, refreshRequest{RefreshToken: refreshToken, Mode: "json"}, nil)
}

// WithToken builds a transport that sends accessToken as a bearer credential.
func (c *RESTClient) WithToken(accessToken string) Authorized {
	base := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout
	return &restAuthorized{rest: c, client: client}
}

type restAuthorized struct {
	rest   *RESTClient
	client *http.Client
}

func (a *restAuthorized) Me(ctx context.Context, fields ...string) (*users.User, error) {
	path := RouteMe
	if len(fields) > 0 {
		path += "?fields=" + url.QueryEscape(strings.Join(fields, ","))
	}
	var u users.User
	if err := a.rest.do(ctx, a.client, http.MethodGet, path, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *restAuthorized) HTTPClient() *http.Client {
	return a.client
}

type errorItem struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []errorItem     `json:"errors"`
}

func (c *RESTClient) do(ctx context.Context, client *http.Client, method, path string, body, out any) error {
	op := "RESTClient " + method + " " + strings.SplitN(path, "?", 2)[0]

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("[%s] encoding request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("[%s] building request: %w", op, err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := client.Do(req)
	if err != nil {
		return unreachable(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return unreachable(op, err)
	}

	var env envelope
	if len(data) > 0 {
		// Non-JSON bodies (proxies, HTML error pages) leave env empty
		_ = json.Unmarshal(data, &env)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(env.Errors) > 0 {
			apiErr.Message = env.Errors[0].Message
			apiErr.Code = env.Errors[0].Extensions.Code
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	// Prefer the {"data": ...} envelope, fall back to a bare document
	payload := data
	if len(env.Data) > 0 && string(env.Data) != "null" {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("[%s] decoding response: %w", op, err)
	}
	return nil
}
