package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-session/users"
)

// ErrUnreachable wraps transport-level failures: the identity service could
// not be reached or the connection broke before a response arrived.
var ErrUnreachable = errors.New("identity service unreachable")

// TokenResponse is the raw token exchange result. Fields are pointers because
// the service may omit any of them; normalization is the caller's job.
type TokenResponse struct {
	AccessToken  *string `json:"access_token,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`
	// Expires is either a lease duration or an absolute instant, both in
	// milliseconds. Directus-style services send a duration.
	Expires *int64 `json:"expires,omitempty"`
}

// Client is the contract consumed from the remote identity service.
type Client interface {
	// Login exchanges credentials for tokens.
	Login(ctx context.Context, email, password string) (*TokenResponse, error)
	// Refresh exchanges a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	// Logout revokes the refresh token.
	Logout(ctx context.Context, refreshToken string) error
	// WithToken returns a transport authorized with the bearer access token.
	WithToken(accessToken string) Authorized
}

// Authorized is a transport bound to one access token.
type Authorized interface {
	// Me fetches the profile of the token's owner restricted to fields.
	Me(ctx context.Context, fields ...string) (*users.User, error)
	// HTTPClient returns an http.Client that adds the bearer token to every
	// request, for data-fetching collaborators.
	HTTPClient() *http.Client
}

// APIError is an error reported by the identity service itself.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // Service error code, e.g. "INVALID_CREDENTIALS"
	Message string // Service supplied message
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("identity service returned status %d", e.Status)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// ErrorCode returns the service error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func unreachable(op string, err error) error {
	return fmt.Errorf("[%s] %w: %w", op, ErrUnreachable, err)
}
