// Package identityfake provides an in-memory identity service for tests and
// demos. Passwords are stored as bcrypt hashes and access tokens are HMAC
// signed JWTs, so the fake behaves like a real service from the outside.
package identityfake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/users"
	"golang.org/x/crypto/bcrypt"
)

// DefaultLease is the lease duration (ms) the fake reports, like Directus' 15 minutes.
const DefaultLease int64 = 900000

var _ identity.Client = (*Service)(nil)

type account struct {
	user         users.User
	passwordHash []byte
}

// Service is a fake identity.Client. Knobs are exported fields and must be set
// before concurrent use.
type Service struct {
	// Expires is sent as the "expires" field. nil omits it.
	Expires *int64
	// OmitRefreshToken leaves refresh_token out of login responses.
	OmitRefreshToken bool
	// OmitAccessToken leaves access_token out of login and refresh responses.
	OmitAccessToken bool
	// OmitRefreshOnRenew leaves refresh_token out of refresh responses.
	OmitRefreshOnRenew bool
	// LoginErr, RefreshErr, LogoutErr and MeErr are returned instead of
	// performing the call when set.
	LoginErr   error
	RefreshErr error
	LogoutErr  error
	MeErr      error
	// RefreshHook runs at the start of every Refresh call.
	RefreshHook func(ctx context.Context)

	secret []byte

	mu            sync.Mutex
	accounts      map[string]*account // email -> account
	accessTokens  map[string]string   // access token -> email
	refreshTokens map[string]string   // refresh token -> email
	calls         map[string]int
}

// New creates an empty service.
func New() *Service {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	return &Service{
		Expires:       utils.Ptr(DefaultLease),
		secret:        secret,
		accounts:      make(map[string]*account),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		calls:         make(map[string]int),
	}
}

// AddUser registers an account.
func (s *Service) AddUser(u users.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[u.Email] = &account{user: u, passwordHash: hash}
	return nil
}

// SetRole replaces the role of an existing account.
func (s *Service) SetRole(email string, role *users.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		a.user.Role = role
	}
}

// Calls returns how often the named operation ("login", "refresh", "logout", "me") ran.
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// RevokeAccess invalidates an access token, e.g. to simulate a server-side logout.
func (s *Service) RevokeAccess(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accessTokens, accessToken)
}

// RefreshTokenValid reports whether the refresh token is still accepted.
func (s *Service) RefreshTokenValid(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refreshTokens[refreshToken]
	return ok
}

func (s *Service) Login(_ context.Context, email, password string) (*identity.TokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["login"]++

	if s.LoginErr != nil {
		return nil, s.LoginErr
	}
	a, ok := s.accounts[email]
	if !ok || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		return nil, &identity.APIError{Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "Invalid user credentials."}
	}
	return s.issue(a, !s.OmitRefreshToken)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*identity.TokenResponse, error) {
	if s.RefreshHook != nil {
		s.RefreshHook(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["refresh"]++

	if s.RefreshErr != nil {
		return nil, s.RefreshErr
	}
	email, ok := s.refreshTokens[refreshToken]
	if !ok {
		return nil, &identity.APIError{Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "Invalid user credentials."}
	}
	// Refresh tokens rotate on every use
	delete(s.refreshTokens, refreshToken)
	return s.issue(s.accounts[email], !s.OmitRefreshOnRenew)
}

func (s *Service) Logout(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["logout"]++

	if s.LogoutErr != nil {
		return s.LogoutErr
	}
	if _, ok := s.refreshTokens[refreshToken]; !ok {
		return &identity.APIError{Status: http.StatusBadRequest, Code: "INVALID_PAYLOAD", Message: "Invalid refresh token"}
	}
	delete(s.refreshTokens, refreshToken)
	return nil
}

func (s *Service) WithToken(accessToken string) identity.Authorized {
	return &authorized{service: s, accessToken: accessToken}
}

// issue must be called with s.mu held.
func (s *Service) issue(a *account, withRefresh bool) (*identity.TokenResponse, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   a.user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(utils.ValueOr(s.Expires, DefaultLease)) * time.Millisecond)),
		ID:        randomToken(8),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	s.accessTokens[access] = a.user.Email

	tr := &identity.TokenResponse{Expires: s.Expires}
	if !s.OmitAccessToken {
		tr.AccessToken = utils.Ptr(access)
	}
	if withRefresh {
		refresh := randomToken(32)
		s.refreshTokens[refresh] = a.user.Email
		tr.RefreshToken = utils.Ptr(refresh)
	}
	return tr, nil
}

type authorized struct {
	service     *Service
	accessToken string
}

func (a *authorized) Me(_ context.Context, _ ...string) (*users.User, error) {
	s := a.service
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["me"]++

	if s.MeErr != nil {
		return nil, s.MeErr
	}
	email, ok := s.accessTokens[a.accessToken]
	if !ok {
		return nil, &identity.APIError{Status: http.StatusUnauthorized, Code: "TOKEN_EXPIRED", Message: "Token expired."}
	}
	return s.accounts[email].user.Clone(), nil
}

func (a *authorized) HTTPClient() *http.Client {
	return &http.Client{Transport: bearerTransport{token: a.accessToken}}
}

type bearerTransport struct {
	token string
}

func (t bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(r)
}

// ErrUnavailable simulates a transport failure.
var ErrUnavailable = errors.Join(identity.ErrUnreachable, errors.New("dial tcp 127.0.0.1:8055: connect: connection refused"))

func randomToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
