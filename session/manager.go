package session

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLease applies when the identity service reports no expiry.
	DefaultLease = 15 * time.Minute
	// DefaultLoginPath is where Logout navigates to.
	DefaultLoginPath = "/login"
	// DefaultUserAgent is recorded in the login device descriptor.
	DefaultUserAgent = "go-auth-session"

	// durationThresholdMs separates lease durations from absolute instants:
	// anything smaller than one year in milliseconds is a duration.
	durationThresholdMs int64 = 31536000000
)

// Navigator receives navigation requests, e.g. the redirect to the login
// page after logout.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

// Manager performs credential exchange against the identity service and is
// the only writer of its State. One Manager is shared by every consumer of
// the session.
type Manager struct {
	client       identity.Client
	store        *store.Store
	state        *State
	nowTime      func() time.Time
	logger       zerolog.Logger
	navigator    Navigator
	defaultLease time.Duration
	loginPath    string
	userAgent    string

	refreshGroup singleflight.Group
	metrics      metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithNowTime overrides the clock.
func WithNowTime(nowTime func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowTime
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNavigator sets the receiver of navigation requests.
func WithNavigator(n Navigator) Option {
	return func(m *Manager) {
		m.navigator = n
	}
}

// WithDefaultLease overrides the lease used when the service reports no expiry.
func WithDefaultLease(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultLease = d
		}
	}
}

// WithLoginPath overrides the navigation target after logout.
func WithLoginPath(path string) Option {
	return func(m *Manager) {
		if path != "" {
			m.loginPath = path
		}
	}
}

// WithUserAgent sets the user agent recorded in the login info.
func WithUserAgent(ua string) Option {
	return func(m *Manager) {
		m.userAgent = ua
	}
}

// WithStore sets the persistent store. Without it nothing is persisted.
func WithStore(st *store.Store) Option {
	return func(m *Manager) {
		m.store = st
	}
}

// NewManager creates a Manager with an empty session. Call LoadPersisted to
// rehydrate a previous one.
func NewManager(client identity.Client, options ...Option) *Manager {
	m := &Manager{
		client:       client,
		nowTime:      time.Now,
		logger:       log.Logger,
		defaultLease: DefaultLease,
		loginPath:    DefaultLoginPath,
		userAgent:    DefaultUserAgent,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.store == nil {
		m.store = store.New(store.Unavailable(), store.WithLogger(m.logger))
	}
	m.logger = m.logger.With().Str("component", "session").Logger()
	m.state = newState(m.store, m.nowTime)
	return m
}

// State returns the read-only view of the session.
func (m *Manager) State() View {
	return m.state
}

// LoadPersisted rehydrates the session from the store. It reports whether a
// complete record was found.
func (m *Manager) LoadPersisted(ctx context.Context) bool {
	ok := m.state.load(ctx)
	if ok {
		m.logger.Debug().Str("email", m.state.User().Email).Msg("Session restored")
	}
	return ok
}

// Clear drops the session and its persisted record without contacting the
// identity service.
func (m *Manager) Clear(ctx context.Context) {
	m.state.clear(ctx)
}

// Login exchanges credentials for tokens, fetches the profile and commits
// both. On failure the session is cleared and the returned *Error carries a
// message fit for display.
func (m *Manager) Login(ctx context.Context, email, password string) (*users.User, *Tokens, error) {
	defer m.state.beginLoading()()

	u, t, err := m.login(ctx, email, password)
	if err != nil {
		m.state.clear(ctx)
		m.metrics.loginFailure.Add(1)
		classified := Classify(err)
		m.logger.Err(err).Str("email", email).Str("kind", classified.Kind.Error()).Msg("Login failed")
		return nil, nil, classified
	}

	m.state.commit(ctx, u, t, newLoginInfo(u, m.userAgent, m.nowTime()))
	m.metrics.loginSuccess.Add(1)
	m.logger.Info().Str("email", u.Email).Str("role", u.RoleName()).Time("expires", t.ExpiresAt()).Msg("Logged in")
	return u.Clone(), copyTokens(t), nil
}

func (m *Manager) login(ctx context.Context, email, password string) (*users.User, *Tokens, error) {
	tr, err := m.client.Login(ctx, email, password)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Manager.Login] exchanging credentials")
	}
	if tr == nil || utils.Value(tr.AccessToken) == "" {
		return nil, nil, newError(ErrInvalidResponse, "Invalid authentication response - missing access token")
	}

	t := &Tokens{
		AccessToken: *tr.AccessToken,
		// Some services issue no refresh token; the session works without one
		RefreshToken: utils.Value(tr.RefreshToken),
		Expires:      m.normalizeExpiry(tr.Expires),
	}

	u, err := m.client.WithToken(t.AccessToken).Me(ctx, users.ProfileFields...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Manager.Login] fetching profile")
	}
	if u == nil {
		return nil, nil, newError(ErrInvalidResponse, "Invalid authentication response - missing user")
	}
	return u, t, nil
}

// Logout revokes the refresh token when there is one, clears the session and
// navigates to the login page. Revocation failures are logged only; the local
// session is always cleared.
func (m *Manager) Logout(ctx context.Context) {
	done := m.state.beginLoading()

	_, t, _ := m.state.read()
	if t != nil && t.RefreshToken != "" {
		if err := m.client.Logout(ctx, t.RefreshToken); err != nil {
			m.logger.Err(err).Msg("Failed to revoke refresh token")
		}
	}
	m.state.clear(ctx)
	m.metrics.logout.Add(1)
	done()

	m.logger.Info().Msg("Logged out")
	if m.navigator != nil {
		m.navigator.Navigate(ctx, m.loginPath)
	}
}

// Refresh renews the token pair with the stored refresh token. Without one it
// fails with ErrNoRefreshToken and leaves the session untouched. Any other
// failure clears the session. Concurrent callers share one exchange, which
// runs to completion even when the caller that started it goes away; a
// caller whose ctx ends first gets ctx's error.
func (m *Manager) Refresh(ctx context.Context) (*Tokens, error) {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "[Manager.Refresh] waiting for renewal")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyTokens(res.Val.(*Tokens)), nil
	}
}

// RefreshOrClear is Refresh for callers that cannot continue without a fresh
// session. A failure clears the session it was attempted for, unless ctx was
// canceled or another session has replaced it in the meantime.
func (m *Manager) RefreshOrClear(ctx context.Context) (*Tokens, error) {
	_, _, gen := m.state.read()
	t, err := m.Refresh(ctx)
	if err != nil && ctx.Err() == nil {
		m.state.clearIf(ctx, gen)
	}
	return t, err
}

func (m *Manager) refresh(ctx context.Context) (*Tokens, error) {
	_, current, gen := m.state.read()
	if current == nil || current.RefreshToken == "" {
		return nil, newError(ErrNoRefreshToken, "No refresh token available")
	}

	t, err := m.renew(ctx, current.RefreshToken)
	if err != nil {
		m.state.clearIf(ctx, gen)
		m.metrics.refreshFailure.Add(1)
		m.logger.Error().AnErr("cause", err.Err).Str("kind", err.Kind.Error()).Msg("Token refresh failed")
		return nil, err
	}

	if !m.state.commitTokens(ctx, gen, t) {
		// The session was cleared or replaced while the exchange was in flight
		m.metrics.refreshFailure.Add(1)
		return nil, newError(ErrRefreshFailed, "Token refresh failed: session changed during refresh")
	}
	m.metrics.refreshSuccess.Add(1)
	m.logger.Debug().Time("expires", t.ExpiresAt()).Msg("Tokens refreshed")
	return t, nil
}

func (m *Manager) renew(ctx context.Context, refreshToken string) (*Tokens, *Error) {
	tr, err := m.client.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, refreshError(errors.Wrap(err, "[Manager.Refresh] exchanging refresh token"))
	}
	// Unlike login, renewal must return both tokens
	if tr == nil || utils.Value(tr.AccessToken) == "" || utils.Value(tr.RefreshToken) == "" {
		return nil, newError(ErrRefreshFailed, "Token refresh failed: Missing tokens")
	}
	return &Tokens{
		AccessToken:  *tr.AccessToken,
		RefreshToken: *tr.RefreshToken,
		Expires:      m.normalizeExpiry(tr.Expires),
	}, nil
}

// CurrentUser re-fetches the profile with the current access token and
// replaces the stored user. Tokens are left as they are.
func (m *Manager) CurrentUser(ctx context.Context) (*users.User, error) {
	_, t, gen := m.state.read()
	if t == nil || t.AccessToken == "" {
		return nil, newError(ErrNoAccessToken, "No access token available")
	}

	u, err := m.client.WithToken(t.AccessToken).Me(ctx, users.ProfileFields...)
	if err == nil && u == nil {
		err = newError(ErrInvalidResponse, "Invalid profile response - missing user")
	}
	if err != nil {
		m.state.clearIf(ctx, gen)
		classified := Classify(errors.Wrap(err, "[Manager.CurrentUser] fetching profile"))
		m.logger.Err(err).Str("kind", classified.Kind.Error()).Msg("Profile fetch failed")
		return nil, classified
	}

	if !m.state.commitUser(ctx, gen, u) {
		return nil, newError(ErrUnknown, "Session changed while fetching the profile")
	}
	return u.Clone(), nil
}

// AuthorizedClient returns an http.Client that sends the current access token,
// for collaborators that fetch data on behalf of the user.
func (m *Manager) AuthorizedClient() (*http.Client, error) {
	_, t, _ := m.state.read()
	if t == nil || t.AccessToken == "" {
		return nil, newError(ErrNoAccessToken, "No access token available")
	}
	return m.client.WithToken(t.AccessToken).HTTPClient(), nil
}

// LoginInfo returns the persisted login envelope.
func (m *Manager) LoginInfo(ctx context.Context) (*LoginInfo, bool) {
	var info LoginInfo
	if !m.store.Get(ctx, KeyLoginInfo, &info) {
		return nil, false
	}
	return &info, true
}

// LoginTime returns the persisted login timestamp.
func (m *Manager) LoginTime(ctx context.Context) (time.Time, bool) {
	var raw string
	if !m.store.Get(ctx, KeyLoginTime, &raw) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		m.logger.Err(err).Str("value", raw).Msg("Invalid login time")
		return time.Time{}, false
	}
	return t, true
}

// normalizeExpiry turns the reported expiry into an absolute epoch-ms instant.
func (m *Manager) normalizeExpiry(expires *int64) int64 {
	now := m.nowTime()
	e := utils.Value(expires)
	switch {
	case e <= 0:
		return now.Add(m.defaultLease).UnixMilli()
	case e < durationThresholdMs:
		return now.UnixMilli() + e
	}
	return e
}
