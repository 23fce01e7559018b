// Package guard decides, per navigation, whether the destination may be
// entered: it redirects unauthenticated users to the login page, renews
// expired sessions on the way through and stops users whose role is
// insufficient.
package guard

import (
	"context"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-session/authz"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedirectParam carries the originally requested destination on the login URL.
const RedirectParam = "redirect"

// Outcome is the verdict for one navigation attempt.
type Outcome int

const (
	// Proceed lets the navigation through.
	Proceed Outcome = iota
	// Redirect sends the user to Decision.Location.
	Redirect
	// Deny stops the navigation for good; retrying cannot succeed without a
	// change of role.
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case Redirect:
		return "redirect"
	case Deny:
		return "deny"
	}
	return "unknown"
}

// Status is the session state the guard ended in.
type Status int

const (
	Unchecked Status = iota
	Fresh
	Stale
	Unauthenticated
)

func (s Status) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Fresh:
		return "authenticated-fresh"
	case Stale:
		return "authenticated-stale"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Decision is the result of Check.
type Decision struct {
	Outcome   Outcome
	Status    Status
	Location  string // login URL with the resume parameter, set for Redirect
	Err       error  // refresh failure for Redirect, authz denial for Deny
	Refreshed bool   // the session was stale and got renewed on the way
}

// Sessions is what the guard needs from the session manager.
type Sessions interface {
	State() session.View
	RefreshOrClear(ctx context.Context) (*session.Tokens, error)
}

var _ Sessions = (*session.Manager)(nil)

// Rule gates every destination under Prefix behind a capability.
type Rule struct {
	Prefix  string
	Require authz.Capability
}

func (r Rule) matches(path string) bool {
	prefix := strings.TrimRight(r.Prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Guard checks navigation attempts against the shared session.
type Guard struct {
	sessions  Sessions
	loginPath string
	exempt    map[string]struct{}
	rules     []Rule
	logger    zerolog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLoginPath sets the login page. It is always exempt.
func WithLoginPath(path string) Option {
	return func(g *Guard) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithExempt adds destinations that bypass every check.
func WithExempt(paths ...string) Option {
	return func(g *Guard) {
		for _, p := range paths {
			g.exempt[p] = struct{}{}
		}
	}
}

// WithRules adds role-gated prefixes. Every matching rule must hold.
func WithRules(rules ...Rule) Option {
	return func(g *Guard) {
		g.rules = append(g.rules, rules...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// New creates a Guard.
func New(sessions Sessions, options ...Option) *Guard {
	g := &Guard{
		sessions:  sessions,
		loginPath: session.DefaultLoginPath,
		exempt:    make(map[string]struct{}),
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(g)
	}
	g.exempt[g.loginPath] = struct{}{}
	g.logger = g.logger.With().Str("component", "guard").Logger()
	return g
}

// LoginPath returns the login page path.
func (g *Guard) LoginPath() string {
	return g.loginPath
}

// Check runs the guard for one navigation to destination, a path with an
// optional query string.
func (g *Guard) Check(ctx context.Context, destination string) Decision {
	path := pathOf(destination)
	if _, ok := g.exempt[path]; ok {
		return Decision{Outcome: Proceed, Status: Unchecked}
	}

	view := g.sessions.State()
	if !view.IsAuthenticated() {
		return Decision{Outcome: Redirect, Status: Unauthenticated, Location: g.LoginURL(destination)}
	}

	refreshed := false
	if view.IsTokenExpired() {
		g.logger.Debug().Stringer("status", Stale).Str("destination", destination).Msg("Refreshing session")
		if _, err := g.sessions.RefreshOrClear(ctx); err != nil {
			g.logger.Err(err).Str("destination", destination).Msg("Session refresh failed, redirecting to login")
			return Decision{Outcome: Redirect, Status: Unauthenticated, Location: g.LoginURL(destination), Err: err}
		}
		refreshed = true
	}

	evaluator := authz.NewEvaluator(view)
	for _, rule := range g.rules {
		if !rule.matches(path) {
			continue
		}
		if err := evaluator.Require(rule.Require); err != nil {
			g.logger.Warn().Str("destination", destination).Str("capability", string(rule.Require)).Msg("Navigation denied")
			return Decision{Outcome: Deny, Status: Fresh, Err: err, Refreshed: refreshed}
		}
	}
	return Decision{Outcome: Proceed, Status: Fresh, Refreshed: refreshed}
}

// LoginURL returns the login page URL that resumes at destination.
func (g *Guard) LoginURL(destination string) string {
	return g.loginPath + "?" + url.Values{RedirectParam: {destination}}.Encode()
}

// ResumeDestination extracts a safe post-login destination from the login
// URL query. Only local absolute paths are accepted.
func ResumeDestination(query url.Values, fallback string) string {
	dest := query.Get(RedirectParam)
	if dest == "" || !strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "//") || strings.HasPrefix(dest, "/\\") {
		return fallback
	}
	return dest
}

func pathOf(destination string) string {
	if i := strings.IndexAny(destination, "?#"); i >= 0 {
		destination = destination[:i]
	}
	if destination == "" {
		return "/"
	}
	return destination
}
