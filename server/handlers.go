package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-session/authz"
	"github.com/jrsteele09/go-auth-session/guard"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/users"
)

const contentTypeJSON = "application/json"

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := guard.UserFromContext(r.Context())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "Signed in as %s (%s)\n", u.FullName(), roleLabel(u))
	}
}

// AreaHandler serves a placeholder page for a guarded area.
func (s *Server) AreaHandler(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, title)
	}
}

type meResponse struct {
	User         *users.User `json:"user"`
	Capabilities []string    `json:"capabilities"`
}

// MeHandler re-fetches the profile from the identity service and reports
// what the user may do with it.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.manager.CurrentUser(r.Context())
		if err != nil {
			s.logger.Err(err).Msg("Failed to fetch current user")
			writeJSON(w, statusFor(err), map[string]string{"error": session.UserMessage(err)})
			return
		}

		resp := meResponse{User: u, Capabilities: []string{}}
		for _, c := range []authz.Capability{authz.CapabilityAdmin, authz.CapabilityOperator, authz.CapabilityViewer, authz.CapabilityEdit, authz.CapabilityDelete} {
			if authz.Allows(u, c) {
				resp.Capabilities = append(resp.Capabilities, string(c))
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type sessionResponse struct {
	Email     string             `json:"email"`
	Role      string             `json:"role,omitempty"`
	ExpiresAt time.Time          `json:"expires_at"`
	Expired   bool               `json:"expired"`
	LoginInfo *session.LoginInfo `json:"login_info,omitempty"`
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := s.manager.State()
		snap := view.Snapshot()
		if !snap.Authenticated {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
			return
		}

		resp := sessionResponse{
			Email:     snap.User.Email,
			Role:      snap.User.RoleName(),
			ExpiresAt: snap.Tokens.ExpiresAt().UTC(),
			Expired:   view.IsTokenExpired(),
		}
		if info, ok := s.manager.LoginInfo(r.Context()); ok {
			resp.LoginInfo = info
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statusFor(err error) int {
	switch session.Classify(err).Kind {
	case session.ErrInvalidCredentials, session.ErrNoAccessToken:
		return http.StatusUnauthorized
	case session.ErrAccessDenied:
		return http.StatusForbidden
	case session.ErrNetworkUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func roleLabel(u *users.User) string {
	if name := u.RoleName(); name != "" {
		return name
	}
	return "no role"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
