package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-session/guard"
	"github.com/jrsteele09/go-auth-session/session"
)

const contentTypeHTML = "text/html; charset=utf-8"

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="redirect" value="{{.Redirect}}">
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	Action   string
	Redirect string // Destination to resume after sign in
	Error    string
	Email    string // Preserve email on error
}

// LoginPageHandler displays the login page. An already signed in user goes
// straight to the requested destination.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		dest := guard.ResumeDestination(query, RouteIndex)

		if s.manager.State().IsAuthenticated() && !s.manager.State().IsTokenExpired() {
			redirectSuccess(w, r, dest)
			return
		}

		data := LoginPageData{
			Action:   RouteAuthLogin,
			Redirect: dest,
			Error:    query.Get("error"),
			Email:    query.Get("email"),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := loginTmpl.Execute(w, data); err != nil {
			s.logger.Err(err).Msg("Failed to render login template")
			http.Error(w, "Failed to render login page", http.StatusInternalServerError)
		}
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := r.FormValue("email")
		password := r.FormValue("password")
		dest := guard.ResumeDestination(r.Form, RouteIndex)

		if email == "" || password == "" {
			s.renderLoginError(w, r, "Email and password are required", email, dest)
			return
		}

		if _, _, err := s.manager.Login(r.Context(), email, password); err != nil {
			s.logger.Err(err).Str("email", email).Msg("Login failed")
			s.renderLoginError(w, r, session.UserMessage(err), email, dest)
			return
		}
		redirectSuccess(w, r, dest)
	}
}

// LogoutHandler ends the session and returns to the login page.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.manager.Logout(r.Context())
		redirectSuccess(w, r, s.loginPath)
	}
}

// renderLoginError redirects to the login page with an error message
func (s *Server) renderLoginError(w http.ResponseWriter, r *http.Request, errorMsg, email, dest string) {
	q := url.Values{}
	q.Set("error", errorMsg)
	if email != "" {
		q.Set("email", email)
	}
	q.Set(guard.RedirectParam, dest)
	redirectSuccess(w, r, s.loginPath+"?"+q.Encode())
}
