package guard

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-auth-session/users"
)

type contextKey string

const contextKeyUser contextKey = "guard.user"

// UserFromContext returns the user the middleware let through, if any.
func UserFromContext(ctx context.Context) (*users.User, bool) {
	u, ok := ctx.Value(contextKeyUser).(*users.User)
	return u, ok && u != nil
}

// Middleware enforces g on every request. Redirects use 303, or an
// HX-Redirect header for htmx requests; denials answer 403.
func Middleware(g *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r.Context(), r.URL.RequestURI())
			switch d.Outcome {
			case Redirect:
				redirect(w, r, d.Location)
			case Deny:
				http.Error(w, d.Err.Error(), http.StatusForbidden)
			default:
				ctx := r.Context()
				if u := g.sessions.State().User(); u != nil {
					ctx = context.WithValue(ctx, contextKeyUser, u)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
