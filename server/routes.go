package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-auth-session/authz"
	"github.com/jrsteele09/go-auth-session/guard"
)

// Rules gates the role-restricted areas of the front end.
var Rules = []guard.Rule{
	{Prefix: "/admin", Require: authz.CapabilityAdmin},
	{Prefix: RouteOperations, Require: authz.CapabilityOperator},
	{Prefix: RouteProducts + "/edit", Require: authz.CapabilityEdit},
	{Prefix: RouteProducts + "/delete", Require: authz.CapabilityDelete},
}

func (s *Server) initRoutes() {
	s.register(s.router, http.MethodGet, RouteHealth, s.HealthHandler())

	// LOGIN
	s.register(s.router, http.MethodGet, s.loginPath, s.LoginPageHandler())
	s.register(s.router, http.MethodPost, RouteAuthLogin, s.LoginSubmissionHandler())
	s.register(s.router, http.MethodPost, RouteAuthLogout, s.LogoutHandler())

	s.router.Group(func(r chi.Router) {
		r.Use(guard.Middleware(s.guard))

		s.register(r, http.MethodGet, RouteIndex, s.IndexHandler())
		s.register(r, http.MethodGet, RouteAPIMe, s.MeHandler())
		s.register(r, http.MethodGet, RouteAPISession, s.SessionHandler())

		s.register(r, http.MethodGet, RouteAdminUsers, s.AreaHandler("User administration"))
		s.register(r, http.MethodGet, RouteOperations, s.AreaHandler("Operations"))
		s.register(r, http.MethodGet, RouteProducts, s.AreaHandler("Products"))
		s.register(r, http.MethodGet, RouteProducts+"/edit/{id}", s.AreaHandler("Edit product"))
		s.register(r, http.MethodPost, RouteProducts+"/delete/{id}", s.AreaHandler("Delete product"))
	})
}
