package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-auth-session/guard"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	router    *chi.Mux
	routes    []string
	loginPath string
	manager   *session.Manager
	guard     *guard.Guard
	logger    zerolog.Logger
}

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New wires the session manager and its guard into an HTTP front end. Every
// route outside the login flow runs behind the guard.
func New(manager *session.Manager, g *guard.Guard, options ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		loginPath: g.LoginPath(),
		manager:   manager,
		guard:     g,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "server").Logger()

	s.router.Use(chimw.CleanPath)
	s.router.Use(s.RecoverMiddleware)
	s.router.Use(s.LoggingMiddleware)
	s.router.Use(s.FrameSecurityMiddleware)

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) register(r chi.Router, method, pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+pattern)
	r.Method(method, pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		s.logRoute(parts[0], parts[1])
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
