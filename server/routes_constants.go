package server

// Route path constants
const (
	RouteIndex      = "/"
	RouteHealth     = "/health"
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"

	RouteAPIMe      = "/api/me"
	RouteAPISession = "/api/session"

	RouteAdminUsers = "/admin/users"
	RouteOperations = "/operations"
	RouteProducts   = "/products"
)
