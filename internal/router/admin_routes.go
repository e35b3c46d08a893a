package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-reservation/internal/middleware"
	"github.com/iliyamo/library-reservation/internal/policy"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1, with the
// middleware attached per route as in RegisterMember.
func RegisterAdmin(e *echo.Echo, h Handlers, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1")
	mw := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		limit,
		middleware.RequireRole(policy.RoleAdmin),
	}

	// ---- Books ----
	g.POST("/books", h.Books.Create, mw...)
	g.PUT("/books/:id", h.Books.Update, mw...)
	g.DELETE("/books/:id", h.Books.Delete, mw...)
	g.GET("/books/:id/reservations", h.Books.ListReservations, mw...)

	// ---- Reservations ----
	g.GET("/reservations", h.Reservations.ListAll, mw...)

	// ---- Users and roles ----
	g.GET("/users", h.Users.List, mw...)
	g.GET("/roles", h.Roles.List, mw...)
	g.POST("/users/by-username/:username/roles/:role", h.Roles.Add, mw...)
	g.DELETE("/users/by-username/:username/roles/:role", h.Roles.Remove, mw...)
}
