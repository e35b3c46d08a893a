package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-reservation/internal/middleware"
	"github.com/iliyamo/library-reservation/internal/policy"
)

// RegisterMember registers the routes any authenticated user with a role
// may call. Ownership is checked by the services.
// Middleware is attached per route so unknown /v1 paths stay 404.
func RegisterMember(e *echo.Echo, h Handlers, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1")
	mw := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		limit,
		middleware.RequireRole(policy.RoleUser, policy.RoleAdmin),
	}

	// ---- Reservations ----
	g.POST("/users/:userId/reservations", h.Reservations.Create, mw...)
	g.GET("/users/:userId/reservations", h.Reservations.ListByUser, mw...)
	g.GET("/reservations/:id", h.Reservations.Get, mw...)
	g.PATCH("/reservations/:id", h.Reservations.Update, mw...)
	g.DELETE("/reservations/:id", h.Reservations.Delete, mw...)

	// ---- Users ----
	g.GET("/users/:userId", h.Users.Get, mw...)
	g.PUT("/users/:userId", h.Users.Update, mw...)
	g.DELETE("/users/:userId", h.Users.Delete, mw...)
}
