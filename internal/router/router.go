// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/config"
	"github.com/iliyamo/library-reservation/internal/handler"
	"github.com/iliyamo/library-reservation/internal/middleware"
)

// Handlers groups every handler the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Books        *handler.BookHandler
	Reservations *handler.ReservationHandler
	Users        *handler.UserHandler
	Roles        *handler.RoleHandler
	DB           handler.Pinger
}

// Options carries what the middleware needs. Redis may be nil.
type Options struct {
	JWTSecret string
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Log       *zap.Logger
}

// Register mounts all routes on e.
func Register(e *echo.Echo, h Handlers, opt Options) {
	RegisterRoutes(e, h.DB)
	limit := middleware.NewTokenBucket(opt.RateLimit, opt.Redis, opt.Log)
	RegisterAuth(e, h.Auth, opt.JWTSecret, limit)
	RegisterPublic(e, h.Books, middleware.NewRedisCache(opt.Cache, opt.Redis, opt.Log), limit)
	RegisterMember(e, h, opt.JWTSecret, limit)
	RegisterAdmin(e, h, opt.JWTSecret, limit)
}

// RegisterRoutes registers the health endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers signup, login and token rotation under /v1/auth.
// Logout accepts either a refresh token in the body or a bearer token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, middleware.OptionalJWT(jwtSecret))

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), limit)
}

// RegisterPublic registers the unauthenticated catalogue. Responses are
// cached in Redis; availability is cached at the data level and
// invalidated on every write, so it bypasses the response cache.
func RegisterPublic(e *echo.Echo, b *handler.BookHandler, cache, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/books", limit)
	g.GET("", b.List, cache)
	g.GET("/:id", b.Get, cache)
	g.GET("/:id/availability", b.Availability)
}
