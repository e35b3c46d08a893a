package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/utils"
)

// principalKey is the echo context key holding the authenticated
// policy.Principal.
const principalKey = "principal"

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the caller as a policy.Principal in the context. Handlers read
// it back with PrincipalFrom.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			p, err := parsePrincipal(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// OptionalJWT stores the principal when a valid Bearer token is present
// and lets the request through unauthenticated otherwise.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, ok := bearer(c); ok {
				if p, err := parsePrincipal(secret, raw); err == nil {
					c.Set(principalKey, p)
				}
			}
			return next(c)
		}
	}
}

// PrincipalFrom returns the caller stored by JWTAuth or OptionalJWT.
func PrincipalFrom(c echo.Context) (policy.Principal, bool) {
	p, ok := c.Get(principalKey).(policy.Principal)
	return p, ok
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

func parsePrincipal(secret, raw string) (policy.Principal, error) {
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return policy.Principal{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return policy.Principal{}, err
	}
	return policy.NewPrincipal(id, claims.Roles...), nil
}
