package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// userID returns the authenticated user's id as a string, or "anon".
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok && p.ID != 0 {
		return strconv.FormatUint(p.ID, 10)
	}
	return "anon"
}
