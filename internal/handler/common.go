// Package handler exposes the HTTP API. Handlers parse and validate the
// request shape, hand the caller's principal to the service layer and turn
// apperr kinds into status codes; they hold no business rules.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/middleware"
	"github.com/iliyamo/library-reservation/internal/policy"
)

var errUnauthenticated = errors.New("unauthenticated")

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": message}.
func fail(c echo.Context, err error) error {
	if errors.Is(err, errUnauthenticated) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(statusOf(err), echo.Map{"error": apperr.PublicMessage(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// caller returns the authenticated principal set by the JWT middleware.
func caller(c echo.Context) (policy.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok || p.ID == 0 {
		return policy.Principal{}, errUnauthenticated
	}
	return p, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseDay parses a YYYY-MM-DD body field. Empty input yields nil.
func parseDay(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := booking.ParseDate(raw)
	if err != nil {
		return nil, apperr.Invalid("request.parse", field+" must be YYYY-MM-DD")
	}
	return &d, nil
}
