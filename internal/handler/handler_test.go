package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/middleware"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/service"
	"github.com/iliyamo/library-reservation/internal/utils"
)

const secret = "handler-secret"

// stubReservations records the last call and answers with err or res.
type stubReservations struct {
	ReservationAPI

	err     error
	res     *model.Reservation
	ranges  []model.DateRange
	gotP    policy.Principal
	gotOwn  uint64
	gotBook uint64
	gotFrom time.Time
	gotTo   time.Time
	patch   service.DatePatch
}

func (s *stubReservations) Create(_ context.Context, p policy.Principal, ownerID, bookID uint64, start, end time.Time) (*model.Reservation, error) {
	s.gotP, s.gotOwn, s.gotBook, s.gotFrom, s.gotTo = p, ownerID, bookID, start, end
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func (s *stubReservations) Update(_ context.Context, p policy.Principal, _ uint64, patch service.DatePatch) (*model.Reservation, error) {
	s.gotP, s.patch = p, patch
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func (s *stubReservations) Delete(_ context.Context, p policy.Principal, _ uint64) error {
	s.gotP = p
	return s.err
}

func (s *stubReservations) PublicAvailability(context.Context, uint64) ([]model.DateRange, error) {
	return s.ranges, s.err
}

type stubAuth struct {
	AuthAPI
	err       error
	session   *service.Session
	logoutUID uint64
	logoutRaw string
}

func (s *stubAuth) Login(context.Context, string, string) (*service.Session, error) {
	return s.session, s.err
}

func (s *stubAuth) Logout(_ context.Context, uid uint64, raw string) error {
	s.logoutUID, s.logoutRaw = uid, raw
	return s.err
}

func bearer(t *testing.T, id uint64, roles ...string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, roles, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func call(e *echo.Echo, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func reservationServer(stub *stubReservations) *echo.Echo {
	h := NewReservationHandler(stub)
	e := echo.New()
	g := e.Group("/v1", middleware.JWTAuth(secret))
	g.POST("/users/:userId/reservations", h.Create)
	g.PATCH("/reservations/:id", h.Update)
	g.DELETE("/reservations/:id", h.Delete)
	return e
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("op", "x"), http.StatusNotFound},
		{apperr.Forbidden("op", "x"), http.StatusForbidden},
		{apperr.Conflict("op", "x"), http.StatusConflict},
		{apperr.Invalid("op", "x"), http.StatusBadRequest},
		{apperr.Unavailable("op", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{apperr.Internal("op", errors.New("x")), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), "%v", tt.err)
	}
}

func TestCreateReservation(t *testing.T) {
	stub := &stubReservations{res: &model.Reservation{
		ID: 9, UserID: 2, BookID: 4,
		StartDate: time.Date(2024, 8, 11, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC),
	}}
	e := reservationServer(stub)

	rec := call(e, http.MethodPost, "/v1/users/2/reservations", bearer(t, 2, "USER"),
		`{"book_id":4,"start_date":"2024-08-11","end_date":"2024-08-15"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"start_date":"2024-08-11"`)
	assert.Contains(t, rec.Body.String(), `"end_date":"2024-08-15"`)
	assert.Equal(t, uint64(2), stub.gotP.ID)
	assert.Equal(t, []string{policy.RoleUser}, stub.gotP.Roles)
	assert.Equal(t, uint64(2), stub.gotOwn)
	assert.Equal(t, uint64(4), stub.gotBook)
	assert.Equal(t, "2024-08-11", stub.gotFrom.Format(booking.DateLayout))
}

func TestCreateReservation_BadInput(t *testing.T) {
	e := reservationServer(&stubReservations{})
	auth := bearer(t, 2, "USER")

	tests := []struct {
		name, path, body, msg string
	}{
		{"bad user id", "/v1/users/abc/reservations", `{"book_id":1,"start_date":"2024-08-01","end_date":"2024-08-02"}`, "invalid user id"},
		{"missing book", "/v1/users/2/reservations", `{"start_date":"2024-08-01","end_date":"2024-08-02"}`, "book_id required"},
		{"bad date", "/v1/users/2/reservations", `{"book_id":1,"start_date":"08/01/2024","end_date":"2024-08-02"}`, "start_date must be YYYY-MM-DD"},
		{"missing end", "/v1/users/2/reservations", `{"book_id":1,"start_date":"2024-08-01"}`, "start_date and end_date required"},
		{"bad json", "/v1/users/2/reservations", `{`, "invalid body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(e, http.MethodPost, tt.path, auth, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.msg)
		})
	}
}

func TestCreateReservation_ServiceErrors(t *testing.T) {
	body := `{"book_id":1,"start_date":"2024-08-10","end_date":"2024-08-15"}`
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{apperr.Conflict("reservation.create", "book is already reserved for some of these dates"), http.StatusConflict, "already reserved"},
		{apperr.Forbidden("reservation.create", "not resource owner"), http.StatusForbidden, "not resource owner"},
		{apperr.Internal("reservation.create", errors.New("dsn leaked")), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		e := reservationServer(&stubReservations{err: tt.err})
		rec := call(e, http.MethodPost, "/v1/users/3/reservations", bearer(t, 2, "USER"), body)
		assert.Equal(t, tt.code, rec.Code)
		assert.Contains(t, rec.Body.String(), tt.msg)
		assert.NotContains(t, rec.Body.String(), "dsn leaked")
	}
}

func TestUpdateReservation_OptionalDates(t *testing.T) {
	stub := &stubReservations{res: &model.Reservation{ID: 9}}
	e := reservationServer(stub)

	rec := call(e, http.MethodPatch, "/v1/reservations/9", bearer(t, 2, "USER"), `{"end_date":"2024-08-20"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, stub.patch.Start)
	require.NotNil(t, stub.patch.End)
	assert.Equal(t, "2024-08-20", stub.patch.End.Format(booking.DateLayout))
}

func TestDeleteReservation(t *testing.T) {
	stub := &stubReservations{}
	e := reservationServer(stub)

	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodDelete, "/v1/reservations/9", "", "").Code)
	assert.Equal(t, http.StatusNoContent, call(e, http.MethodDelete, "/v1/reservations/9", bearer(t, 2, "USER"), "").Code)

	stub.err = apperr.NotFound("reservation.get", "reservation not found")
	assert.Equal(t, http.StatusNotFound, call(e, http.MethodDelete, "/v1/reservations/9", bearer(t, 2, "USER"), "").Code)
}

func TestAvailability(t *testing.T) {
	stub := &stubReservations{ranges: []model.DateRange{{StartDate: "2024-08-01", EndDate: "2024-08-10"}}}
	e := echo.New()
	e.GET("/v1/books/:id/availability", NewBookHandler(nil, stub).Availability)

	rec := call(e, http.MethodGet, "/v1/books/4/availability", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"book_id":4,"reserved":[{"start_date":"2024-08-01","end_date":"2024-08-10"}]}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "user")

	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodGet, "/v1/books/0/availability", "", "").Code)
}

func TestLogin_InvalidCredentialsIs401(t *testing.T) {
	auth := &stubAuth{err: apperr.Forbidden("user.authenticate", "invalid credentials")}
	e := echo.New()
	e.POST("/v1/auth/login", NewAuthHandler(auth, nil).Login)

	rec := call(e, http.MethodPost, "/v1/auth/login", "", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")

	rec = call(e, http.MethodPost, "/v1/auth/login", "", `{"username":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_ReturnsSession(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	auth := &stubAuth{session: &service.Session{
		User:    &model.User{ID: 1, Username: "alice", Email: "alice@example.com", Roles: []string{"USER"}},
		Access:  utils.AccessToken{Token: "access", Exp: exp},
		Refresh: utils.RefreshToken{Raw: "refresh", Exp: exp},
	}}
	e := echo.New()
	e.POST("/v1/auth/login", NewAuthHandler(auth, nil).Login)

	rec := call(e, http.MethodPost, "/v1/auth/login", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"user":{"id":1,"username":"alice","email":"alice@example.com","roles":["USER"]},
		"access":{"token":"access","expires":"2030-01-01T00:00:00Z"},
		"refresh":{"token":"refresh","expires":"2030-01-01T00:00:00Z"}
	}`, rec.Body.String())
}

func TestLogout(t *testing.T) {
	auth := &stubAuth{}
	e := echo.New()
	e.POST("/v1/auth/logout", NewAuthHandler(auth, nil).Logout, middleware.OptionalJWT(secret))

	rec := call(e, http.MethodPost, "/v1/auth/logout", bearer(t, 5, "USER"), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, uint64(5), auth.logoutUID)

	rec = call(e, http.MethodPost, "/v1/auth/logout", "", `{"refresh_token":"abc"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, uint64(0), auth.logoutUID)
	assert.Equal(t, "abc", auth.logoutRaw)

	auth.err = apperr.Forbidden("auth.logout", "invalid refresh token")
	rec = call(e, http.MethodPost, "/v1/auth/logout", "", `{"refresh_token":"abc"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)
	e.GET("/readyz", Ready(pingFunc(func(context.Context) error { return errors.New("down") })))

	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, call(e, http.MethodGet, "/readyz", "", "").Code)
}

type pingFunc func(context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }
