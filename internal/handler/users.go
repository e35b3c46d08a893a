package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-reservation/internal/service"
)

// UserHandler serves account management for a user and for admins.
type UserHandler struct {
	Users UserAPI
}

func NewUserHandler(users UserAPI) *UserHandler {
	return &UserHandler{Users: users}
}

type updateUserReq struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
	LastName *string `json:"last_name"`
}

// List handles GET /v1/users (admin).
func (h *UserHandler) List(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	users, err := h.Users.List(c.Request().Context(), p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": users})
}

// Get handles GET /v1/users/:userId.
func (h *UserHandler) Get(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "userId")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	u, err := h.Users.Get(c.Request().Context(), p, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Update handles PUT /v1/users/:userId. Username cannot change.
func (h *UserHandler) Update(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "userId")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	u, err := h.Users.Update(c.Request().Context(), p, id, service.UserPatch{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		LastName: req.LastName,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Delete handles DELETE /v1/users/:userId. It answers 409 while the user
// still owns reservations.
func (h *UserHandler) Delete(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "userId")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	if err := h.Users.Delete(c.Request().Context(), p, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
