package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RoleHandler serves role administration.
type RoleHandler struct {
	Roles RoleAPI
}

func NewRoleHandler(roles RoleAPI) *RoleHandler {
	return &RoleHandler{Roles: roles}
}

// List handles GET /v1/roles.
func (h *RoleHandler) List(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	roles, err := h.Roles.ListRoles(c.Request().Context(), p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": roles})
}

// Add handles POST /v1/users/by-username/:username/roles/:role.
func (h *RoleHandler) Add(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	u, err := h.Roles.AddRole(c.Request().Context(), p, c.Param("username"), c.Param("role"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Remove handles DELETE /v1/users/by-username/:username/roles/:role.
func (h *RoleHandler) Remove(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	u, err := h.Roles.RemoveRole(c.Request().Context(), p, c.Param("username"), c.Param("role"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
