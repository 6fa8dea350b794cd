package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/middleware"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

// AdminHandler serves the back-office account endpoints under /v1/admin.
type AdminHandler struct {
	Auth *AuthHandler
}

type statusReq struct {
	Active *bool `json:"active"`
}

type roleReq struct {
	Role string `json:"role"`
}

func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

// GetUser: GET /v1/admin/users/:id
func (h *AdminHandler) GetUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.Auth.ctx(c)
	defer cancel()

	p, err := h.Auth.Accounts.GetPrincipal(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"user": toUser(p)})
}

// SetStatus: PATCH /v1/admin/users/:id/status
func (h *AdminHandler) SetStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Active == nil {
		return apperr.Validation("active is required")
	}
	ctx, cancel := h.Auth.ctx(c)
	defer cancel()

	if err := h.Auth.Accounts.SetActive(ctx, middleware.PrincipalFrom(c).ID, id, *req.Active); err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"id": id, "active": *req.Active})
}

// SetRole: PATCH /v1/admin/users/:id/role
func (h *AdminHandler) SetRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	role := model.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if !role.Valid() {
		return apperr.Validation("unknown role")
	}
	ctx, cancel := h.Auth.ctx(c)
	defer cancel()

	if err := h.Auth.Accounts.SetRole(ctx, middleware.PrincipalFrom(c).ID, id, role); err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"id": id, "role": role})
}
