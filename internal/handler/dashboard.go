package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/middleware"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

// Dashboard serves the role landing pages.  The payload only describes the
// caller; the storefront data behind each page lives in other services.
type Dashboard struct{}

func (Dashboard) summary(c echo.Context, area string) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return apperr.AuthRequired("")
	}
	return ok(c, http.StatusOK, echo.Map{
		"area":        area,
		"user":        toUser(p),
		"can_manage":  p.HasPermission(model.PermCatalogManage),
		"can_deliver": p.HasPermission(model.PermOrdersDeliver),
	})
}

// Vendor: GET /v1/vendor/dashboard
func (d Dashboard) Vendor(c echo.Context) error { return d.summary(c, "vendor") }

// Delivery: GET /v1/delivery/dashboard
func (d Dashboard) Delivery(c echo.Context) error { return d.summary(c, "delivery") }

// Catalog: GET /v1/catalog/manage
func (d Dashboard) Catalog(c echo.Context) error { return d.summary(c, "catalog") }
