package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/furniture-storefront/internal/config"
	"github.com/iliyamo/furniture-storefront/internal/handler"
	"github.com/iliyamo/furniture-storefront/internal/middleware"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

// Deps holds everything the routes are built from.  Limiter and Cache may
// be nil, which disables rate limiting and response caching.
type Deps struct {
	Auth      *handler.AuthHandler
	Admin     *handler.AdminHandler
	Coupons   *handler.CouponHandler
	Dashboard handler.Dashboard
	Health    *handler.Health
	Gate      *middleware.Gate
	Limiter   middleware.Checker
	RateLimit config.RateLimitConfig
	Cache     echo.MiddlewareFunc
}

// Register mounts every route on e.  Rate limiting runs before the gate, so
// a flood of bad tokens is throttled by IP before any principal is loaded.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Check)

	// Callers with a validly signed access token are counted per account,
	// everyone else per IP.
	byAccount := middleware.KeyBy(d.Gate.RateSubject)
	authLimit := middleware.RateLimit(d.Limiter, d.RateLimit.Auth, d.RateLimit.Enabled, byAccount)
	apiLimit := middleware.RateLimit(d.Limiter, d.RateLimit.API, d.RateLimit.Enabled, byAccount)
	resetLimit := middleware.RateLimit(d.Limiter, d.RateLimit.PasswordReset, d.RateLimit.Enabled, byAccount)

	// Unauthenticated auth flows.
	a := e.Group("/v1/auth")
	a.POST("/otp/request", d.Auth.RequestOTP, authLimit)
	a.POST("/otp/verify", d.Auth.VerifyOTP, authLimit)
	a.POST("/register", d.Auth.Register, authLimit)
	a.POST("/login", d.Auth.Login, authLimit)
	a.POST("/refresh", d.Auth.Refresh, apiLimit)
	a.POST("/logout", d.Auth.Logout, apiLimit)
	a.POST("/verify-email", d.Auth.VerifyEmail, apiLimit)
	a.POST("/password/forgot", d.Auth.ForgotPassword, resetLimit)
	a.POST("/password/reset", d.Auth.ResetPassword, resetLimit)
	a.POST("/logout-all", d.Auth.LogoutAll, apiLimit, d.Gate.RequireAuth())

	v1 := e.Group("/v1", apiLimit)
	v1.GET("/me", d.Auth.Me, d.Gate.RequireAuth())

	coupons := []echo.MiddlewareFunc{d.Gate.OptionalAuth()}
	if d.Cache != nil {
		coupons = append(coupons, d.Cache)
	}
	v1.GET("/coupons", d.Coupons.List, coupons...)
	v1.POST("/coupons/validate", d.Coupons.Validate, d.Gate.RequireAuth())

	v1.GET("/vendor/dashboard", d.Dashboard.Vendor, d.Gate.VendorOnly())
	v1.GET("/delivery/dashboard", d.Dashboard.Delivery, d.Gate.DeliveryOnly())
	v1.GET("/catalog/manage", d.Dashboard.Catalog, d.Gate.AdminOrVendor())

	// Back office.  AdminOnly accepts the admin cookie when no bearer header
	// is sent.
	adm := v1.Group("/admin", d.Gate.AdminOnly())
	adm.GET("/users/:id", d.Admin.GetUser)
	adm.PATCH("/users/:id/status", d.Admin.SetStatus)
	adm.PATCH("/users/:id/role", d.Admin.SetRole, d.Gate.SuperAdminOnly())
	adm.POST("/coupons", d.Coupons.Create, d.Gate.RequirePermission(model.PermCouponsManage))
}
