package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/token"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	Verify(raw string, class token.KeyClass) (*token.Claims, error)
}

// PrincipalLoader is the credential store as seen by the gate.
type PrincipalLoader interface {
	FindByID(ctx context.Context, id uint64) (*model.Principal, error)
}

// GateConfig tunes the gate.
type GateConfig struct {
	// AdminCookie is read when admin-scoped routes receive no bearer header.
	AdminCookie string
	// Timeout bounds the principal lookup.
	Timeout time.Duration
	// FailClosed makes OptionalAuth reject requests when the principal store
	// fails.  RequireAuth and its variants always reject.
	FailClosed bool
}

// Gate authenticates requests and authorizes them by role or permission.
// Every check runs against the stored principal, so a deactivated account
// or changed role takes effect before the access token expires.
type Gate struct {
	tokens TokenVerifier
	users  PrincipalLoader
	cfg    GateConfig
	log    logrus.FieldLogger
}

func NewGate(tokens TokenVerifier, users PrincipalLoader, cfg GateConfig, log logrus.FieldLogger) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Gate{tokens: tokens, users: users, cfg: cfg, log: log}
}

type storeFailure struct{ err error }

func (s *storeFailure) Error() string { return "principal lookup failed: " + s.err.Error() }
func (s *storeFailure) Unwrap() error { return s.err }

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// admin cookie when allowed.  An empty result means no credential was sent.
func (g *Gate) bearerToken(c echo.Context, cookie bool) string {
	h := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if cookie && g.cfg.AdminCookie != "" {
		if ck, err := c.Cookie(g.cfg.AdminCookie); err == nil {
			return strings.TrimSpace(ck.Value)
		}
	}
	return ""
}

// RateSubject returns "user:<id>" when the request carries an access token
// with a valid signature, and "" otherwise.  It does not touch the store, so
// rate limiting can key by account before the gate runs.
func (g *Gate) RateSubject(c echo.Context) string {
	raw := g.bearerToken(c, true)
	if raw == "" {
		return ""
	}
	claims, err := g.tokens.Verify(raw, token.Access)
	if err != nil {
		return ""
	}
	id := claims.PrincipalID()
	if id == 0 {
		return ""
	}
	return "user:" + strconv.FormatUint(id, 10)
}

// resolve runs verify, resolve and the activity check for raw.
func (g *Gate) resolve(c echo.Context, raw string) (*model.Principal, error) {
	claims, err := g.tokens.Verify(raw, token.Access)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return nil, apperr.Wrap(apperr.KindInvalidToken, "invalid token", err)
		}
		return nil, err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), g.cfg.Timeout)
	defer cancel()
	p, err := g.users.FindByID(ctx, claims.PrincipalID())
	if err != nil {
		return nil, &storeFailure{err: err}
	}
	if p == nil {
		return nil, apperr.PrincipalNotFound()
	}
	if !p.IsActive {
		return nil, apperr.Deactivated()
	}
	return p, nil
}

// Authenticate returns the principal behind the request's bearer token.
// It fails with AuthenticationRequired when no token is present and never
// returns a nil principal with a nil error.
func (g *Gate) Authenticate(c echo.Context, allowCookie bool) (*model.Principal, error) {
	raw := g.bearerToken(c, allowCookie)
	if raw == "" {
		return nil, apperr.AuthRequired("")
	}
	p, err := g.resolve(c, raw)
	if err != nil {
		return nil, g.closed(c, err)
	}
	return p, nil
}

// Optional is Authenticate for endpoints that also serve anonymous callers:
// a request without a token yields (nil, nil).  A presented token that fails
// verification is still an error.
func (g *Gate) Optional(c echo.Context) (*model.Principal, error) {
	raw := g.bearerToken(c, false)
	if raw == "" {
		return nil, nil
	}
	p, err := g.resolve(c, raw)
	if err != nil {
		var sf *storeFailure
		if errors.As(err, &sf) && !g.cfg.FailClosed {
			g.log.WithError(sf.err).WithField("path", c.Path()).Warn("principal store unavailable, serving anonymously")
			return nil, nil
		}
		return nil, g.closed(c, err)
	}
	return p, nil
}

func (g *Gate) closed(c echo.Context, err error) error {
	var sf *storeFailure
	if errors.As(err, &sf) {
		g.log.WithError(sf.err).WithField("path", c.Path()).Error("principal lookup failed")
		return apperr.Wrap(apperr.KindAuthRequired, "could not verify account", sf.err)
	}
	return err
}

type policy struct {
	cookie bool
	roles  []model.Role
	perms  []string
}

func (g *Gate) guard(pol policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A gate mounted on an enclosing group has already resolved the
			// principal, possibly from the admin cookie.
			p := PrincipalFrom(c)
			if p == nil {
				var err error
				if p, err = g.Authenticate(c, pol.cookie); err != nil {
					return err
				}
				SetPrincipal(c, p)
			}
			if err := authorize(p, pol); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireAuth admits any active, authenticated principal.
func (g *Gate) RequireAuth() echo.MiddlewareFunc { return g.guard(policy{}) }

// RequireRole admits principals whose role is in roles.  Authentication
// failures are 401; a wrong role is 403.
func (g *Gate) RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return g.guard(policy{roles: roles})
}

// RequirePermission admits principals whose role grants every perm.
func (g *Gate) RequirePermission(perms ...string) echo.MiddlewareFunc {
	return g.guard(policy{perms: perms})
}

// AdminOnly admits admins and super admins and accepts the admin cookie.
func (g *Gate) AdminOnly() echo.MiddlewareFunc {
	return g.guard(policy{cookie: true, roles: []model.Role{model.RoleAdmin, model.RoleSuperAdmin}})
}

// SuperAdminOnly admits super admins and accepts the admin cookie.
func (g *Gate) SuperAdminOnly() echo.MiddlewareFunc {
	return g.guard(policy{cookie: true, roles: []model.Role{model.RoleSuperAdmin}})
}

func (g *Gate) VendorOnly() echo.MiddlewareFunc { return g.RequireRole(model.RoleVendor) }

func (g *Gate) DeliveryOnly() echo.MiddlewareFunc { return g.RequireRole(model.RoleDelivery) }

func (g *Gate) AdminOrVendor() echo.MiddlewareFunc {
	return g.RequireRole(model.RoleAdmin, model.RoleSuperAdmin, model.RoleVendor)
}

// OptionalAuth attaches the principal when a valid token is sent and lets
// anonymous requests through untouched.
func (g *Gate) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := g.Optional(c)
			if err != nil {
				return err
			}
			if p != nil {
				SetPrincipal(c, p)
			}
			return next(c)
		}
	}
}
