package middleware

// identity.go holds the context plumbing shared by the gate, the rate
// limiter, the response cache and the request logger.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/furniture-storefront/internal/model"
)

const principalKey = "principal"

// PrincipalFrom returns the principal resolved by the gate, or nil for
// anonymous requests.
func PrincipalFrom(c echo.Context) *model.Principal {
	p, _ := c.Get(principalKey).(*model.Principal)
	return p
}

// SetPrincipal stores p on the request context.  Also used by tests.
func SetPrincipal(c echo.Context, p *model.Principal) {
	c.Set(principalKey, p)
	if p != nil {
		c.Set("user_id", p.ID)
		c.Set("role", string(p.Role))
	}
}

// userID returns the authenticated principal id as a string, or "guest".
func userID(c echo.Context) string {
	if p := PrincipalFrom(c); p != nil {
		return strconv.FormatUint(p.ID, 10)
	}
	return "guest"
}
