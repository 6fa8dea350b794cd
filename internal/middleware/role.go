package middleware

import (
	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

// authorize applies the role allow-list and permission set of pol to p.
// An empty allow-list admits every role.
func authorize(p *model.Principal, pol policy) error {
	if len(pol.roles) > 0 && !hasAnyRole(p, pol.roles) {
		return apperr.Forbidden("insufficient role")
	}
	for _, perm := range pol.perms {
		if !p.HasPermission(perm) {
			return apperr.Forbidden("missing permission " + perm)
		}
	}
	return nil
}

func hasAnyRole(p *model.Principal, roles []model.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
