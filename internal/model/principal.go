package model

import "time"

// Role names stored in principals.role and carried in the access token.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleVendor     Role = "vendor"
	RoleDelivery   Role = "delivery"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleDelivery, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r is one of the back-office administrator roles.
func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

// Permission names checked by RequirePermission.
const (
	PermCouponsManage  = "coupons:manage"
	PermCatalogManage  = "catalog:manage"
	PermOrdersDeliver  = "orders:deliver"
	PermUsersManage    = "users:manage"
	PermRolesManage    = "roles:manage"
	PermOrdersPurchase = "orders:purchase"
)

var rolePermissions = map[Role][]string{
	RoleCustomer:   {PermOrdersPurchase},
	RoleVendor:     {PermCatalogManage, PermOrdersPurchase},
	RoleDelivery:   {PermOrdersDeliver},
	RoleAdmin:      {PermCouponsManage, PermCatalogManage, PermUsersManage, PermOrdersDeliver},
	RoleSuperAdmin: {PermCouponsManage, PermCatalogManage, PermUsersManage, PermOrdersDeliver, PermRolesManage},
}

// Permissions returns the permission set granted to r.  The slice is a copy.
func (r Role) Permissions() []string {
	src := rolePermissions[r]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Principal is a customer, staff or administrator account as stored in the
// principals table.  At least one of Email or Phone is set.  PasswordHash is
// empty for OTP-only accounts.
type Principal struct {
	ID           uint64
	Email        string
	Phone        string
	Name         string
	Role         Role
	IsActive     bool
	IsVerified   bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPermission reports whether the principal's role grants perm.
func (p *Principal) HasPermission(perm string) bool {
	for _, g := range rolePermissions[p.Role] {
		if g == perm {
			return true
		}
	}
	return false
}
