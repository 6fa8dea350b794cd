package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRolePermissions(t *testing.T) {
	admin := &Principal{Role: RoleAdmin}
	super := &Principal{Role: RoleSuperAdmin}
	vendor := &Principal{Role: RoleVendor}

	assert.True(t, admin.HasPermission(PermCouponsManage))
	assert.False(t, admin.HasPermission(PermRolesManage))
	assert.True(t, super.HasPermission(PermRolesManage))
	assert.True(t, vendor.HasPermission(PermCatalogManage))
	assert.False(t, vendor.HasPermission(PermUsersManage))
	assert.False(t, Role("owner").Valid())
	assert.True(t, RoleSuperAdmin.IsAdmin())
	assert.False(t, RoleVendor.IsAdmin())
}

func TestPermissionsIsCopy(t *testing.T) {
	perms := RoleCustomer.Permissions()
	perms[0] = "mutated"
	assert.Equal(t, []string{PermOrdersPurchase}, RoleCustomer.Permissions())
}

func TestCouponDiscount(t *testing.T) {
	pct := &Coupon{DiscountType: DiscountPercent, Value: 15}
	fixed := &Coupon{DiscountType: DiscountFixed, Value: 5000}

	assert.EqualValues(t, 1500, pct.Discount(10000))
	assert.EqualValues(t, 5000, fixed.Discount(10000))
	assert.EqualValues(t, 3000, fixed.Discount(3000))
}

func TestCouponAvailable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Coupon{IsActive: true}).Available(now))
	assert.False(t, (&Coupon{IsActive: false}).Available(now))
	assert.False(t, (&Coupon{IsActive: true, ExpiresAt: &past}).Available(now))
	assert.False(t, (&Coupon{IsActive: true, StartsAt: &future}).Available(now))
	assert.False(t, (&Coupon{IsActive: true, UsageLimit: 2, UsedCount: 2}).Available(now))
	assert.True(t, (&Coupon{IsActive: true, UsageLimit: 2, UsedCount: 1, ExpiresAt: &future}).Available(now))
}
