package model

import "time"

// DiscountType selects how Coupon.Value is applied.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Coupon is a storefront discount code.  Amounts are in cents.
type Coupon struct {
	ID            uint64       `json:"id"`
	Code          string       `json:"code"`
	Description   string       `json:"description"`
	DiscountType  DiscountType `json:"discount_type"`
	Value         int64        `json:"value"`
	MinOrderCents int64        `json:"min_order_cents"`
	UsageLimit    int          `json:"usage_limit"` // 0 means unlimited
	UsedCount     int          `json:"used_count"`
	IsActive      bool         `json:"is_active"`
	StartsAt      *time.Time   `json:"starts_at,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Discount returns the discount in cents for an order of orderCents, never
// more than the order itself.
func (c *Coupon) Discount(orderCents int64) int64 {
	var d int64
	switch c.DiscountType {
	case DiscountPercent:
		d = orderCents * c.Value / 100
	default:
		d = c.Value
	}
	if d > orderCents {
		d = orderCents
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Available reports whether the coupon may be shown to or redeemed by
// customers at now.
func (c *Coupon) Available(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false
	}
	return true
}
