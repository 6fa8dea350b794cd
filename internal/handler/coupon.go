package handler

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/middleware"
	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/repository"
)

// CouponStore is the coupon repository.
type CouponStore interface {
	List(ctx context.Context, all bool) ([]model.Coupon, error)
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	Create(ctx context.Context, c *model.Coupon) (uint64, error)
}

// CouponHandler serves public coupon listing, customer validation and
// admin creation.
type CouponHandler struct {
	Coupons CouponStore
	Timeout time.Duration
	now     func() time.Time
}

func NewCouponHandler(store CouponStore, timeout time.Duration) *CouponHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CouponHandler{Coupons: store, Timeout: timeout, now: func() time.Time { return time.Now().UTC() }}
}

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

type createCouponReq struct {
	Code          string     `json:"code"`
	Description   string     `json:"description"`
	DiscountType  string     `json:"discount_type"`
	Value         int64      `json:"value"`
	MinOrderCents int64      `json:"min_order_cents"`
	UsageLimit    int        `json:"usage_limit"`
	IsActive      *bool      `json:"is_active"`
	StartsAt      *time.Time `json:"starts_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

func (r *createCouponReq) toCoupon() (*model.Coupon, error) {
	code := repository.NormalizeCode(r.Code)
	if !couponCodePattern.MatchString(code) {
		return nil, apperr.Validation("code must be 3-32 letters, digits, '-' or '_'")
	}
	dt := model.DiscountType(strings.ToLower(strings.TrimSpace(r.DiscountType)))
	switch dt {
	case model.DiscountPercent:
		if r.Value < 1 || r.Value > 100 {
			return nil, apperr.Validation("percent value must be between 1 and 100")
		}
	case model.DiscountFixed:
		if r.Value < 1 {
			return nil, apperr.Validation("fixed value must be positive")
		}
	default:
		return nil, apperr.Validation("discount_type must be percent or fixed")
	}
	if r.MinOrderCents < 0 || r.UsageLimit < 0 {
		return nil, apperr.Validation("min_order_cents and usage_limit cannot be negative")
	}
	if r.StartsAt != nil && r.ExpiresAt != nil && !r.ExpiresAt.After(*r.StartsAt) {
		return nil, apperr.Validation("expires_at must be after starts_at")
	}
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &model.Coupon{
		Code:          code,
		Description:   strings.TrimSpace(r.Description),
		DiscountType:  dt,
		Value:         r.Value,
		MinOrderCents: r.MinOrderCents,
		UsageLimit:    r.UsageLimit,
		IsActive:      active,
		StartsAt:      r.StartsAt,
		ExpiresAt:     r.ExpiresAt,
	}, nil
}

type validateCouponReq struct {
	Code            string `json:"code"`
	OrderTotalCents int64  `json:"order_total"`
}

// List: GET /v1/coupons.  Callers allowed to manage coupons see every
// coupon; everyone else sees only coupons available now.
func (h *CouponHandler) List(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	all := p != nil && p.HasPermission(model.PermCouponsManage)

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()
	list, err := h.Coupons.List(ctx, all)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"coupons": list, "count": len(list)})
}

// Create: POST /v1/admin/coupons
func (h *CouponHandler) Create(c echo.Context) error {
	var req createCouponReq
	if err := bind(c, &req); err != nil {
		return err
	}
	coupon, err := req.toCoupon()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	id, err := h.Coupons.Create(ctx, coupon)
	if err != nil {
		return err
	}
	coupon.ID = id
	coupon.CreatedAt = h.now()
	return ok(c, http.StatusCreated, echo.Map{"coupon": coupon})
}

// Validate: POST /v1/coupons/validate prices an order with a coupon
// without redeeming it.
func (h *CouponHandler) Validate(c echo.Context) error {
	var req validateCouponReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Code) == "" {
		return apperr.Validation("code is required")
	}
	if req.OrderTotalCents <= 0 {
		return apperr.Validation("order_total must be positive")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	coupon, err := h.Coupons.GetByCode(ctx, req.Code)
	if err != nil {
		return err
	}
	if coupon == nil {
		return apperr.NotFound("coupon not found")
	}
	if !coupon.Available(h.now()) {
		return apperr.Validation("coupon is not available")
	}
	if req.OrderTotalCents < coupon.MinOrderCents {
		return apperr.Validation("order total is below the coupon minimum").With("min_order_cents", coupon.MinOrderCents)
	}
	discount := coupon.Discount(req.OrderTotalCents)
	return ok(c, http.StatusOK, echo.Map{
		"code":           coupon.Code,
		"discount_cents": discount,
		"total_cents":    req.OrderTotalCents - discount,
	})
}
