package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

const couponColumns = "id, code, description, discount_type, value, min_order_cents, usage_limit, used_count, is_active, starts_at, expires_at, created_at"

// CouponRepo provides data access to the coupons table.
type CouponRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewCouponRepo(db *sql.DB) *CouponRepo { return &CouponRepo{DB: db, now: utcNow} }

func scanCoupon(row rowScanner) (*model.Coupon, error) {
	var (
		c             model.Coupon
		discountType  string
		starts, expir sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Description, &discountType, &c.Value, &c.MinOrderCents,
		&c.UsageLimit, &c.UsedCount, &c.IsActive, &starts, &expir, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.DiscountType = model.DiscountType(discountType)
	if starts.Valid {
		t := starts.Time
		c.StartsAt = &t
	}
	if expir.Valid {
		t := expir.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

// List returns coupons newest first.  With all=false only coupons currently
// available to customers are returned.
func (r *CouponRepo) List(ctx context.Context, all bool) ([]model.Coupon, error) {
	query := "SELECT " + couponColumns + " FROM coupons"
	var args []any
	if !all {
		now := r.now()
		query += ` WHERE is_active = 1
			AND (starts_at IS NULL OR starts_at <= ?)
			AND (expires_at IS NULL OR expires_at > ?)
			AND (usage_limit = 0 OR used_count < usage_limit)`
		args = append(args, now, now)
	}
	query += " ORDER BY id DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()
	out := []model.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetByCode fetches a coupon by its case-insensitive code.
func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+couponColumns+" FROM coupons WHERE code=? LIMIT 1", NormalizeCode(code))
	c, err := scanCoupon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon: %w", err)
	}
	return c, nil
}

// Create inserts c and returns its id.
func (r *CouponRepo) Create(ctx context.Context, c *model.Coupon) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO coupons (code, description, discount_type, value, min_order_cents, usage_limit, is_active, starts_at, expires_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		NormalizeCode(c.Code), c.Description, string(c.DiscountType), c.Value, c.MinOrderCents, c.UsageLimit,
		c.IsActive, nullTime(c.StartsAt), nullTime(c.ExpiresAt))
	if err != nil {
		if isDuplicate(err) {
			return 0, apperr.Conflict("coupon code already exists")
		}
		return 0, fmt.Errorf("insert coupon: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert coupon: %w", err)
	}
	return uint64(id), nil
}

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
