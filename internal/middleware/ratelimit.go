package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/config"
	"github.com/iliyamo/furniture-storefront/internal/ratelimit"
)

// Checker is the fixed-window counter used by RateLimit.
type Checker interface {
	Key(policy, identifier string) string
	Check(ctx context.Context, key string, window time.Duration, max int) (ratelimit.Result, error)
}

// RateOption configures RateLimit.
type RateOption func(*rateOptions)

type rateOptions struct {
	subject func(echo.Context) string
}

// KeyBy names the caller from the request before the gate has run, for
// example from a verified bearer token.  An empty result falls back to the
// client IP.
func KeyBy(subject func(echo.Context) string) RateOption {
	return func(o *rateOptions) { o.subject = subject }
}

// RateLimit enforces pol per caller.  The caller is the authenticated
// principal when one is already on the context, then the KeyBy subject,
// otherwise the client IP.  The limiter itself decides whether a store
// outage admits the request; an error it returns is reported as 503.
func RateLimit(l Checker, pol config.RatePolicy, enabled bool, opts ...RateOption) echo.MiddlewareFunc {
	if !enabled || l == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	var o rateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := l.Key(pol.Prefix, rateIdentifier(c, o.subject))
			res, err := l.Check(c.Request().Context(), key, pol.Window, pol.Max)
			if err != nil {
				return apperr.Wrap(apperr.KindUnavailable, "service temporarily unavailable", err)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				secs := int(math.Ceil(time.Until(res.ResetAt).Seconds()))
				if secs < 0 {
					secs = 0
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				return apperr.New(apperr.KindRateLimited, "too many requests, try again later").
					With("remaining", res.Remaining).
					With("reset_at", res.ResetAt.UTC().Format(time.RFC3339)).
					With("retry_after", secs)
			}
			return next(c)
		}
	}
}

func rateIdentifier(c echo.Context, subject func(echo.Context) string) string {
	if p := PrincipalFrom(c); p != nil {
		return "user:" + strconv.FormatUint(p.ID, 10)
	}
	if subject != nil {
		if s := subject(c); s != "" {
			return s
		}
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
