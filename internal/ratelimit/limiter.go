// Package ratelimit counts requests per identifier in fixed windows backed by
// Redis.  The counter is incremented before the limit is checked, so a
// rejected request still consumes quota; two adjacent windows can together
// admit up to twice the limit around a boundary.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrStoreUnavailable wraps counter store failures.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the store failed and the request was admitted
	// under the fail-open policy.
	Degraded bool
}

// Limiter is safe for concurrent use; all state lives in Redis.
type Limiter struct {
	rdb      redis.UniversalClient
	prefix   string
	failOpen bool
	timeout  time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailOpen selects the behaviour when Redis cannot be reached.
func WithFailOpen(open bool) Option { return func(l *Limiter) { l.failOpen = open } }

// WithTimeout bounds each Check's round trips to Redis.
func WithTimeout(d time.Duration) Option { return func(l *Limiter) { l.timeout = d } }

// WithLogger sets the logger used for store failures.
func WithLogger(log logrus.FieldLogger) Option { return func(l *Limiter) { l.log = log } }

// WithClock replaces the time source used to compute ResetAt.
func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

// New returns a Limiter whose keys are namespaced under prefix.  It fails
// open unless configured otherwise.
func New(rdb redis.UniversalClient, prefix string, opts ...Option) *Limiter {
	l := &Limiter{
		rdb:      rdb,
		prefix:   prefix,
		failOpen: true,
		timeout:  500 * time.Millisecond,
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Key joins the limiter prefix, a policy prefix and an identifier.
func (l *Limiter) Key(policy, identifier string) string {
	if l.prefix == "" {
		return policy + ":" + identifier
	}
	return l.prefix + ":" + policy + ":" + identifier
}

// Check records one request against key and reports whether it fits in the
// window.  With fail-open enabled a store error yields an allowed,
// Degraded result and a nil error; otherwise the error is returned.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	res, err := l.count(ctx, key, window, max)
	if err != nil {
		entry := l.log.WithError(err).WithField("key", key)
		if l.failOpen {
			entry.Warn("rate limiter unavailable, allowing request")
			return Result{Allowed: true, Limit: max, Remaining: max, ResetAt: l.now().Add(window), Degraded: true}, nil
		}
		entry.Error("rate limiter unavailable, rejecting request")
		return Result{Limit: max, ResetAt: l.now().Add(window)}, err
	}
	return res, nil
}

func (l *Limiter) count(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: incr: %v", ErrStoreUnavailable, err)
	}
	ttl := window
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: expire: %v", ErrStoreUnavailable, err)
		}
	} else {
		ttl, err = l.rdb.TTL(ctx, key).Result()
		if err != nil {
			return Result{}, fmt.Errorf("%w: ttl: %v", ErrStoreUnavailable, err)
		}
		// A key without expiry would never reset; repair it.
		if ttl < 0 {
			if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
				return Result{}, fmt.Errorf("%w: expire: %v", ErrStoreUnavailable, err)
			}
			ttl = window
		}
	}

	remaining := max - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   n <= int64(max),
		Limit:     max,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrStoreUnavailable, err)
	}
	return nil
}
