package config

import "time"

// RatePolicy is one fixed-window quota: at most Max requests per Window for
// each identifier under Prefix.
type RatePolicy struct {
	Prefix string
	Window time.Duration
	Max    int
}

// RateLimitConfig groups the per-endpoint policies and the failure policy.
type RateLimitConfig struct {
	Enabled       bool
	FailOpen      bool // allow requests when the counter store is unreachable
	KeyPrefix     string
	Auth          RatePolicy
	API           RatePolicy
	PasswordReset RatePolicy
	Debug         bool
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:   envBool("RATE_LIMIT_ENABLED", true),
		FailOpen:  envBool("RATE_LIMIT_FAIL_OPEN", true),
		KeyPrefix: envStr("RATE_LIMIT_PREFIX", "rl"),
		Auth: RatePolicy{
			Prefix: "auth",
			Window: envDur("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
			Max:    envInt("RATE_LIMIT_AUTH_MAX", 5),
		},
		API: RatePolicy{
			Prefix: "api",
			Window: envDur("RATE_LIMIT_API_WINDOW", 15*time.Minute),
			Max:    envInt("RATE_LIMIT_API_MAX", 100),
		},
		PasswordReset: RatePolicy{
			Prefix: "password_reset",
			Window: envDur("RATE_LIMIT_RESET_WINDOW", time.Hour),
			Max:    envInt("RATE_LIMIT_RESET_MAX", 3),
		},
		Debug: envBool("RATE_LIMIT_DEBUG", false),
	}
	for _, p := range []*RatePolicy{&cfg.Auth, &cfg.API, &cfg.PasswordReset} {
		if p.Max < 1 {
			p.Max = 1
		}
		if p.Window < time.Second {
			p.Window = time.Second
		}
	}
	return cfg
}
