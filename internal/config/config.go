package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env            string        // application environment (local, dev, prod)
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	AccessSecret   string        // HMAC secret for access and purpose tokens
	RefreshSecret  string        // HMAC secret for refresh tokens; must differ from AccessSecret
	TokenIssuer    string        // iss claim
	AccessTTL      time.Duration // access token lifetime
	RefreshTTL     time.Duration // refresh token and session lifetime
	VerifyTTL      time.Duration // email verification token lifetime
	ResetTTL       time.Duration // password reset token lifetime
	BcryptCost     int           // bcrypt cost for password hashing
	AdminCookie    string        // cookie accepted as bearer fallback on admin routes
	AuthFailClosed bool          // treat principal store errors as unauthenticated even for optional auth
	StoreTimeout   time.Duration // bound on each database call made by the gate
	SweepInterval  time.Duration // how often expired sessions and challenges are deleted
	PublicBaseURL  string        // used to build links in verification and reset emails
	LogLevel       string        // logrus level name
	AMQPURL        string        // RabbitMQ URL for auth events; empty disables publishing
}

// Load reads configuration values from environment variables and returns a
// Config.  In local and dev environments a .env file is loaded first when
// present.  Missing required variables produce an error naming them.
func Load() (Config, error) {
	env := envStr("APP_ENV", "local")
	if env == "local" || env == "dev" {
		_ = godotenv.Load() // absence of .env is fine
	}

	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:            envStr("APP_ENV", "local"),
		Port:           envStr("APP_PORT", "8080"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         envStr("DB_HOST", "localhost"),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         must("DB_NAME"),
		AccessSecret:   must("JWT_ACCESS_SECRET"),
		RefreshSecret:  must("JWT_REFRESH_SECRET"),
		TokenIssuer:    envStr("JWT_ISSUER", "furniture-storefront"),
		AccessTTL:      envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:     envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		VerifyTTL:      envDur("EMAIL_VERIFY_TOKEN_TTL", 24*time.Hour),
		ResetTTL:       envDur("PASSWORD_RESET_TOKEN_TTL", time.Hour),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		AdminCookie:    envStr("ADMIN_COOKIE_NAME", "admin_token"),
		AuthFailClosed: envBool("AUTH_FAIL_CLOSED", true),
		StoreTimeout:   envDur("STORE_TIMEOUT", 3*time.Second),
		SweepInterval:  envDur("SWEEP_INTERVAL", 5*time.Minute),
		PublicBaseURL:  strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		AMQPURL:        envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return cfg, nil
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
