package config

import "time"

// OTPConfig tunes one-time code challenges.
type OTPConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
}

func LoadOTPConfig() OTPConfig {
	cfg := OTPConfig{
		Length:      envInt("OTP_LENGTH", 6),
		TTL:         envDur("OTP_TTL", 10*time.Minute),
		MaxAttempts: envInt("OTP_MAX_ATTEMPTS", 3),
	}
	if cfg.Length < 4 || cfg.Length > 10 {
		cfg.Length = 6
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return cfg
}

// MailConfig holds SMTP settings for OTP and link delivery.  An empty Host
// disables email delivery (sends fail and challenges are rolled back).
type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	FromAddr   string
	FromName   string
	Encryption string // NONE | STARTTLS | SSL/TLS
}

func LoadMailConfig() MailConfig {
	return MailConfig{
		Host:       envStr("SMTP_HOST", ""),
		Port:       envInt("SMTP_PORT", 587),
		Username:   envStr("SMTP_USERNAME", ""),
		Password:   envStr("SMTP_PASSWORD", ""),
		FromAddr:   envStr("SMTP_FROM", "no-reply@localhost"),
		FromName:   envStr("SMTP_FROM_NAME", "Furniture Store"),
		Encryption: envStr("SMTP_ENCRYPTION", "STARTTLS"),
	}
}

// SMSConfig holds Twilio credentials for phone OTP delivery.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

func LoadSMSConfig() SMSConfig {
	return SMSConfig{
		AccountSID: envStr("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  envStr("TWILIO_AUTH_TOKEN", ""),
		From:       envStr("TWILIO_SMS_FROM", ""),
	}
}

// Enabled reports whether all Twilio credentials are present.
func (c SMSConfig) Enabled() bool { return c.AccountSID != "" && c.AuthToken != "" && c.From != "" }
