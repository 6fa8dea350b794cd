// Package notify delivers one-time codes and account links to customers by
// email (SMTP) and SMS (Twilio).
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/iliyamo/furniture-storefront/internal/config"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

// ErrDisabled is returned when a channel has no configuration.
var ErrDisabled = errors.New("notify: channel not configured")

// Mailer sends plain-text messages over SMTP.  The encryption mode is one of
// NONE, STARTTLS or SSL/TLS.
type Mailer struct {
	cfg     config.MailConfig
	baseURL string
	send    func(ctx context.Context, to string, msg []byte) error
}

func NewMailer(cfg config.MailConfig, publicBaseURL string) *Mailer {
	m := &Mailer{cfg: cfg, baseURL: strings.TrimRight(publicBaseURL, "/")}
	m.send = m.deliver
	return m
}

// SendOTP emails a verification code.
func (m *Mailer) SendOTP(ctx context.Context, to, code string, purpose model.OTPPurpose) error {
	subject, lead := "Your verification code", "Use this code to continue"
	switch purpose {
	case model.PurposeLogin:
		subject, lead = "Your sign-in code", "Use this code to sign in"
	case model.PurposeSignup:
		subject, lead = "Confirm your email", "Use this code to finish creating your account"
	case model.PurposePasswordReset:
		subject, lead = "Reset your password", "Use this code to reset your password"
	}
	body := fmt.Sprintf("%s:\r\n\r\n    %s\r\n\r\nThe code expires shortly. If you did not ask for it, ignore this email.\r\n", lead, code)
	return m.Send(ctx, to, subject, body)
}

// SendVerificationLink emails a link carrying an email verification token.
func (m *Mailer) SendVerificationLink(ctx context.Context, to, token string) error {
	link := m.baseURL + "/verify-email?token=" + token
	body := "Confirm your email address by opening this link:\r\n\r\n" + link + "\r\n\r\nThe link is valid for 24 hours.\r\n"
	return m.Send(ctx, to, "Confirm your email", body)
}

// SendPasswordResetLink emails a link carrying a password reset token.
func (m *Mailer) SendPasswordResetLink(ctx context.Context, to, token string) error {
	link := m.baseURL + "/reset-password?token=" + token
	body := "Reset your password by opening this link:\r\n\r\n" + link + "\r\n\r\nThe link is valid for one hour. If you did not ask for it, ignore this email.\r\n"
	return m.Send(ctx, to, "Reset your password", body)
}

// Send delivers one message.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if m.cfg.Host == "" {
		return ErrDisabled
	}
	to = strings.TrimSpace(to)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("email: invalid recipient")
	}
	return m.send(ctx, to, m.buildMessage(to, subject, body, time.Now()))
}

func (m *Mailer) buildMessage(to, subject, body string, at time.Time) []byte {
	var b strings.Builder
	from := m.cfg.FromAddr
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%q <%s>", m.cfg.FromName, m.cfg.FromAddr)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.NewReplacer("\r", "", "\n", "").Replace(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func (m *Mailer) deliver(ctx context.Context, to string, msg []byte) error {
	d := net.Dialer{Timeout: 15 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 {
			d.Timeout = left
		}
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var (
		conn net.Conn
		err  error
	)
	mode := strings.ToUpper(strings.TrimSpace(m.cfg.Encryption))
	if mode == "SSL/TLS" || mode == "SSL" || mode == "TLS" {
		conn, err = tls.DialWithDialer(&d, "tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("email: dial: %w", err)
	}
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: new client: %w", err)
	}
	defer c.Close()

	if mode == "STARTTLS" {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return fmt.Errorf("email: starttls: %w", err)
			}
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.FromAddr); err != nil {
		return fmt.Errorf("email: MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("email: RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("email: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: close data: %w", err)
	}
	return c.Quit()
}
