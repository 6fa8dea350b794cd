// Package otp issues and verifies one-time numeric codes bound to an
// identifier (email or phone) and a purpose.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/config"
	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/utils"
)

// Store persists challenges.  MarkUsed must be a conditional update that
// succeeds for at most one caller.
type Store interface {
	Create(ctx context.Context, ch *model.OTPChallenge) error
	Get(ctx context.Context, id string) (*model.OTPChallenge, error)
	IncrementAttempts(ctx context.Context, id string) error
	MarkUsed(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Sender delivers a code over one channel.
type Sender interface {
	SendOTP(ctx context.Context, to, code string, purpose model.OTPPurpose) error
}

// Issued describes a challenge handed to the client.  The code itself is
// never returned.
type Issued struct {
	ID        string           `json:"otp_id"`
	Channel   model.OTPChannel `json:"channel"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Manager is safe for concurrent use.
type Manager struct {
	store   Store
	senders map[model.OTPChannel]Sender
	cfg     config.OTPConfig
	log     logrus.FieldLogger
	now     func() time.Time
	code    func(int) (string, error)
}

func NewManager(store Store, senders map[model.OTPChannel]Sender, cfg config.OTPConfig, log logrus.FieldLogger) *Manager {
	return &Manager{
		store:   store,
		senders: senders,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		code:    utils.NumericCode,
	}
}

// Issue creates a challenge, then delivers its code.  When delivery fails
// the challenge is deleted again and the delivery error is returned.
func (m *Manager) Issue(ctx context.Context, identifier string, channel model.OTPChannel, purpose model.OTPPurpose) (*Issued, error) {
	if identifier == "" {
		return nil, apperr.Validation("identifier is required")
	}
	if !purpose.Valid() {
		return nil, apperr.Validation("unknown purpose")
	}
	sender, ok := m.senders[channel]
	if !ok || sender == nil {
		return nil, apperr.Validation(fmt.Sprintf("%s delivery is not available", channel))
	}

	code, err := m.code(m.cfg.Length)
	if err != nil {
		return nil, apperr.Internal("generate code", err)
	}
	now := m.now()
	ch := &model.OTPChallenge{
		ID:          uuid.NewString(),
		Identifier:  identifier,
		CodeHash:    utils.HashToken(code),
		Channel:     channel,
		Purpose:     purpose,
		ExpiresAt:   now.Add(m.cfg.TTL),
		MaxAttempts: m.cfg.MaxAttempts,
		CreatedAt:   now,
	}
	if err := m.store.Create(ctx, ch); err != nil {
		return nil, err
	}

	if err := sender.SendOTP(ctx, identifier, code, purpose); err != nil {
		log := m.log.WithError(err).WithFields(logrus.Fields{"otp_id": ch.ID, "channel": channel, "purpose": purpose})
		log.Warn("otp delivery failed, rolling back challenge")
		// the request context may already be done; the rollback must still run
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if derr := m.store.Delete(rbCtx, ch.ID); derr != nil {
			log.WithField("rollback_error", derr.Error()).Error("otp rollback failed")
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not deliver verification code", err)
	}

	return &Issued{ID: ch.ID, Channel: channel, ExpiresAt: ch.ExpiresAt}, nil
}

// Verify checks code against the challenge.  Checks run in order: expiry,
// used, attempt budget, code.  A wrong code costs one attempt; the right
// code consumes the challenge.  The consumed challenge is returned.
func (m *Manager) Verify(ctx context.Context, id, code string) (*model.OTPChallenge, error) {
	if id == "" || code == "" {
		return nil, apperr.Validation("otp_id and code are required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.New(apperr.KindOTPNotFound, "verification code not found")
	}
	ch, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apperr.New(apperr.KindOTPNotFound, "verification code not found")
	}

	switch {
	case !m.now().Before(ch.ExpiresAt):
		return nil, ErrExpired()
	case ch.Used:
		return nil, ErrAlreadyUsed()
	case ch.AttemptCount >= ch.MaxAttempts:
		return nil, ErrTooManyAttempts()
	}

	if !utils.EqualHash(utils.HashToken(code), ch.CodeHash) {
		if err := m.store.IncrementAttempts(ctx, ch.ID); err != nil {
			return nil, err
		}
		left := ch.MaxAttempts - ch.AttemptCount - 1
		if left < 0 {
			left = 0
		}
		return nil, ErrCodeMismatch().With("attempts_remaining", left)
	}

	ok, err := m.store.MarkUsed(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost a race against another verification of the same challenge
		return nil, m.deadReason(ctx, ch.ID)
	}
	ch.Used = true
	return ch, nil
}

func (m *Manager) deadReason(ctx context.Context, id string) error {
	ch, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if ch != nil && !ch.Used && ch.AttemptCount >= ch.MaxAttempts {
		return ErrTooManyAttempts()
	}
	return ErrAlreadyUsed()
}

func ErrExpired() *apperr.Error {
	return apperr.New(apperr.KindOTPExpired, "verification code expired, request a new one")
}

func ErrAlreadyUsed() *apperr.Error {
	return apperr.New(apperr.KindOTPUsed, "verification code already used, request a new one")
}

func ErrTooManyAttempts() *apperr.Error {
	return apperr.New(apperr.KindOTPTooMany, "too many incorrect attempts, request a new code")
}

func ErrCodeMismatch() *apperr.Error {
	return apperr.New(apperr.KindOTPMismatch, "incorrect code, try again")
}

// IsDead reports whether err means the challenge can never succeed.
func IsDead(err error) bool {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == apperr.KindOTPExpired || e.Kind == apperr.KindOTPUsed || e.Kind == apperr.KindOTPTooMany
}
