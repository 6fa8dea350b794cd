// Package service holds the account flows that sit behind the auth routes:
// OTP and password sign-in, session rotation, logout, email verification,
// password reset and admin account changes.
package service

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/otp"
	"github.com/iliyamo/furniture-storefront/internal/queue"
	"github.com/iliyamo/furniture-storefront/internal/repository"
	"github.com/iliyamo/furniture-storefront/internal/token"
	"github.com/iliyamo/furniture-storefront/internal/utils"
)

// UserStore is the credential store.
type UserStore interface {
	FindByID(ctx context.Context, id uint64) (*model.Principal, error)
	FindByEmail(ctx context.Context, email string) (*model.Principal, error)
	FindByPhone(ctx context.Context, phone string) (*model.Principal, error)
	Create(ctx context.Context, p *model.Principal) (uint64, error)
	SetActive(ctx context.Context, id uint64, active bool) error
	SetRole(ctx context.Context, id uint64, role model.Role) error
	MarkVerified(ctx context.Context, id uint64) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
}

// SessionStore is the refresh-token registry.
type SessionStore interface {
	Create(ctx context.Context, principalID uint64, refreshToken, deviceInfo string, expiresAt time.Time) (*model.Session, error)
	FindByToken(ctx context.Context, refreshToken string) (*model.Session, error)
	DeleteByToken(ctx context.Context, refreshToken string) (bool, error)
	DeleteAllForPrincipal(ctx context.Context, principalID uint64) (int64, error)
}

// Challenges issues and checks one-time codes.
type Challenges interface {
	Issue(ctx context.Context, identifier string, channel model.OTPChannel, purpose model.OTPPurpose) (*otp.Issued, error)
	Verify(ctx context.Context, id, code string) (*model.OTPChallenge, error)
}

// LinkSender emails single-purpose token links.
type LinkSender interface {
	SendVerificationLink(ctx context.Context, to, token string) error
	SendPasswordResetLink(ctx context.Context, to, token string) error
}

// Meta describes the client a session is issued to.
type Meta struct {
	Device string
	IP     string
}

// AuthResult is returned by every flow that signs a principal in.
type AuthResult struct {
	Principal *model.Principal
	Access    token.Token
	Refresh   token.Token
}

// OTPResult is the outcome of a verified code: a session for login and
// signup, a reset token for password_reset.
type OTPResult struct {
	Purpose    model.OTPPurpose
	Auth       *AuthResult
	ResetToken *token.Token
}

type AuthService struct {
	users      UserStore
	sessions   SessionStore
	challenges Challenges
	codec      *token.Codec
	links      LinkSender
	events     EventPublisher
	bcryptCost int
	log        logrus.FieldLogger
	now        func() time.Time
}

type AuthDeps struct {
	Users      UserStore
	Sessions   SessionStore
	Challenges Challenges
	Codec      *token.Codec
	Links      LinkSender
	Events     EventPublisher
	BcryptCost int
	Log        logrus.FieldLogger
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Events == nil {
		d.Events = NopPublisher{}
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = 10
	}
	return &AuthService{
		users:      d.Users,
		sessions:   d.Sessions,
		challenges: d.Challenges,
		codec:      d.Codec,
		links:      d.Links,
		events:     d.Events,
		bcryptCost: d.BcryptCost,
		log:        d.Log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// ParseIdentifier classifies raw as an email address or a phone number and
// returns it in stored form.
func ParseIdentifier(raw string) (string, model.OTPChannel, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", apperr.Validation("identifier is required")
	}
	if strings.Contains(raw, "@") {
		email := repository.NormalizeEmail(raw)
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			return "", "", apperr.Validation("invalid email address")
		}
		return email, model.ChannelEmail, nil
	}
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(raw)
	if !phonePattern.MatchString(phone) {
		return "", "", apperr.Validation("invalid phone number")
	}
	return phone, model.ChannelPhone, nil
}

func (s *AuthService) findByIdentifier(ctx context.Context, id string, ch model.OTPChannel) (*model.Principal, error) {
	if ch == model.ChannelPhone {
		return s.users.FindByPhone(ctx, id)
	}
	return s.users.FindByEmail(ctx, id)
}

// RequestOTP issues a code for identifier.  Login and password reset need an
// existing account (login also an active one); signup needs a free
// identifier.
func (s *AuthService) RequestOTP(ctx context.Context, rawIdentifier string, purpose model.OTPPurpose) (*otp.Issued, error) {
	if !purpose.Valid() {
		return nil, apperr.Validation("purpose must be login, signup or password_reset")
	}
	identifier, channel, err := ParseIdentifier(rawIdentifier)
	if err != nil {
		return nil, err
	}
	p, err := s.findByIdentifier(ctx, identifier, channel)
	if err != nil {
		return nil, err
	}
	switch purpose {
	case model.PurposeSignup:
		if p != nil {
			return nil, apperr.Conflict("an account with this identifier already exists")
		}
	default:
		if p == nil {
			return nil, apperr.PrincipalNotFound()
		}
		if !p.IsActive {
			return nil, apperr.Deactivated()
		}
	}
	return s.challenges.Issue(ctx, identifier, channel, purpose)
}

// VerifyOTP consumes a challenge and completes the flow it was issued for.
// name is used only for signup.
func (s *AuthService) VerifyOTP(ctx context.Context, otpID, code, name string, meta Meta) (*OTPResult, error) {
	ch, err := s.challenges.Verify(ctx, otpID, code)
	if err != nil {
		return nil, err
	}
	method := "otp_" + string(ch.Channel)

	switch ch.Purpose {
	case model.PurposeLogin:
		p, err := s.activePrincipal(ctx, ch)
		if err != nil {
			return nil, err
		}
		if !p.IsVerified {
			// a delivered code proves ownership of the identifier
			if err := s.users.MarkVerified(ctx, p.ID); err != nil {
				return nil, err
			}
			p.IsVerified = true
		}
		res, err := s.startSession(ctx, p, meta)
		if err != nil {
			return nil, err
		}
		s.emit(ctx, queue.AuthEvent{Type: queue.EventLogin, PrincipalID: p.ID, Method: method, Device: meta.Device, IP: meta.IP})
		return &OTPResult{Purpose: ch.Purpose, Auth: res}, nil

	case model.PurposeSignup:
		p := &model.Principal{
			Name:       strings.TrimSpace(name),
			Role:       model.RoleCustomer,
			IsActive:   true,
			IsVerified: true,
		}
		if ch.Channel == model.ChannelPhone {
			p.Phone = ch.Identifier
		} else {
			p.Email = ch.Identifier
		}
		id, err := s.users.Create(ctx, p)
		if err != nil {
			return nil, err
		}
		p.ID = id
		p.CreatedAt, p.UpdatedAt = s.now(), s.now()
		res, err := s.startSession(ctx, p, meta)
		if err != nil {
			return nil, err
		}
		s.emit(ctx, queue.AuthEvent{Type: queue.EventSignup, PrincipalID: p.ID, Method: method, Device: meta.Device, IP: meta.IP})
		return &OTPResult{Purpose: ch.Purpose, Auth: res}, nil

	case model.PurposePasswordReset:
		p, err := s.activePrincipal(ctx, ch)
		if err != nil {
			return nil, err
		}
		tok, err := s.codec.IssuePurpose(identityOf(p), token.PurposePasswordReset)
		if err != nil {
			return nil, apperr.Internal("issue reset token", err)
		}
		return &OTPResult{Purpose: ch.Purpose, ResetToken: &tok}, nil
	}
	return nil, apperr.Internal("unknown challenge purpose", nil)
}

func (s *AuthService) activePrincipal(ctx context.Context, ch *model.OTPChallenge) (*model.Principal, error) {
	p, err := s.findByIdentifier(ctx, ch.Identifier, ch.Channel)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.PrincipalNotFound()
	}
	if !p.IsActive {
		return nil, apperr.Deactivated()
	}
	return p, nil
}

// Register creates an unverified customer with a password, emails a
// verification link and signs the new account in.
func (s *AuthService) Register(ctx context.Context, email, password, name string, meta Meta) (*AuthResult, error) {
	email, channel, err := ParseIdentifier(email)
	if err != nil {
		return nil, err
	}
	if channel != model.ChannelEmail {
		return nil, apperr.Validation("a valid email address is required")
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	p := &model.Principal{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         model.RoleCustomer,
		IsActive:     true,
		PasswordHash: hash,
	}
	id, err := s.users.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.CreatedAt, p.UpdatedAt = s.now(), s.now()

	if vt, err := s.codec.IssuePurpose(identityOf(p), token.PurposeEmailVerification); err != nil {
		s.log.WithError(err).Error("issue verification token")
	} else if s.links != nil {
		if err := s.links.SendVerificationLink(ctx, p.Email, vt.Value); err != nil {
			s.log.WithError(err).WithField("principal_id", p.ID).Warn("verification email not sent")
		}
	}

	res, err := s.startSession(ctx, p, meta)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventSignup, PrincipalID: p.ID, Method: "password", Device: meta.Device, IP: meta.IP})
	return res, nil
}

// Login signs in with email and password.  Unknown email and wrong password
// produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string, meta Meta) (*AuthResult, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	p, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil || !utils.VerifyPassword(p.PasswordHash, password) {
		return nil, apperr.New(apperr.KindAuthRequired, "invalid email or password")
	}
	if !p.IsActive {
		return nil, apperr.Deactivated()
	}
	res, err := s.startSession(ctx, p, meta)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventLogin, PrincipalID: p.ID, Method: "password", Device: meta.Device, IP: meta.IP})
	return res, nil
}

// Refresh rotates a refresh token.  The token must verify and its session
// row must still exist; the old row is deleted before the new one is made so
// a token can be exchanged at most once.
func (s *AuthService) Refresh(ctx context.Context, raw string, meta Meta) (*AuthResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Validation("refresh_token is required")
	}
	claims, err := s.codec.Verify(raw, token.Refresh)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.FindByToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.PrincipalID != claims.PrincipalID() {
		return nil, apperr.InvalidToken("session expired or revoked")
	}
	// Delete first so only one concurrent refresh wins.  The two steps are
	// not atomic: if the new session cannot be stored the caller must sign
	// in again, which is preferred over a token that can be replayed.
	deleted, err := s.sessions.DeleteByToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, apperr.InvalidToken("session expired or revoked")
	}

	p, err := s.users.FindByID(ctx, sess.PrincipalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.PrincipalNotFound()
	}
	if !p.IsActive {
		return nil, apperr.Deactivated()
	}
	if meta.Device == "" {
		meta.Device = sess.DeviceInfo
	}
	res, err := s.startSession(ctx, p, meta)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventRefresh, PrincipalID: p.ID, Device: meta.Device, IP: meta.IP})
	return res, nil
}

// Logout ends the session of one refresh token.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperr.Validation("refresh_token is required")
	}
	claims, err := s.codec.Verify(raw, token.Refresh)
	if err != nil {
		return err
	}
	deleted, err := s.sessions.DeleteByToken(ctx, raw)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.InvalidToken("session expired or revoked")
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventLogout, PrincipalID: claims.PrincipalID()})
	return nil
}

// LogoutAll ends every session of the principal and reports how many.
func (s *AuthService) LogoutAll(ctx context.Context, principalID uint64) (int64, error) {
	n, err := s.sessions.DeleteAllForPrincipal(ctx, principalID)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventLogoutAll, PrincipalID: principalID})
	return n, nil
}

// VerifyEmail marks the account behind an email verification token as
// verified.  A token minted for a different address is rejected.
func (s *AuthService) VerifyEmail(ctx context.Context, raw string) (*model.Principal, error) {
	claims, err := s.codec.VerifyPurpose(strings.TrimSpace(raw), token.PurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	p, err := s.users.FindByID(ctx, claims.PrincipalID())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.PrincipalNotFound()
	}
	if p.Email != claims.Email {
		return nil, apperr.InvalidToken("token not valid for this account")
	}
	if !p.IsVerified {
		if err := s.users.MarkVerified(ctx, p.ID); err != nil {
			return nil, err
		}
		p.IsVerified = true
		s.emit(ctx, queue.AuthEvent{Type: queue.EventEmailVerified, PrincipalID: p.ID})
	}
	return p, nil
}

// ForgotPassword emails a reset link when email belongs to an active
// account.  It reports success either way so callers cannot probe for
// accounts; only store failures surface.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return apperr.Validation("email is required")
	}
	p, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p == nil || !p.IsActive {
		return nil
	}
	tok, err := s.codec.IssuePurpose(identityOf(p), token.PurposePasswordReset)
	if err != nil {
		return apperr.Internal("issue reset token", err)
	}
	if s.links != nil {
		if err := s.links.SendPasswordResetLink(ctx, p.Email, tok.Value); err != nil {
			s.log.WithError(err).WithField("principal_id", p.ID).Warn("password reset email not sent")
		}
	}
	return nil
}

// ResetPassword sets a new password from a reset token and revokes every
// session of the account.
func (s *AuthService) ResetPassword(ctx context.Context, raw, password string) error {
	claims, err := s.codec.VerifyPurpose(strings.TrimSpace(raw), token.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	p, err := s.users.FindByID(ctx, claims.PrincipalID())
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.PrincipalNotFound()
	}
	if !p.IsActive {
		return apperr.Deactivated()
	}
	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, p.ID, hash); err != nil {
		return err
	}
	if _, err := s.sessions.DeleteAllForPrincipal(ctx, p.ID); err != nil {
		return err
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventPasswordReset, PrincipalID: p.ID})
	return nil
}

// GetPrincipal loads an account for the back office.
func (s *AuthService) GetPrincipal(ctx context.Context, id uint64) (*model.Principal, error) {
	p, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("account not found")
	}
	return p, nil
}

// SetActive enables or disables an account.  Disabling also revokes all
// of its sessions.  Admins cannot disable themselves.
func (s *AuthService) SetActive(ctx context.Context, actorID, targetID uint64, active bool) error {
	if actorID == targetID && !active {
		return apperr.Validation("you cannot deactivate your own account")
	}
	if err := s.users.SetActive(ctx, targetID, active); err != nil {
		return err
	}
	ev := queue.AuthEvent{Type: queue.EventReactivated, PrincipalID: targetID, ActorID: actorID}
	if !active {
		ev.Type = queue.EventDeactivated
		if _, err := s.sessions.DeleteAllForPrincipal(ctx, targetID); err != nil {
			return err
		}
	}
	s.emit(ctx, ev)
	return nil
}

// SetRole changes an account's role.
func (s *AuthService) SetRole(ctx context.Context, actorID, targetID uint64, role model.Role) error {
	if !role.Valid() {
		return apperr.Validation("unknown role")
	}
	if actorID == targetID {
		return apperr.Validation("you cannot change your own role")
	}
	if err := s.users.SetRole(ctx, targetID, role); err != nil {
		return err
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventRoleChanged, PrincipalID: targetID, ActorID: actorID, Role: string(role)})
	return nil
}

func (s *AuthService) startSession(ctx context.Context, p *model.Principal, meta Meta) (*AuthResult, error) {
	id := identityOf(p)
	access, err := s.codec.IssueAccess(id)
	if err != nil {
		return nil, apperr.Internal("issue access token", err)
	}
	refresh, err := s.codec.IssueRefresh(id)
	if err != nil {
		return nil, apperr.Internal("issue refresh token", err)
	}
	if _, err := s.sessions.Create(ctx, p.ID, refresh.Value, meta.Device, refresh.ExpiresAt); err != nil {
		return nil, err
	}
	return &AuthResult{Principal: p, Access: access, Refresh: refresh}, nil
}

func (s *AuthService) emit(ctx context.Context, ev queue.AuthEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Warn("auth event not published")
	}
}

func identityOf(p *model.Principal) token.Identity {
	return token.Identity{PrincipalID: p.ID, Email: p.Email, Role: string(p.Role), Permissions: p.Role.Permissions()}
}

// ValidatePassword enforces the minimum password policy.
func ValidatePassword(pw string) error {
	if len(pw) < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}
	if len(pw) > 72 {
		return apperr.Validation("password must be at most 72 bytes")
	}
	return nil
}
