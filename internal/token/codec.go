// Package token signs and verifies the JWTs used by the storefront: short
// lived access tokens, long lived refresh tokens and single-purpose tokens
// for email verification and password reset.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
)

// KeyClass selects which signing key a token is verified against.
type KeyClass int

const (
	Access KeyClass = iota
	Refresh
)

func (k KeyClass) String() string {
	if k == Refresh {
		return "refresh"
	}
	return "access"
}

// Purpose discriminates single-purpose tokens from access tokens.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Identity is the claim set the codec is asked to sign.
type Identity struct {
	PrincipalID uint64
	Email       string
	Role        string
	Permissions []string
}

// Claims is the decoded payload of a verified token.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	Purpose     Purpose  `json:"purpose,omitempty"`
	Class       string   `json:"typ"`
	jwt.RegisteredClaims
}

// PrincipalID parses the subject claim.
func (c *Claims) PrincipalID() uint64 {
	id, _ := strconv.ParseUint(c.Subject, 10, 64)
	return id
}

// Identity returns the claim set the token was issued from.
func (c *Claims) Identity() Identity {
	return Identity{PrincipalID: c.PrincipalID(), Email: c.Email, Role: c.Role, Permissions: c.Permissions}
}

// Token is a signed token string and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Config carries keys and lifetimes.  AccessKey and RefreshKey must differ.
type Config struct {
	AccessKey  []byte
	RefreshKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	VerifyTTL  time.Duration
	ResetTTL   time.Duration
}

// Codec is safe for concurrent use.
type Codec struct {
	cfg Config
	now func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessKey) == 0 || len(cfg.RefreshKey) == 0 {
		return nil, errors.New("token: access and refresh keys are required")
	}
	if string(cfg.AccessKey) == string(cfg.RefreshKey) {
		return nil, errors.New("token: access and refresh keys must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.VerifyTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}
	return &Codec{cfg: cfg, now: time.Now}, nil
}

// WithClock replaces the time source.  Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// IssueAccess signs id with the access key and the access lifetime.
func (c *Codec) IssueAccess(id Identity) (Token, error) {
	claims := c.base(id, Access, c.cfg.AccessTTL)
	claims.Email = id.Email
	claims.Role = id.Role
	claims.Permissions = id.Permissions
	return c.sign(claims, c.cfg.AccessKey)
}

// IssueRefresh signs the subject with the refresh key and the refresh
// lifetime.  Every refresh token carries a fresh jti so two tokens issued
// in the same second still differ.
func (c *Codec) IssueRefresh(id Identity) (Token, error) {
	return c.sign(c.base(id, Refresh, c.cfg.RefreshTTL), c.cfg.RefreshKey)
}

// IssuePurpose signs a single-purpose token with the access key.
func (c *Codec) IssuePurpose(id Identity, p Purpose) (Token, error) {
	var ttl time.Duration
	switch p {
	case PurposeEmailVerification:
		ttl = c.cfg.VerifyTTL
	case PurposePasswordReset:
		ttl = c.cfg.ResetTTL
	default:
		return Token{}, errors.New("token: unknown purpose")
	}
	claims := c.base(id, Access, ttl)
	claims.Email = id.Email
	claims.Purpose = p
	return c.sign(claims, c.cfg.AccessKey)
}

// Verify checks signature, structure, issuer and expiry against the key of
// class.  Access verification rejects purpose tokens.
func (c *Codec) Verify(raw string, class KeyClass) (*Claims, error) {
	claims, err := c.parse(raw, class)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, apperr.InvalidToken("token not valid for this use")
	}
	return claims, nil
}

// VerifyPurpose checks generic validity and that the token was minted for p.
func (c *Codec) VerifyPurpose(raw string, p Purpose) (*Claims, error) {
	claims, err := c.parse(raw, Access)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != p {
		return nil, apperr.InvalidToken("token not valid for this use")
	}
	return claims, nil
}

func (c *Codec) base(id Identity, class KeyClass, ttl time.Duration) *Claims {
	now := c.now().UTC()
	return &Claims{
		Class: class.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(id.PrincipalID, 10),
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (c *Codec) sign(claims *Claims, key []byte) (Token, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (c *Codec) parse(raw string, class KeyClass) (*Claims, error) {
	if raw == "" {
		return nil, apperr.InvalidToken("")
	}
	key := c.cfg.AccessKey
	if class == Refresh {
		key = c.cfg.RefreshKey
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindInvalidToken, "token expired", err)
		}
		return nil, apperr.Wrap(apperr.KindInvalidToken, "invalid token", err)
	}
	if !tok.Valid || claims.Class != class.String() || claims.PrincipalID() == 0 {
		return nil, apperr.InvalidToken("")
	}
	return claims, nil
}
