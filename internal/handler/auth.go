package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/middleware"
	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/otp"
	"github.com/iliyamo/furniture-storefront/internal/service"
	"github.com/iliyamo/furniture-storefront/internal/token"
)

// Accounts is the account service as seen by the HTTP layer.
type Accounts interface {
	RequestOTP(ctx context.Context, identifier string, purpose model.OTPPurpose) (*otp.Issued, error)
	VerifyOTP(ctx context.Context, otpID, code, name string, meta service.Meta) (*service.OTPResult, error)
	Register(ctx context.Context, email, password, name string, meta service.Meta) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string, meta service.Meta) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, meta service.Meta) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, principalID uint64) (int64, error)
	VerifyEmail(ctx context.Context, token string) (*model.Principal, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	GetPrincipal(ctx context.Context, id uint64) (*model.Principal, error)
	SetActive(ctx context.Context, actorID, targetID uint64, active bool) error
	SetRole(ctx context.Context, actorID, targetID uint64, role model.Role) error
}

// AuthHandler serves /v1/auth and /v1/me.
type AuthHandler struct {
	Accounts Accounts
	Timeout  time.Duration
}

func NewAuthHandler(a Accounts, timeout time.Duration) *AuthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuthHandler{Accounts: a, Timeout: timeout}
}

// ----- DTOs -----

type otpRequestReq struct {
	Identifier string `json:"identifier"`
	Purpose    string `json:"purpose"`
}

type otpVerifyReq struct {
	OTPID  string `json:"otp_id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Device string `json:"device"`
}

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Device   string `json:"device"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
	Device       string `json:"device"`
}

type tokenReq struct {
	Token string `json:"token"`
}

type forgotReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID          uint64   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	IsVerified  bool     `json:"is_verified"`
}

func toUser(p *model.Principal) userPart {
	return userPart{
		ID:          p.ID,
		Email:       p.Email,
		Phone:       p.Phone,
		Name:        p.Name,
		Role:        string(p.Role),
		Permissions: p.Role.Permissions(),
		IsActive:    p.IsActive,
		IsVerified:  p.IsVerified,
	}
}

func toToken(t token.Token) tokenPart { return tokenPart{Token: t.Value, Expires: t.ExpiresAt} }

func authBody(res *service.AuthResult) echo.Map {
	return echo.Map{
		"user":    toUser(res.Principal),
		"token":   res.Access.Value,
		"access":  toToken(res.Access),
		"refresh": toToken(res.Refresh),
	}
}

func (h *AuthHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

func meta(c echo.Context, device string) service.Meta {
	device = strings.TrimSpace(device)
	if device == "" {
		device = c.Request().UserAgent()
	}
	return service.Meta{Device: device, IP: c.RealIP()}
}

// RequestOTP: POST /v1/auth/otp/request
func (h *AuthHandler) RequestOTP(c echo.Context) error {
	var req otpRequestReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Purpose == "" {
		return apperr.Validation("identifier and purpose are required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	issued, err := h.Accounts.RequestOTP(ctx, req.Identifier, model.OTPPurpose(strings.ToLower(req.Purpose)))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{
		"otp_id":     issued.ID,
		"channel":    issued.Channel,
		"expires_at": issued.ExpiresAt,
	})
}

// VerifyOTP: POST /v1/auth/otp/verify
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req otpVerifyReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.OTPID, req.Code = strings.TrimSpace(req.OTPID), strings.TrimSpace(req.Code)
	if req.OTPID == "" || req.Code == "" {
		return apperr.Validation("otp_id and code are required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Accounts.VerifyOTP(ctx, req.OTPID, req.Code, req.Name, meta(c, req.Device))
	if err != nil {
		return err
	}
	if res.ResetToken != nil {
		return ok(c, http.StatusOK, echo.Map{"purpose": res.Purpose, "reset_token": toToken(*res.ResetToken)})
	}
	body := authBody(res.Auth)
	body["purpose"] = res.Purpose
	status := http.StatusOK
	if res.Purpose == model.PurposeSignup {
		status = http.StatusCreated
	}
	return ok(c, status, body)
}

// Register: POST /v1/auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperr.Validation("email and password are required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Accounts.Register(ctx, req.Email, req.Password, req.Name, meta(c, req.Device))
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, authBody(res))
}

// Login: POST /v1/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Accounts.Login(ctx, req.Email, req.Password, meta(c, req.Device))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, authBody(res))
}

// Refresh: POST /v1/auth/refresh rotates the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Accounts.Refresh(ctx, req.RefreshToken, service.Meta{Device: strings.TrimSpace(req.Device), IP: c.RealIP()})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, authBody(res))
}

// Logout: POST /v1/auth/logout ends the session of the given refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Accounts.Logout(ctx, req.RefreshToken); err != nil {
		return err
	}
	return ok(c, http.StatusOK, nil)
}

// LogoutAll: POST /v1/auth/logout-all ends every session of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return apperr.AuthRequired("")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	n, err := h.Accounts.LogoutAll(ctx, p.ID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"revoked": n})
}

// VerifyEmail: POST /v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req tokenReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Token) == "" {
		return apperr.Validation("token is required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	p, err := h.Accounts.VerifyEmail(ctx, req.Token)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"user": toUser(p)})
}

// ForgotPassword: POST /v1/auth/password/forgot always answers 200.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Accounts.ForgotPassword(ctx, req.Email); err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"message": "if the account exists, a reset link has been sent"})
}

// ResetPassword: POST /v1/auth/password/reset
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Token) == "" || req.Password == "" {
		return apperr.Validation("token and password are required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Accounts.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return err
	}
	return ok(c, http.StatusOK, nil)
}

// Me: GET /v1/me
func (h *AuthHandler) Me(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return apperr.AuthRequired("")
	}
	return ok(c, http.StatusOK, echo.Map{"user": toUser(p)})
}
