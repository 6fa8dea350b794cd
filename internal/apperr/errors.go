// Package apperr defines the error taxonomy shared by the gate, the OTP
// manager and the HTTP handlers. Every error that crosses a handler boundary
// is either an *Error or is reported to the client as a generic 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and client messaging.
type Kind string

const (
	KindAuthRequired     Kind = "authentication_required"
	KindInvalidToken     Kind = "invalid_token"
	KindPrincipalMissing Kind = "principal_not_found"
	KindDeactivated      Kind = "account_deactivated"
	KindForbidden        Kind = "forbidden"
	KindRateLimited      Kind = "rate_limited"
	KindValidation       Kind = "validation_error"
	KindConflict         Kind = "conflict"
	KindNotFound         Kind = "not_found"
	KindOTPNotFound      Kind = "otp_not_found"
	KindOTPExpired       Kind = "otp_expired"
	KindOTPUsed          Kind = "otp_already_used"
	KindOTPTooMany       Kind = "otp_too_many_attempts"
	KindOTPMismatch      Kind = "otp_code_mismatch"
	KindUnavailable      Kind = "unavailable"
	KindInternal         Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindAuthRequired:     http.StatusUnauthorized,
	KindInvalidToken:     http.StatusUnauthorized,
	KindPrincipalMissing: http.StatusUnauthorized,
	KindDeactivated:      http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindRateLimited:      http.StatusTooManyRequests,
	KindValidation:       http.StatusBadRequest,
	KindConflict:         http.StatusConflict,
	KindNotFound:         http.StatusNotFound,
	KindOTPNotFound:      http.StatusBadRequest,
	KindOTPExpired:       http.StatusBadRequest,
	KindOTPUsed:          http.StatusBadRequest,
	KindOTPTooMany:       http.StatusTooManyRequests,
	KindOTPMismatch:      http.StatusBadRequest,
	KindUnavailable:      http.StatusServiceUnavailable,
	KindInternal:         http.StatusInternalServerError,
}

// Status returns the HTTP status code for k. Unknown kinds map to 500.
func Status(k Kind) int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a classified application error. Message is safe to show to
// clients; Err carries the underlying cause for server-side logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so errors.Is(err, apperr.InvalidToken("")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// With attaches an extra response field and returns e.
func (e *Error) With(key string, val any) *Error {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	e.Fields[key] = val
	return e
}

// New builds an *Error of the given kind.
func New(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

// Wrap builds an *Error of the given kind around cause.
func Wrap(k Kind, msg string, cause error) *Error { return &Error{Kind: k, Message: msg, Err: cause} }

// KindOf reports the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func AuthRequired(msg string) *Error {
	if msg == "" {
		msg = "authentication required"
	}
	return New(KindAuthRequired, msg)
}

func InvalidToken(msg string) *Error {
	if msg == "" {
		msg = "invalid token"
	}
	return New(KindInvalidToken, msg)
}

func PrincipalNotFound() *Error { return New(KindPrincipalMissing, "account not found") }

func Deactivated() *Error { return New(KindDeactivated, "account deactivated") }

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "forbidden"
	}
	return New(KindForbidden, msg)
}

func Validation(msg string) *Error { return New(KindValidation, msg) }

func Conflict(msg string) *Error { return New(KindConflict, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func Internal(msg string, cause error) *Error { return Wrap(KindInternal, msg, cause) }
