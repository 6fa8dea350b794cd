// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

import "time"

// AuthEventsQueue is the durable queue carrying AuthEvent messages.
const AuthEventsQueue = "auth.events"

// AuthEventType names what happened to a principal.
type AuthEventType string

const (
	EventLogin           AuthEventType = "login"
	EventSignup          AuthEventType = "signup"
	EventLogout          AuthEventType = "logout"
	EventLogoutAll       AuthEventType = "logout_all"
	EventRefresh         AuthEventType = "refresh"
	EventPasswordReset   AuthEventType = "password_reset"
	EventEmailVerified   AuthEventType = "email_verified"
	EventDeactivated     AuthEventType = "deactivated"
	EventReactivated     AuthEventType = "reactivated"
	EventRoleChanged     AuthEventType = "role_changed"
	EventSessionsRevoked AuthEventType = "sessions_revoked"
)

// AuthEvent is published after a security-relevant change so downstream
// consumers can audit it without querying the primary database.
type AuthEvent struct {
	Type        AuthEventType `json:"type"`
	PrincipalID uint64        `json:"principal_id"`
	ActorID     uint64        `json:"actor_id,omitempty"` // admin performing the change, if any
	Method      string        `json:"method,omitempty"`   // password | otp_email | otp_phone
	Role        string        `json:"role,omitempty"`
	Device      string        `json:"device,omitempty"`
	IP          string        `json:"ip,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}
