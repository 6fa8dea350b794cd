package model

import "time"

// OTPChannel is the delivery channel of a challenge.
type OTPChannel string

const (
	ChannelEmail OTPChannel = "email"
	ChannelPhone OTPChannel = "phone"
)

// OTPPurpose binds a challenge to the flow that requested it.
type OTPPurpose string

const (
	PurposeLogin         OTPPurpose = "login"
	PurposeSignup        OTPPurpose = "signup"
	PurposePasswordReset OTPPurpose = "password_reset"
)

func (p OTPPurpose) Valid() bool {
	return p == PurposeLogin || p == PurposeSignup || p == PurposePasswordReset
}

// OTPChallenge models a row in otp_challenges.  CodeHash is the SHA-256 hex
// digest of the code.  Used flips to true once and never back; once
// AttemptCount reaches MaxAttempts the challenge is dead.
type OTPChallenge struct {
	ID           string
	Identifier   string
	CodeHash     string
	Channel      OTPChannel
	Purpose      OTPPurpose
	ExpiresAt    time.Time
	Used         bool
	AttemptCount int
	MaxAttempts  int
	CreatedAt    time.Time
}
