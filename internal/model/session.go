package model

import "time"

// Session is one row per issued refresh token.  The raw token is never
// stored; TokenHash is its SHA-256 hex digest.  A refresh token is live only
// while its row exists and ExpiresAt is in the future.
type Session struct {
	ID          string
	PrincipalID uint64
	TokenHash   string
	DeviceInfo  string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
