package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/utils"
)

// SessionRepo persists one row per issued refresh token.  Tokens are looked
// up by their SHA-256 digest; rows past expires_at are invisible to
// FindByToken and removed by DeleteExpired.
type SessionRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db, now: utcNow} }

// Create inserts one session for refreshToken.  A principal may hold many
// sessions at once.
func (r *SessionRepo) Create(ctx context.Context, principalID uint64, refreshToken, deviceInfo string, expiresAt time.Time) (*model.Session, error) {
	s := &model.Session{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		TokenHash:   utils.HashToken(refreshToken),
		DeviceInfo:  truncate(deviceInfo, 255),
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   r.now(),
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, principal_id, token_hash, device_info, expires_at, created_at) VALUES (?,?,?,?,?,?)",
		s.ID, s.PrincipalID, s.TokenHash, s.DeviceInfo, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// FindByToken returns the live session for refreshToken, or nil.
func (r *SessionRepo) FindByToken(ctx context.Context, refreshToken string) (*model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, principal_id, token_hash, device_info, expires_at, created_at FROM sessions WHERE token_hash=? AND expires_at > ? LIMIT 1",
		utils.HashToken(refreshToken), r.now()).
		Scan(&s.ID, &s.PrincipalID, &s.TokenHash, &s.DeviceInfo, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &s, nil
}

// DeleteByToken removes the session for refreshToken and reports whether a
// row was deleted.  Two concurrent refreshes of one token see exactly one true.
func (r *SessionRepo) DeleteByToken(ctx context.Context, refreshToken string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash=?", utils.HashToken(refreshToken))
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

// DeleteAllForPrincipal revokes every session of the principal.
func (r *SessionRepo) DeleteAllForPrincipal(ctx context.Context, principalID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE principal_id=?", principalID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired removes sessions whose expires_at has passed.
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", r.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
