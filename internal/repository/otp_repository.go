package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/furniture-storefront/internal/model"
)

// OTPRepo stores OTP challenges.  Attempt counting and consumption are
// single-statement updates so concurrent verifications of one challenge
// cannot lose an increment or both succeed.
type OTPRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewOTPRepo(db *sql.DB) *OTPRepo { return &OTPRepo{DB: db, now: utcNow} }

func (r *OTPRepo) Create(ctx context.Context, ch *model.OTPChallenge) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO otp_challenges (id, identifier, code_hash, channel, purpose, expires_at, used, attempt_count, max_attempts, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		ch.ID, ch.Identifier, ch.CodeHash, string(ch.Channel), string(ch.Purpose), ch.ExpiresAt.UTC(),
		ch.Used, ch.AttemptCount, ch.MaxAttempts, ch.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert otp challenge: %w", err)
	}
	return nil
}

func (r *OTPRepo) Get(ctx context.Context, id string) (*model.OTPChallenge, error) {
	var (
		ch      model.OTPChallenge
		channel string
		purpose string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, identifier, code_hash, channel, purpose, expires_at, used, attempt_count, max_attempts, created_at
		 FROM otp_challenges WHERE id=? LIMIT 1`, id).
		Scan(&ch.ID, &ch.Identifier, &ch.CodeHash, &channel, &purpose, &ch.ExpiresAt, &ch.Used, &ch.AttemptCount, &ch.MaxAttempts, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query otp challenge: %w", err)
	}
	ch.Channel = model.OTPChannel(channel)
	ch.Purpose = model.OTPPurpose(purpose)
	return &ch, nil
}

// IncrementAttempts records one failed verification.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, "UPDATE otp_challenges SET attempt_count = attempt_count + 1 WHERE id=?", id); err != nil {
		return fmt.Errorf("increment otp attempts: %w", err)
	}
	return nil
}

// MarkUsed consumes the challenge if it is still unused and within its
// attempt budget.  It reports false when another request got there first.
func (r *OTPRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE otp_challenges SET used = 1 WHERE id=? AND used = 0 AND attempt_count < max_attempts", id)
	if err != nil {
		return false, fmt.Errorf("mark otp used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark otp used: %w", err)
	}
	return n == 1, nil
}

func (r *OTPRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM otp_challenges WHERE id=?", id); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges whose expiry has passed.
func (r *OTPRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM otp_challenges WHERE expires_at <= ?", r.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired otp challenges: %w", err)
	}
	return res.RowsAffected()
}
