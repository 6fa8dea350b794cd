package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

const principalColumns = "id,email,phone,name,role,is_active,is_verified,password_hash,created_at,updated_at"

// UserRepo is the credential store adapter over the principals table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

type rowScanner interface{ Scan(dest ...any) error }

func scanPrincipal(row rowScanner) (*model.Principal, error) {
	var (
		p                  model.Principal
		email, phone, name sql.NullString
		role, passwordHash sql.NullString
	)
	err := row.Scan(&p.ID, &email, &phone, &name, &role, &p.IsActive, &p.IsVerified, &passwordHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Email = email.String
	p.Phone = phone.String
	p.Name = name.String
	p.Role = model.Role(role.String)
	p.PasswordHash = passwordHash.String
	return &p, nil
}

func (r *UserRepo) findOne(ctx context.Context, where string, arg any) (*model.Principal, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+principalColumns+" FROM principals WHERE "+where+" LIMIT 1", arg)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query principal: %w", err)
	}
	return p, nil
}

// FindByID fetches a principal by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.Principal, error) {
	return r.findOne(ctx, "id=?", id)
}

// FindByEmail fetches a principal by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.Principal, error) {
	return r.findOne(ctx, "email=?", NormalizeEmail(email))
}

// FindByPhone fetches a principal by phone number as stored.
func (r *UserRepo) FindByPhone(ctx context.Context, phone string) (*model.Principal, error) {
	return r.findOne(ctx, "phone=?", strings.TrimSpace(phone))
}

// Create inserts p and returns its id.  A duplicate email or phone is
// reported as a Conflict.
func (r *UserRepo) Create(ctx context.Context, p *model.Principal) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO principals (email, phone, name, role, is_active, is_verified, password_hash) VALUES (?,?,?,?,?,?,?)",
		nullable(NormalizeEmail(p.Email)), nullable(strings.TrimSpace(p.Phone)), nullable(p.Name),
		string(p.Role), p.IsActive, p.IsVerified, nullable(p.PasswordHash))
	if err != nil {
		if isDuplicate(err) {
			return 0, apperr.Conflict("account already exists")
		}
		return 0, fmt.Errorf("insert principal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert principal: %w", err)
	}
	return uint64(id), nil
}

// SetActive enables or soft-disables an account.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	return r.update(ctx, "is_active=?", active, id)
}

// SetRole changes an account's role.
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role model.Role) error {
	return r.update(ctx, "role=?", string(role), id)
}

// MarkVerified flags the account's email or phone as verified.
func (r *UserRepo) MarkVerified(ctx context.Context, id uint64) error {
	return r.update(ctx, "is_verified=?", true, id)
}

// UpdatePassword replaces the password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return r.update(ctx, "password_hash=?", hash, id)
}

// update relies on the connection reporting matched rows (see
// database.DSN), so zero rows means the id does not exist.
func (r *UserRepo) update(ctx context.Context, set string, val any, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE principals SET "+set+", updated_at=UTC_TIMESTAMP() WHERE id=?", val, id)
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func nullable(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }
