package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/utils"
)

var fixedNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var principalRowCols = []string{"id", "email", "phone", "name", "role", "is_active", "is_verified", "password_hash", "created_at", "updated_at"}

func TestUserRepo_FindByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	rows := sqlmock.NewRows(principalRowCols).
		AddRow(uint64(7), "user@x.com", nil, "Ana", "customer", true, true, nil, fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+principalColumns+" FROM principals WHERE email=? LIMIT 1")).
		WithArgs("user@x.com").
		WillReturnRows(rows)

	p, err := repo.FindByEmail(context.Background(), "  User@X.com ")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.EqualValues(t, 7, p.ID)
	assert.Equal(t, model.RoleCustomer, p.Role)
	assert.Equal(t, "", p.Phone)
	assert.Equal(t, "", p.PasswordHash)
	assert.True(t, p.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_FindByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM principals WHERE id=").
		WithArgs(uint64(99)).
		WillReturnError(sql.ErrNoRows)

	p, err := repo.FindByID(context.Background(), 99)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestUserRepo_FindByIDStoreError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM principals WHERE id=").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByID(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUserRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("INSERT INTO principals").
		WithArgs("dup@x.com", nil, "Dup", "customer", true, false, nil).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := repo.Create(context.Background(), &model.Principal{Email: "Dup@x.com", Name: "Dup", Role: model.RoleCustomer, IsActive: true})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestUserRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("INSERT INTO principals").
		WithArgs(nil, "+15550100", nil, "vendor", true, true, nil).
		WillReturnResult(sqlmock.NewResult(12, 1))

	id, err := repo.Create(context.Background(), &model.Principal{Phone: " +15550100 ", Role: model.RoleVendor, IsActive: true, IsVerified: true})
	require.NoError(t, err)
	assert.EqualValues(t, 12, id)
}

func TestUserRepo_SetActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE principals SET is_active=?, updated_at=UTC_TIMESTAMP() WHERE id=?")).
		WithArgs(false, uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE principals SET is_active").
		WithArgs(false, uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetActive(context.Background(), 3, false))
	err := repo.SetActive(context.Background(), 4, false)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_CreateAndFind(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	repo.now = func() time.Time { return fixedNow }
	exp := fixedNow.Add(7 * 24 * time.Hour)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), uint64(7), utils.HashToken("refresh-raw"), "curl/8", exp, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s, err := repo.Create(context.Background(), 7, "refresh-raw", "curl/8", exp)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, utils.HashToken("refresh-raw"), s.TokenHash)

	rows := sqlmock.NewRows([]string{"id", "principal_id", "token_hash", "device_info", "expires_at", "created_at"}).
		AddRow(s.ID, uint64(7), s.TokenHash, "curl/8", exp, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE token_hash=? AND expires_at > ?")).
		WithArgs(utils.HashToken("refresh-raw"), fixedNow).
		WillReturnRows(rows)

	found, err := repo.FindByToken(context.Background(), "refresh-raw")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.EqualValues(t, 7, found.PrincipalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_FindByTokenMissingOrExpired(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery("FROM sessions WHERE token_hash").WillReturnError(sql.ErrNoRows)

	s, err := repo.FindByToken(context.Background(), "gone")
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestSessionRepo_DeleteByToken(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token_hash=?")).
		WithArgs(utils.HashToken("tok")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token_hash=?")).
		WithArgs(utils.HashToken("tok")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.DeleteByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DeleteByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionRepo_DeleteAllAndExpired(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	repo.now = func() time.Time { return fixedNow }

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE principal_id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= ?")).
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteAllForPrincipal(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

var otpRowCols = []string{"id", "identifier", "code_hash", "channel", "purpose", "expires_at", "used", "attempt_count", "max_attempts", "created_at"}

func TestOTPRepo_GetAndMarkUsed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOTPRepo(db)

	mock.ExpectQuery("FROM otp_challenges WHERE id=").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(otpRowCols).
			AddRow("c1", "user@x.com", "h", "email", "login", fixedNow.Add(10*time.Minute), false, 1, 3, fixedNow))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE otp_challenges SET used = 1 WHERE id=? AND used = 0 AND attempt_count < max_attempts")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE otp_challenges SET used = 1").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ch, err := repo.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, model.ChannelEmail, ch.Channel)
	assert.Equal(t, model.PurposeLogin, ch.Purpose)
	assert.Equal(t, 1, ch.AttemptCount)

	ok, err := repo.MarkUsed(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkUsed(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOTPRepo_IncrementAndDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOTPRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE otp_challenges SET attempt_count = attempt_count + 1 WHERE id=?")).
		WithArgs("c2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM otp_challenges WHERE id=?")).
		WithArgs("c2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementAttempts(context.Background(), "c2"))
	require.NoError(t, repo.Delete(context.Background(), "c2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var couponRowCols = []string{"id", "code", "description", "discount_type", "value", "min_order_cents", "usage_limit", "used_count", "is_active", "starts_at", "expires_at", "created_at"}

func TestCouponRepo_ListFiltersForCustomers(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCouponRepo(db)
	repo.now = func() time.Time { return fixedNow }

	mock.ExpectQuery("FROM coupons WHERE is_active = 1").
		WithArgs(fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows(couponRowCols).
			AddRow(uint64(2), "SOFA10", "10% off sofas", "percent", int64(10), int64(0), 0, 0, true, nil, nil, fixedNow))

	list, err := repo.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "SOFA10", list[0].Code)
	assert.Nil(t, list[0].ExpiresAt)
}

func TestCouponRepo_ListAll(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCouponRepo(db)

	exp := fixedNow.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + couponColumns + " FROM coupons ORDER BY id DESC")).
		WillReturnRows(sqlmock.NewRows(couponRowCols).
			AddRow(uint64(3), "OLD", "", "fixed", int64(500), int64(1000), 10, 10, false, nil, exp, fixedNow).
			AddRow(uint64(2), "SOFA10", "", "percent", int64(10), int64(0), 0, 0, true, nil, nil, fixedNow))

	list, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].ExpiresAt)
	assert.Equal(t, exp, *list[0].ExpiresAt)
}

func TestCouponRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCouponRepo(db)

	mock.ExpectExec("INSERT INTO coupons").
		WillReturnError(&mysql.MySQLError{Number: 1062})

	_, err := repo.Create(context.Background(), &model.Coupon{Code: "sofa10", DiscountType: model.DiscountPercent, Value: 10})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}
