package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
	"github.com/iliyamo/furniture-storefront/internal/config"
	"github.com/iliyamo/furniture-storefront/internal/logger"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]*model.OTPChallenge
}

func newMemStore() *memStore { return &memStore{rows: map[string]*model.OTPChallenge{}} }

func (s *memStore) Create(_ context.Context, ch *model.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ch
	s.rows[ch.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*model.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (s *memStore) IncrementAttempts(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.rows[id]; ok {
		ch.AttemptCount++
	}
	return nil
}

func (s *memStore) MarkUsed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rows[id]
	if !ok || ch.Used || ch.AttemptCount >= ch.MaxAttempts {
		return false, nil
	}
	ch.Used = true
	return true, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

type recordingSender struct {
	to, code string
	purpose  model.OTPPurpose
	err      error
}

func (r *recordingSender) SendOTP(_ context.Context, to, code string, purpose model.OTPPurpose) error {
	r.to, r.code, r.purpose = to, code, purpose
	return r.err
}

type fixture struct {
	m     *Manager
	store *memStore
	email *recordingSender
	phone *recordingSender
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		email: &recordingSender{},
		phone: &recordingSender{},
		clock: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	f.m = NewManager(f.store, map[model.OTPChannel]Sender{
		model.ChannelEmail: f.email,
		model.ChannelPhone: f.phone,
	}, config.OTPConfig{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 3}, logger.Discard())
	f.m.now = func() time.Time { return f.clock }
	return f
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestIssueDeliversAndStoresHash(t *testing.T) {
	f := newFixture(t)
	issued, err := f.m.Issue(context.Background(), "user@x.com", model.ChannelEmail, model.PurposeLogin)
	require.NoError(t, err)

	assert.Equal(t, "user@x.com", f.email.to)
	assert.Len(t, f.email.code, 6)
	assert.Equal(t, model.PurposeLogin, f.email.purpose)
	assert.Equal(t, f.clock.Add(10*time.Minute), issued.ExpiresAt)

	row, _ := f.store.Get(context.Background(), issued.ID)
	require.NotNil(t, row)
	assert.NotEqual(t, f.email.code, row.CodeHash)
	assert.Equal(t, 3, row.MaxAttempts)
	assert.Equal(t, 0, row.AttemptCount)
}

func TestIssueRollsBackOnDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.phone.err = errors.New("twilio down")

	_, err := f.m.Issue(context.Background(), "+15550100", model.ChannelPhone, model.PurposeSignup)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
	assert.Empty(t, f.store.rows)
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.Issue(ctx, "", model.ChannelEmail, model.PurposeLogin)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = f.m.Issue(ctx, "a@b.c", model.ChannelEmail, "bogus")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = f.m.Issue(ctx, "a@b.c", "carrier-pigeon", model.PurposeLogin)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestVerifySingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.m.Issue(ctx, "user@x.com", model.ChannelEmail, model.PurposeLogin)
	require.NoError(t, err)

	ch, err := f.m.Verify(ctx, issued.ID, f.email.code)
	require.NoError(t, err)
	assert.Equal(t, "user@x.com", ch.Identifier)
	assert.Equal(t, model.PurposeLogin, ch.Purpose)

	for i := 0; i < 3; i++ {
		_, err = f.m.Verify(ctx, issued.ID, f.email.code)
		assert.True(t, apperr.IsKind(err, apperr.KindOTPUsed))
	}
}

func TestVerifyAttemptExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.m.Issue(ctx, "user@x.com", model.ChannelEmail, model.PurposeLogin)
	require.NoError(t, err)
	bad := wrongCode(f.email.code)

	for i := 0; i < 3; i++ {
		_, err = f.m.Verify(ctx, issued.ID, bad)
		require.True(t, apperr.IsKind(err, apperr.KindOTPMismatch), "attempt %d: %v", i+1, err)
	}

	_, err = f.m.Verify(ctx, issued.ID, f.email.code)
	assert.True(t, apperr.IsKind(err, apperr.KindOTPTooMany))
	assert.True(t, IsDead(err))
}

func TestVerifyMismatchReportsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.m.Issue(ctx, "user@x.com", model.ChannelEmail, model.PurposeLogin)
	require.NoError(t, err)

	_, err = f.m.Verify(ctx, issued.ID, wrongCode(f.email.code))
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 2, e.Fields["attempts_remaining"])

	_, err = f.m.Verify(ctx, issued.ID, f.email.code)
	assert.NoError(t, err)
}

func TestVerifyExpiryCheckedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.m.Issue(ctx, "user@x.com", model.ChannelEmail, model.PurposeLogin)
	require.NoError(t, err)
	code := f.email.code

	_, err = f.m.Verify(ctx, issued.ID, code)
	require.NoError(t, err)

	f.clock = f.clock.Add(10 * time.Minute)
	_, err = f.m.Verify(ctx, issued.ID, code)
	assert.True(t, apperr.IsKind(err, apperr.KindOTPExpired))
}

func TestVerifyUnknownChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.Verify(ctx, "not-a-uuid", "123456")
	assert.True(t, apperr.IsKind(err, apperr.KindOTPNotFound))
	_, err = f.m.Verify(ctx, "6f1c2a9e-1f0b-4c55-9a57-5e0b8f0d8a11", "123456")
	assert.True(t, apperr.IsKind(err, apperr.KindOTPNotFound))
	_, err = f.m.Verify(ctx, "", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestVerifyConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.m.Issue(ctx, "user@x.com", model.ChannelEmail, model.PurposeLogin)
	require.NoError(t, err)
	code := f.email.code

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.m.Verify(ctx, issued.ID, code); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
