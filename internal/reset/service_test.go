package reset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager/repomanagertest"
	sessionentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
)

type plainHasher struct{}

func (plainHasher) Hash(s string) (string, error) { return "hashed:" + s, nil }
func (plainHasher) Verify(hash, s string) bool    { return hash == "hashed:"+s }
func (plainHasher) NeedsRehash(hash string) bool  { return false }

// seqSecrets hands out 11111N / reset-token-N so successive pairs differ.
type seqSecrets struct{ otp, tok int }

func (g *seqSecrets) OTP() (string, error) {
	g.otp++
	return fmt.Sprintf("11111%d", g.otp), nil
}

func (g *seqSecrets) Token() (string, error) {
	g.tok++
	return fmt.Sprintf("reset-token-%d", g.tok), nil
}

type recordingMailer struct {
	err  error
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, body)
	return nil
}

type fixture struct {
	svc    *Service
	store  *repomanagertest.Store
	mock   sqlmock.Sqlmock
	clock  *clockwork.FakeClock
	mailer *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := repomanagertest.New()
	store.Accounts[7] = &accountentity.User{
		ID: 7, Name: "Bob", Email: "bob@example.com", PasswordHash: "hashed:Oldpass1!", Role: accountentity.RoleUser,
	}
	mailer := &recordingMailer{}
	svc := NewService(Deps{
		DB: sqlx.NewDb(db, "postgres"), Repos: store, Hasher: plainHasher{},
		Secrets: &seqSecrets{}, Mailer: mailer, Clock: clock,
	})
	return &fixture{svc: svc, store: store, mock: mock, clock: clock, mailer: mailer}
}

func (f *fixture) expectCommit(n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

var ctx = context.Background()

func TestForgotPassword_OnlyLatestPairIsUsable(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(5)

	first, err := f.svc.ForgotPassword(ctx, "Bob@Example.com")
	require.NoError(t, err)
	second, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)
	require.True(t, first.Delivered)
	assert.Empty(t, first.OTP)
	assert.NotEqual(t, first.ResetToken, second.ResetToken)
	require.Len(t, f.mailer.sent, 2)
	assert.Contains(t, f.mailer.sent[1], "111112")

	err = f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "111111", ResetToken: first.ResetToken, NewPassword: "Newpass1!"})
	require.ErrorIs(t, err, apperr.ErrInvalidOrExpired)
	assert.EqualError(t, err, "Invalid or expired reset request")

	err = f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "111112", ResetToken: second.ResetToken, NewPassword: "Newpass1!"})
	require.NoError(t, err)
	assert.Equal(t, "hashed:Newpass1!", f.store.Accounts[7].PasswordHash)

	err = f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "111112", ResetToken: second.ResetToken, NewPassword: "Other1pass!"})
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpired)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestForgotPassword_StoresOnlyDigests(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(1)

	issued, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, f.store.ResetRows, 1)
	row := f.store.ResetRows[0]
	assert.NotEqual(t, issued.ResetToken, row.TokenHash)
	assert.Equal(t, "hashed:111111", row.OTPHash)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), row.ExpiresAt)
	assert.NotEmpty(t, row.ID)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ForgotPassword(ctx, "ghost@example.com")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.EqualError(t, err, "User not found with this email")
	assert.Empty(t, f.store.ResetRows)

	_, err = f.svc.ForgotPassword(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestForgotPassword_MailFailureReturnsOTP(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(2)
	f.mailer.err = errors.New("smtp down")

	issued, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, issued.Delivered)
	assert.Equal(t, "111111", issued.OTP)

	require.NoError(t, f.svc.ResetPassword(ctx, ResetInput{
		Email: "bob@example.com", OTP: issued.OTP, ResetToken: issued.ResetToken, NewPassword: "Newpass1!",
	}))
}

func TestResetPassword_WrongOTP(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(3)
	issued, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "999999", ResetToken: issued.ResetToken, NewPassword: "Newpass1!"})
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpired)

	err = f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "111111", ResetToken: issued.ResetToken, NewPassword: "Newpass1!"})
	assert.NoError(t, err)
}

func TestResetPassword_ExpiredMarksUsed(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(3)
	issued, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	in := ResetInput{Email: "bob@example.com", OTP: "111111", ResetToken: issued.ResetToken, NewPassword: "Newpass1!"}
	err = f.svc.ResetPassword(ctx, in)
	require.ErrorIs(t, err, apperr.ErrExpired)
	assert.EqualError(t, err, "OTP has expired")
	assert.True(t, f.store.ResetRows[0].Used)

	err = f.svc.ResetPassword(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpired)
	assert.Equal(t, "hashed:Oldpass1!", f.store.Accounts[7].PasswordHash)
}

func TestResetPassword_WeakPasswordRollsBack(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(1)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.expectCommit(1)
	issued, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "111111", ResetToken: issued.ResetToken, NewPassword: "short"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, f.store.ResetRows[0].Used)

	require.NoError(t, f.svc.ResetPassword(ctx, ResetInput{
		Email: "bob@example.com", OTP: "111111", ResetToken: issued.ResetToken, NewPassword: "Newpass1!",
	}))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResetPassword_OverlongPasswordIsValidationError(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(1)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	issued, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)

	long := "Abcdef1!" + strings.Repeat("a", 70)
	err = f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "111111", ResetToken: issued.ResetToken, NewPassword: long})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.EqualError(t, err, "Password must be at most 72 bytes long")
	assert.Equal(t, 400, apperr.HTTPStatus(err))
	assert.False(t, f.store.ResetRows[0].Used)
	assert.Equal(t, "hashed:Oldpass1!", f.store.Accounts[7].PasswordHash)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResetPassword_LeavesSessionsActive(t *testing.T) {
	f := newFixture(t)
	f.expectCommit(2)
	f.store.SessionRows = append(f.store.SessionRows, &sessionentity.LoginSession{
		ID: "s1", UserID: 7, SessionToken: "tok", IsActive: true, LoginTime: f.clock.Now(),
	})
	issued, err := f.svc.ForgotPassword(ctx, "bob@example.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, ResetInput{
		Email: "bob@example.com", OTP: "111111", ResetToken: issued.ResetToken, NewPassword: "Newpass1!",
	}))
	assert.Equal(t, 1, f.store.ActiveSessions(7))
}

func TestResetPassword_MissingFields(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResetPassword(ctx, ResetInput{Email: "bob@example.com", OTP: "111111"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.EqualError(t, err, "Missing required fields")
}
