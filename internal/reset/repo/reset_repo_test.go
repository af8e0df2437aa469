package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/reset/entity"
)

func newMockRepo(t *testing.T) (*ResetRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewResetRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestInvalidateUnused(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE password_resets SET used=true WHERE email=\$1 AND NOT used`).
		WithArgs("bob@example.com").WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := r.InvalidateUnused(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCreate(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectExec(`INSERT INTO password_resets`).
		WithArgs("r1", "bob@example.com", "otph", "tokh", now.Add(10*time.Minute), false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Create(context.Background(), &entity.Request{
		ID: "r1", Email: "bob@example.com", OTPHash: "otph", TokenHash: "tokh",
		ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsable(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now()
	cols := []string{"id", "email", "otp_hash", "token_hash", "expires_at", "used", "created_at"}
	mock.ExpectQuery(`FROM password_resets WHERE email=\$1 AND token_hash=\$2 AND NOT used FOR UPDATE`).
		WithArgs("bob@example.com", "tokh").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("r1", "bob@example.com", "otph", "tokh", now, false, now))

	req, err := r.GetUsable(context.Background(), "bob@example.com", "tokh")
	require.NoError(t, err)
	assert.Equal(t, "r1", req.ID)
	assert.False(t, req.Used)
}

func TestGetUsable_NotFound(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM password_resets`).WillReturnError(sql.ErrNoRows)

	_, err := r.GetUsable(context.Background(), "bob@example.com", "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkUsed(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE password_resets SET used=true WHERE id=\$1`).
		WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.MarkUsed(context.Background(), "r1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
