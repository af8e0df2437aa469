package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/signup/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
)

// Repository persists pending signups and the OTP send log.
type Repository interface {
	// LockEmail serialises signup writes for one email until the
	// surrounding transaction ends.
	LockEmail(ctx context.Context, email string) error
	CountSendsSince(ctx context.Context, email string, since time.Time) (int, error)
	LogSend(ctx context.Context, email, ip string, at time.Time) error
	Create(ctx context.Context, v *entity.Verification) error
	// GetForUpdate loads the row and locks it for the transaction.
	GetForUpdate(ctx context.Context, email string) (*entity.Verification, error)
	RecordFailure(ctx context.Context, email string, attempts int, lockedUntil *time.Time) error
	MarkVerified(ctx context.Context, email string) error
	Delete(ctx context.Context, email string) error
}

type SignupRepo struct {
	db database.DBTX
}

func NewSignupRepo(db database.DBTX) *SignupRepo {
	return &SignupRepo{db: db}
}

const verificationColumns = `email, otp_hash, expires_at, attempts, verified, locked_until,
	temp_name, temp_password_hash, created_at`

func (r *SignupRepo) LockEmail(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, email); err != nil {
		return fmt.Errorf("lock signup email: %w", err)
	}
	return nil
}

func (r *SignupRepo) CountSendsSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n,
		`SELECT COUNT(*) FROM otp_send_logs WHERE email=$1 AND sent_at>=$2`, email, since)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SignupRepo) LogSend(ctx context.Context, email, ip string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_send_logs (email, sent_at, ip_address) VALUES ($1, $2, $3)`, email, at, ip)
	if err != nil {
		return fmt.Errorf("insert otp send log: %w", err)
	}
	return nil
}

// Create inserts a fresh pending signup. Callers delete any prior row first.
func (r *SignupRepo) Create(ctx context.Context, v *entity.Verification) error {
	const q = `INSERT INTO signup_verifications (` + verificationColumns + `)
		VALUES (:email, :otp_hash, :expires_at, :attempts, :verified, :locked_until,
		:temp_name, :temp_password_hash, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, v); err != nil {
		return fmt.Errorf("insert signup verification: %w", err)
	}
	return nil
}

func (r *SignupRepo) GetForUpdate(ctx context.Context, email string) (*entity.Verification, error) {
	var v entity.Verification
	err := sqlx.GetContext(ctx, r.db, &v,
		`SELECT `+verificationColumns+` FROM signup_verifications WHERE email=$1 FOR UPDATE`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &v, nil
}

func (r *SignupRepo) RecordFailure(ctx context.Context, email string, attempts int, lockedUntil *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE signup_verifications SET attempts=$2, locked_until=$3 WHERE email=$1`, email, attempts, lockedUntil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkVerified flags the row verified and clears the failure state.
func (r *SignupRepo) MarkVerified(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE signup_verifications SET verified=true, attempts=0, locked_until=NULL WHERE email=$1`, email)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SignupRepo) Delete(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM signup_verifications WHERE email=$1`, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
