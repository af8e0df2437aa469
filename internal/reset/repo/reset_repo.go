package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/reset/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
)

// Repository persists password reset requests.
type Repository interface {
	// InvalidateUnused marks every unused request for email as used.
	InvalidateUnused(ctx context.Context, email string) (int64, error)
	Create(ctx context.Context, req *entity.Request) error
	// GetUsable locks the unused request matching email and token digest.
	GetUsable(ctx context.Context, email, tokenHash string) (*entity.Request, error)
	MarkUsed(ctx context.Context, id string) error
}

type ResetRepo struct {
	db database.DBTX
}

func NewResetRepo(db database.DBTX) *ResetRepo {
	return &ResetRepo{db: db}
}

func (r *ResetRepo) InvalidateUnused(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE password_resets SET used=true WHERE email=$1 AND NOT used`, email)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *ResetRepo) Create(ctx context.Context, req *entity.Request) error {
	const q = `INSERT INTO password_resets (id, email, otp_hash, token_hash, expires_at, used, created_at)
		VALUES (:id, :email, :otp_hash, :token_hash, :expires_at, :used, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, req); err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (r *ResetRepo) GetUsable(ctx context.Context, email, tokenHash string) (*entity.Request, error) {
	var req entity.Request
	err := sqlx.GetContext(ctx, r.db, &req,
		`SELECT id, email, otp_hash, token_hash, expires_at, used, created_at
		FROM password_resets WHERE email=$1 AND token_hash=$2 AND NOT used FOR UPDATE`, email, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &req, nil
}

func (r *ResetRepo) MarkUsed(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE password_resets SET used=true WHERE id=$1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
