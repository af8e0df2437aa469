package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
)

// Repository is the account directory.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error
	UpdateProfile(ctx context.Context, id int64, name string, phone, bio *string, at time.Time) error
	SetTwoFactor(ctx context.Context, id int64, enabled bool, secret *string, at time.Time) error
	Stats(ctx context.Context) (*entity.Stats, error)
}

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db database.DBTX
}

func NewUserRepo(db database.DBTX) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, name, email, password_hash, role, verified, phone, bio,
	two_factor_enabled, two_factor_secret, created_at, updated_at`

// Create inserts a new user row. A duplicate email surfaces as apperr.ErrAlreadyRegistered.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, name, email, password_hash, role, verified, phone, bio,
		two_factor_enabled, two_factor_secret, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :role, :verified, :phone, :bio,
		:two_factor_enabled, :two_factor_secret, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, u); err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByEmail returns a user matched by email (case-insensitive due to citext).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE email=$1`, email); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, email); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=$3 WHERE id=$1`, id, hash, at)
	return affectedOne(res, err)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, name string, phone, bio *string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name=$2, phone=$3, bio=$4, updated_at=$5 WHERE id=$1`,
		id, name, phone, bio, at)
	return affectedOne(res, err)
}

func (r *UserRepo) SetTwoFactor(ctx context.Context, id int64, enabled bool, secret *string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled=$2, two_factor_secret=$3, updated_at=$4 WHERE id=$1`,
		id, enabled, secret, at)
	return affectedOne(res, err)
}

func (r *UserRepo) Stats(ctx context.Context) (*entity.Stats, error) {
	const q = `SELECT COUNT(*) AS total_users,
		COUNT(*) FILTER (WHERE role='admin') AS admins,
		COUNT(*) FILTER (WHERE role='user') AS users
		FROM users`
	var s entity.Stats
	if err := sqlx.GetContext(ctx, r.db, &s, q); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
