package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
)

// Repository persists login sessions.
type Repository interface {
	Create(ctx context.Context, s *entity.LoginSession) error
	GetByToken(ctx context.Context, token string) (*entity.LoginSession, error)
	ListActive(ctx context.Context, userID int64) ([]entity.LoginSession, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]entity.LoginSession, error)
	Revoke(ctx context.Context, userID int64, id string, at time.Time) error
	RevokeAllExcept(ctx context.Context, userID int64, keepToken string, at time.Time) (int64, error)
	RevokeAll(ctx context.Context, userID int64, at time.Time) (int64, error)
}

type SessionRepo struct {
	db database.DBTX
}

func NewSessionRepo(db database.DBTX) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, user_id, device_model, browser, operating_system, ip_address,
	city, country, login_time, logout_time, session_token, is_active`

func (r *SessionRepo) Create(ctx context.Context, s *entity.LoginSession) error {
	const q = `INSERT INTO login_sessions (id, user_id, device_model, browser, operating_system, ip_address,
		city, country, login_time, logout_time, session_token, is_active)
		VALUES (:id, :user_id, :device_model, :browser, :operating_system, :ip_address,
		:city, :country, :login_time, :logout_time, :session_token, :is_active)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, s); err != nil {
		return fmt.Errorf("insert login session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*entity.LoginSession, error) {
	var s entity.LoginSession
	err := sqlx.GetContext(ctx, r.db, &s, `SELECT `+sessionColumns+` FROM login_sessions WHERE session_token=$1`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

// ListActive returns the account's active sessions, newest first.
func (r *SessionRepo) ListActive(ctx context.Context, userID int64) ([]entity.LoginSession, error) {
	out := []entity.LoginSession{}
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT `+sessionColumns+` FROM login_sessions WHERE user_id=$1 AND is_active ORDER BY login_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// ListRecent returns the latest sessions in any state, newest first.
func (r *SessionRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]entity.LoginSession, error) {
	out := []entity.LoginSession{}
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT `+sessionColumns+` FROM login_sessions WHERE user_id=$1 ORDER BY login_time DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Revoke deactivates one session owned by userID. A session belonging to
// another account is reported as not found.
func (r *SessionRepo) Revoke(ctx context.Context, userID int64, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE login_sessions SET is_active=false, logout_time=COALESCE(logout_time, $3) WHERE id=$1 AND user_id=$2`,
		id, userID, at)
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

func (r *SessionRepo) RevokeAllExcept(ctx context.Context, userID int64, keepToken string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE login_sessions SET is_active=false, logout_time=$3 WHERE user_id=$1 AND is_active AND session_token<>$2`,
		userID, keepToken, at)
	return affected(res, err)
}

func (r *SessionRepo) RevokeAll(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE login_sessions SET is_active=false, logout_time=$2 WHERE user_id=$1 AND is_active`,
		userID, at)
	return affected(res, err)
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
