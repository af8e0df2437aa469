// Package account serves the signed-in user's own account: profile, password
// change, the two-factor flag and the admin dashboard counts.
package account

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/credential"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/secret"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/utilities"
)

var (
	errNoUser          = apperr.Wrap(apperr.ErrNotFound, "User not found")
	errWrongCurrent    = apperr.Wrap(apperr.ErrIncorrectPassword, "Current password is incorrect")
	errRegistered      = apperr.Wrap(apperr.ErrAlreadyRegistered, "Email already registered")
	errPasswordMissing = apperr.Invalid("Current password and new password are required")
)

type Deps struct {
	DB      *sqlx.DB
	Repos   repomanager.Manager
	Hasher  credential.Hasher
	Secrets secret.Generator
	IDs     *utilities.IDGenerator
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
}

type Service struct {
	db      *sqlx.DB
	repos   repomanager.Manager
	hasher  credential.Hasher
	secrets secret.Generator
	ids     *utilities.IDGenerator
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Secrets == nil {
		d.Secrets = secret.NewRandomGenerator()
	}
	return &Service{
		db:      d.DB,
		repos:   d.Repos,
		hasher:  d.Hasher,
		secrets: d.Secrets,
		ids:     d.IDs,
		clock:   d.Clock,
		logger:  d.Logger,
	}
}

// Lookup returns the full row. Authentication uses it to read the current role.
func (s *Service) Lookup(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.repos.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errNoUser
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*entity.View, error) {
	u, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	v := u.View()
	return &v, nil
}

// UpdateProfile applies the non-nil fields of p. A blank name keeps the
// current one; a blank phone or bio clears it.
func (s *Service) UpdateProfile(ctx context.Context, id int64, p entity.ProfileUpdate) (*entity.View, error) {
	users := s.repos.Users(s.db)
	u, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	name := u.Name
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		name = strings.TrimSpace(*p.Name)
		if err := credential.ValidateName(name); err != nil {
			return nil, err
		}
	}
	phone, bio := u.Phone, u.Bio
	if p.Phone != nil {
		phone = blankToNil(*p.Phone)
	}
	if p.Bio != nil {
		bio = blankToNil(*p.Bio)
	}

	now := s.clock.Now().UTC()
	if err := users.UpdateProfile(ctx, id, name, phone, bio, now); err != nil {
		return nil, err
	}
	u.Name, u.Phone, u.Bio, u.UpdatedAt = name, phone, bio, now
	s.logger.Infow("profile updated", "user_id", id)
	v := u.View()
	return &v, nil
}

// ChangePassword swaps the password hash and revokes every session of the
// account, the caller's included, in one transaction.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) (int64, error) {
	if current == "" || next == "" {
		return 0, errPasswordMissing
	}
	u, err := s.Lookup(ctx, id)
	if err != nil {
		return 0, err
	}
	if !s.hasher.Verify(u.PasswordHash, current) {
		s.logger.Warnw("password change rejected", "user_id", id)
		return 0, errWrongCurrent
	}
	if err := credential.ValidatePassword(next); err != nil {
		return 0, err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return 0, err
	}

	var revoked int64
	now := s.clock.Now().UTC()
	err = database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		if err := s.repos.Users(tx).UpdatePassword(ctx, id, hash, now); err != nil {
			return err
		}
		n, err := s.repos.Sessions(tx).RevokeAll(ctx, id, now)
		if err != nil {
			return err
		}
		revoked = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Infow("password changed", "user_id", id, "sessions_revoked", revoked)
	return revoked, nil
}

// SetTwoFactor toggles the flag. Enabling stores a fresh secret; disabling drops it.
func (s *Service) SetTwoFactor(ctx context.Context, id int64, enabled bool) (*entity.View, error) {
	u, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	var sec *string
	if enabled {
		t, err := s.secrets.Token()
		if err != nil {
			return nil, err
		}
		sec = &t
	}
	now := s.clock.Now().UTC()
	if err := s.repos.Users(s.db).SetTwoFactor(ctx, id, enabled, sec, now); err != nil {
		return nil, err
	}
	u.TwoFactorEnabled, u.TwoFactorSecret, u.UpdatedAt = enabled, sec, now
	s.logger.Infow("two-factor updated", "user_id", id, "enabled", enabled)
	v := u.View()
	return &v, nil
}

func (s *Service) Stats(ctx context.Context) (*entity.Stats, error) {
	return s.repos.Users(s.db).Stats(ctx)
}

// CreateAdmin provisions a verified admin account. It backs the operator CLI.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*entity.View, error) {
	name = strings.TrimSpace(name)
	email = credential.NormalizeEmail(email)
	if err := credential.ValidateName(name); err != nil {
		return nil, err
	}
	if err := credential.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := credential.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	u := &entity.User{
		ID:           s.ids.Next(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         entity.RoleAdmin,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.Users(s.db).Create(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrAlreadyRegistered) {
			return nil, errRegistered
		}
		return nil, err
	}
	s.logger.Infow("admin account created", "user_id", u.ID, "email", email)
	v := u.View()
	return &v, nil
}

func blankToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
