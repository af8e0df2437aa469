// Package reset implements forgot/reset password: an emailed OTP paired with
// an opaque reset token returned to the caller.
package reset

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/credential"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/mail"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/reset/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/secret"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/utilities"
)

// DefaultTTL is how long a reset pair stays usable.
const DefaultTTL = 10 * time.Minute

var (
	errNoUser           = apperr.Wrap(apperr.ErrNotFound, "User not found with this email")
	errInvalidOrExpired = apperr.Wrap(apperr.ErrInvalidOrExpired, "Invalid or expired reset request")
	errOTPExpired       = apperr.Wrap(apperr.ErrExpired, "OTP has expired")
)

type Deps struct {
	DB      *sqlx.DB
	Repos   repomanager.Manager
	Hasher  credential.Hasher
	Secrets secret.Generator
	Mailer  mail.Sender
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
	TTL     time.Duration
}

type Service struct {
	db      *sqlx.DB
	repos   repomanager.Manager
	hasher  credential.Hasher
	secrets secret.Generator
	mailer  mail.Sender
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
	ttl     time.Duration
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
	if d.TTL <= 0 {
		d.TTL = DefaultTTL
	}
	return &Service{
		db:      d.DB,
		repos:   d.Repos,
		hasher:  d.Hasher,
		secrets: d.Secrets,
		mailer:  d.Mailer,
		clock:   d.Clock,
		logger:  d.Logger,
		ttl:     d.TTL,
	}
}

// TTL reports the lifetime of an issued pair.
func (s *Service) TTL() time.Duration { return s.ttl }

// ForgotPassword issues a fresh OTP and reset token for email. Earlier unused
// pairs are invalidated in the same transaction. When the mail cannot be
// delivered the OTP is handed back to the caller instead of failing.
func (s *Service) ForgotPassword(ctx context.Context, email string) (*entity.Issued, error) {
	email = credential.NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Invalid("Email is required")
	}

	u, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errNoUser
		}
		return nil, err
	}

	otp, err := s.secrets.OTP()
	if err != nil {
		return nil, err
	}
	resetToken, err := s.secrets.Token()
	if err != nil {
		return nil, err
	}
	otpHash, err := s.hasher.Hash(otp)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	err = database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		resets := s.repos.Resets(tx)
		n, err := resets.InvalidateUnused(ctx, email)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Debugw("previous reset requests invalidated", "email", email, "count", n)
		}
		return resets.Create(ctx, &entity.Request{
			ID:        utilities.NewKSUID(),
			Email:     email,
			OTPHash:   otpHash,
			TokenHash: secret.Digest(resetToken),
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("password reset requested", "user_id", u.ID, "email", email)

	out := &entity.Issued{ResetToken: resetToken, Delivered: true}
	msg := mail.PasswordResetOTP(u.Name, otp, int(s.ttl.Minutes()))
	if err := s.mailer.Send(ctx, email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("password reset mail not delivered, returning otp to caller", "email", email, "err", err)
		out.OTP = otp
		out.Delivered = false
	}
	return out, nil
}

// ResetInput is the payload of ResetPassword.
type ResetInput struct {
	Email       string
	OTP         string
	ResetToken  string
	NewPassword string
}

// ResetPassword consumes a reset pair and sets a new password. Existing
// sessions are left alone.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) error {
	email := credential.NormalizeEmail(in.Email)
	otp := strings.TrimSpace(in.OTP)
	if email == "" || otp == "" || in.ResetToken == "" || in.NewPassword == "" {
		return apperr.Invalid("Missing required fields")
	}

	var outcome error
	err := database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		resets := s.repos.Resets(tx)
		req, err := resets.GetUsable(ctx, email, secret.Digest(in.ResetToken))
		if errors.Is(err, apperr.ErrNotFound) {
			outcome = errInvalidOrExpired
			return nil
		}
		if err != nil {
			return err
		}
		if !s.hasher.Verify(req.OTPHash, otp) {
			outcome = errInvalidOrExpired
			return nil
		}
		if req.Expired(s.clock.Now()) {
			outcome = errOTPExpired
			return resets.MarkUsed(ctx, req.ID)
		}
		if err := credential.ValidatePassword(in.NewPassword); err != nil {
			return err
		}

		users := s.repos.Users(tx)
		u, err := users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return errNoUser
			}
			return err
		}
		hash, err := s.hasher.Hash(in.NewPassword)
		if err != nil {
			return err
		}
		if err := users.UpdatePassword(ctx, u.ID, hash, s.clock.Now().UTC()); err != nil {
			return err
		}
		if err := resets.MarkUsed(ctx, req.ID); err != nil {
			return err
		}
		s.logger.Infow("password reset", "user_id", u.ID, "email", email)
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}
