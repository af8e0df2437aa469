// Package signup runs the OTP-gated signup: an emailed passcode must be
// verified before the account can be created.
package signup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/credential"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/mail"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/secret"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session"
	sessionentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/signup/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/utilities"
)

// Config holds the OTP policy knobs.
type Config struct {
	OTPTTL      time.Duration
	MaxAttempts int
	LockFor     time.Duration
	SendLimit   int
	SendWindow  time.Duration
}

func DefaultConfig() Config {
	return Config{
		OTPTTL:      10 * time.Minute,
		MaxAttempts: 5,
		LockFor:     15 * time.Minute,
		SendLimit:   3,
		SendWindow:  time.Hour,
	}
}

var (
	errRegistered    = apperr.Wrap(apperr.ErrAlreadyRegistered, "Email already registered")
	errRateLimited   = apperr.Wrap(apperr.ErrRateLimited, "Too many OTP requests. Please try again after 1 hour.")
	errNoOTP         = apperr.Wrap(apperr.ErrNotFound, "No OTP found. Please request a new one.")
	errOTPExpired    = apperr.Wrap(apperr.ErrExpired, "OTP has expired. Please request a new one.")
	errNoRecord      = apperr.Wrap(apperr.ErrNotFound, "No verification record found. Please start signup again.")
	errNotVerified   = apperr.Wrap(apperr.ErrNotVerified, "Email not verified. Please verify your email first.")
	errRecordExpired = apperr.Wrap(apperr.ErrExpired, "Verification expired. Please start signup again.")
)

// Deps are the collaborators of Service.
type Deps struct {
	DB       *sqlx.DB
	Repos    repomanager.Manager
	Hasher   credential.Hasher
	Secrets  secret.Generator
	Mailer   mail.Sender
	Sessions *session.Service
	IDs      *utilities.IDGenerator
	Clock    clockwork.Clock
	Logger   *zap.SugaredLogger
	Config   Config
}

type Service struct {
	db       *sqlx.DB
	repos    repomanager.Manager
	hasher   credential.Hasher
	secrets  secret.Generator
	mailer   mail.Sender
	sessions *session.Service
	ids      *utilities.IDGenerator
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
	cfg      Config
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
	if d.Config == (Config{}) {
		d.Config = DefaultConfig()
	}
	return &Service{
		db:       d.DB,
		repos:    d.Repos,
		hasher:   d.Hasher,
		secrets:  d.Secrets,
		mailer:   d.Mailer,
		sessions: d.Sessions,
		ids:      d.IDs,
		clock:    d.Clock,
		logger:   d.Logger,
		cfg:      d.Config,
	}
}

// CheckEmailAvailable reports whether no account uses email.
func (s *Service) CheckEmailAvailable(ctx context.Context, email string) (bool, error) {
	email = credential.NormalizeEmail(email)
	if err := credential.ValidateEmail(email); err != nil {
		return false, err
	}
	exists, err := s.repos.Users(s.db).ExistsByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// SendInput is the payload of SendOTP. Password is optional; when given it
// is validated and staged for CompleteSignup.
type SendInput struct {
	Name     string
	Email    string
	Password string
	IP       string
}

// SendOTP issues a fresh passcode for email, replacing any pending one.
// The record is committed before the mail goes out, so a delivery failure
// still leaves a verifiable OTP behind.
func (s *Service) SendOTP(ctx context.Context, in SendInput) (*entity.SendResult, error) {
	name := strings.TrimSpace(in.Name)
	email := credential.NormalizeEmail(in.Email)
	if name == "" || email == "" {
		return nil, apperr.Invalid("Name and email are required")
	}
	if err := credential.ValidateEmail(email); err != nil {
		return nil, err
	}
	var staged *string
	if in.Password != "" {
		if err := credential.ValidatePassword(in.Password); err != nil {
			return nil, err
		}
		h, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		staged = &h
	}

	now := s.clock.Now().UTC()
	expires := now.Add(s.cfg.OTPTTL)
	var otp string
	err := database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		signups := s.repos.Signups(tx)
		if err := signups.LockEmail(ctx, email); err != nil {
			return err
		}
		exists, err := s.repos.Users(tx).ExistsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return errRegistered
		}
		sent, err := signups.CountSendsSince(ctx, email, now.Add(-s.cfg.SendWindow))
		if err != nil {
			return err
		}
		if sent >= s.cfg.SendLimit {
			return errRateLimited
		}

		otp, err = s.secrets.OTP()
		if err != nil {
			return err
		}
		otpHash, err := s.hasher.Hash(otp)
		if err != nil {
			return err
		}
		if err := signups.Delete(ctx, email); err != nil {
			return err
		}
		if err := signups.Create(ctx, &entity.Verification{
			Email:            email,
			OTPHash:          otpHash,
			ExpiresAt:        expires,
			TempName:         name,
			TempPasswordHash: staged,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		return signups.LogSend(ctx, email, in.IP, now)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrRateLimited) {
			s.logger.Warnw("signup otp rate limited", "email", email, "ip", in.IP)
		}
		return nil, err
	}
	s.logger.Infow("signup otp issued", "email", email, "ip", in.IP)

	msg := mail.SignupOTP(name, otp, int(s.cfg.OTPTTL.Minutes()))
	if err := s.mailer.Send(ctx, email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("signup otp delivery failed", "email", email, "err", err)
		return nil, fmt.Errorf("%w: %v", apperr.ErrMailDeliveryFailed, err)
	}
	return &entity.SendResult{Email: email, ExpiresAt: expires}, nil
}

// VerifyOTP checks a candidate passcode. Failed attempts are committed even
// though the call fails.
func (s *Service) VerifyOTP(ctx context.Context, email, candidate string) (*entity.VerifyResult, error) {
	email = credential.NormalizeEmail(email)
	candidate = strings.TrimSpace(candidate)
	if email == "" || candidate == "" {
		return nil, apperr.Invalid("Email and OTP are required")
	}

	var res *entity.VerifyResult
	var outcome error
	err := database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		signups := s.repos.Signups(tx)
		v, err := signups.GetForUpdate(ctx, email)
		if errors.Is(err, apperr.ErrNotFound) {
			outcome = errNoOTP
			return nil
		}
		if err != nil {
			return err
		}

		now := s.clock.Now()
		switch {
		case v.Locked(now):
			outcome = &apperr.LockedError{RemainingMinutes: minutesUntil(*v.LockedUntil, now)}
			return nil
		case v.Expired(now):
			outcome = errOTPExpired
			return nil
		case v.Verified:
			res = &entity.VerifyResult{Email: email, AlreadyVerified: true}
			return nil
		}

		if !s.hasher.Verify(v.OTPHash, candidate) {
			attempts := v.Attempts + 1
			var until *time.Time
			if attempts >= s.cfg.MaxAttempts {
				t := now.UTC().Add(s.cfg.LockFor)
				until = &t
			}
			if err := signups.RecordFailure(ctx, email, attempts, until); err != nil {
				return err
			}
			if until != nil {
				s.logger.Warnw("signup otp locked", "email", email, "attempts", attempts)
				outcome = &apperr.LockedError{RemainingMinutes: minutesUntil(*until, now)}
			} else {
				outcome = &apperr.InvalidOTPError{AttemptsRemaining: s.cfg.MaxAttempts - attempts}
			}
			return nil
		}

		if err := signups.MarkVerified(ctx, email); err != nil {
			return err
		}
		res = &entity.VerifyResult{Email: email}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}
	if !res.AlreadyVerified {
		s.logger.Infow("signup otp verified", "email", email)
	}
	return res, nil
}

// Completed is the result of CompleteSignup.
type Completed struct {
	User  accountentity.View
	Grant *session.Grant
}

// CompleteSignup creates the verified account and consumes the pending
// signup in one transaction, then logs the new account in. An empty
// password falls back to the one staged by SendOTP.
func (s *Service) CompleteSignup(ctx context.Context, email, password string, client sessionentity.Client) (*Completed, error) {
	email = credential.NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Invalid("Email and password are required")
	}

	var created *accountentity.User
	var outcome error
	err := database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		signups := s.repos.Signups(tx)
		if err := signups.LockEmail(ctx, email); err != nil {
			return err
		}
		v, err := signups.GetForUpdate(ctx, email)
		if errors.Is(err, apperr.ErrNotFound) {
			outcome = errNoRecord
			return nil
		}
		if err != nil {
			return err
		}
		if !v.Verified {
			outcome = errNotVerified
			return nil
		}
		now := s.clock.Now().UTC()
		if v.Expired(now) {
			outcome = errRecordExpired
			return signups.Delete(ctx, email)
		}

		users := s.repos.Users(tx)
		exists, err := users.ExistsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return errRegistered
		}

		hash, err := s.passwordHash(password, v.TempPasswordHash)
		if err != nil {
			return err
		}
		u := &accountentity.User{
			ID:           s.ids.Next(),
			Name:         v.TempName,
			Email:        email,
			PasswordHash: hash,
			Role:         accountentity.RoleUser,
			Verified:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, u); err != nil {
			if errors.Is(err, apperr.ErrAlreadyRegistered) {
				return errRegistered
			}
			return err
		}
		if err := signups.Delete(ctx, email); err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}
	s.logger.Infow("account created", "user_id", created.ID, "email", email)

	grant, err := s.sessions.Start(ctx, created, client)
	if err != nil {
		return nil, err
	}
	return &Completed{User: created.View(), Grant: grant}, nil
}

func (s *Service) passwordHash(password string, staged *string) (string, error) {
	if password == "" {
		if staged == nil {
			return "", apperr.Invalid("Email and password are required")
		}
		return *staged, nil
	}
	if err := credential.ValidatePassword(password); err != nil {
		return "", err
	}
	return s.hasher.Hash(password)
}

// Register is the direct signup kept for older clients: the account is
// created unverified and no token is issued.
func (s *Service) Register(ctx context.Context, name, email, password string) (*accountentity.View, error) {
	name = strings.TrimSpace(name)
	email = credential.NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, apperr.Invalid("Missing required fields: name, email, password")
	}
	if err := credential.ValidateName(name); err != nil {
		return nil, err
	}
	if err := credential.ValidateEmail(email); err != nil {
		return nil, err
	}
	users := s.repos.Users(s.db)
	exists, err := users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errRegistered
	}
	if err := credential.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	u := &accountentity.User{
		ID:           s.ids.Next(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         accountentity.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrAlreadyRegistered) {
			return nil, errRegistered
		}
		return nil, err
	}
	s.logger.Infow("account created", "user_id", u.ID, "email", email, "verified", false)
	v := u.View()
	return &v, nil
}

// minutesUntil rounds up so a client never sees "0 minutes" while locked.
func minutesUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Minutes()))
}
