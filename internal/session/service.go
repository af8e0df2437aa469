package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/credential"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/geo"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/secret"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/utilities"
)

// ActivityLimit is how many logins the activity history returns.
const ActivityLimit = 10

var errInvalidCredentials = apperr.Wrap(apperr.ErrInvalidCredentials, "Invalid email or password")

// Grant is the result of a successful login.
type Grant struct {
	Token     string                        `json:"token"`
	ExpiresAt time.Time                     `json:"expires_at"`
	SessionID string                        `json:"session_id"`
	User      accountentity.MinimalAuthView `json:"user"`
}

// Deps are the collaborators of Service.
type Deps struct {
	DB      *sqlx.DB
	Repos   repomanager.Manager
	Hasher  credential.Hasher
	Secrets secret.Generator
	Issuer  *token.Issuer
	Locator geo.Locator
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
}

// Service logs accounts in and manages their login sessions.
type Service struct {
	db      *sqlx.DB
	repos   repomanager.Manager
	hasher  credential.Hasher
	secrets secret.Generator
	issuer  *token.Issuer
	locator geo.Locator
	clock   clockwork.Clock
	logger  *zap.SugaredLogger

	dummyOnce sync.Once
	dummyHash string
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
		issuer:  d.Issuer,
		locator: d.Locator,
		clock:   d.Clock,
		logger:  d.Logger,
	}
}

// burn runs a password verify against a fixed hash so unknown emails cost
// as much as wrong passwords.
func (s *Service) burn(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	if s.dummyHash != "" {
		s.hasher.Verify(s.dummyHash, password)
	}
}

// Login checks credentials and starts a new session. Unknown emails and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string, client entity.Client) (*Grant, error) {
	email = credential.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Invalid("Missing required fields: email, password")
	}

	u, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.burn(password)
			s.logger.Infow("login failed", "reason", "unknown email")
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		s.logger.Infow("login failed", "reason", "wrong password", "user_id", u.ID)
		return nil, errInvalidCredentials
	}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, password)
	}
	return s.Start(ctx, u, client)
}

// rehash upgrades a hash made with an outdated cost. Failures only cost the upgrade.
func (s *Service) rehash(ctx context.Context, u *accountentity.User, password string) {
	h, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := s.repos.Users(s.db).UpdatePassword(ctx, u.ID, h, s.clock.Now().UTC()); err != nil {
		s.logger.Warnw("password rehash failed", "user_id", u.ID, "err", err)
		return
	}
	u.PasswordHash = h
}

// Start mints a bearer token bound to a fresh session token and records
// the login with its device and location.
func (s *Service) Start(ctx context.Context, u *accountentity.User, client entity.Client) (*Grant, error) {
	sessionToken, err := s.secrets.Token()
	if err != nil {
		return nil, err
	}
	raw, exp, err := s.issuer.Issue(u.ID, u.Email, u.Role, sessionToken)
	if err != nil {
		return nil, err
	}

	dev := ParseUserAgent(client.UserAgent)
	loc := s.locator.Lookup(ctx, client.IP)
	row := &entity.LoginSession{
		ID:              utilities.NewKSUID(),
		UserID:          u.ID,
		DeviceModel:     dev.DeviceModel,
		Browser:         dev.Browser,
		OperatingSystem: dev.OperatingSystem,
		IPAddress:       client.IP,
		City:            loc.City,
		Country:         loc.Country,
		LoginTime:       s.clock.Now().UTC(),
		SessionToken:    sessionToken,
		IsActive:        true,
	}
	if err := s.repos.Sessions(s.db).Create(ctx, row); err != nil {
		return nil, err
	}

	s.logger.Infow("session started", "user_id", u.ID, "session_id", row.ID,
		"browser", dev.Browser, "os", dev.OperatingSystem, "country", loc.Country)
	return &Grant{Token: raw, ExpiresAt: exp, SessionID: row.ID, User: u.Minimal()}, nil
}

// IsActive reports whether the session token still belongs to an active session.
func (s *Service) IsActive(ctx context.Context, sessionToken string) (bool, error) {
	row, err := s.repos.Sessions(s.db).GetByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return row.IsActive, nil
}

// ListActive returns the active sessions of the account, newest first,
// marking the one that matches current.
func (s *Service) ListActive(ctx context.Context, userID int64, current string) ([]entity.View, error) {
	rows, err := s.repos.Sessions(s.db).ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return views(rows, current), nil
}

// LoginActivity returns the latest logins in any state.
func (s *Service) LoginActivity(ctx context.Context, userID int64, current string) ([]entity.View, error) {
	rows, err := s.repos.Sessions(s.db).ListRecent(ctx, userID, ActivityLimit)
	if err != nil {
		return nil, err
	}
	return views(rows, current), nil
}

func views(rows []entity.LoginSession, current string) []entity.View {
	out := make([]entity.View, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].View(current))
	}
	return out
}

// Revoke deactivates one session of the account.
func (s *Service) Revoke(ctx context.Context, userID int64, sessionID string) error {
	err := s.repos.Sessions(s.db).Revoke(ctx, userID, sessionID, s.clock.Now().UTC())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Wrap(apperr.ErrNotFound, "Session not found")
		}
		return err
	}
	s.logger.Infow("session revoked", "user_id", userID, "session_id", sessionID)
	return nil
}

// RevokeAllExceptCurrent deactivates every other active session of the
// account and returns how many were revoked. Without a current session
// nothing is kept.
func (s *Service) RevokeAllExceptCurrent(ctx context.Context, userID int64, current string) (int64, error) {
	if current == "" {
		return s.RevokeAll(ctx, userID, "")
	}
	n, err := s.repos.Sessions(s.db).RevokeAllExcept(ctx, userID, current, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	s.logger.Infow("sessions revoked", "user_id", userID, "count", n, "kept_current", true)
	return n, nil
}

// RevokeAll logs the account out everywhere. When the caller's own session
// is known it survives; otherwise every session is revoked.
func (s *Service) RevokeAll(ctx context.Context, userID int64, current string) (int64, error) {
	if current != "" {
		return s.RevokeAllExceptCurrent(ctx, userID, current)
	}
	n, err := s.repos.Sessions(s.db).RevokeAll(ctx, userID, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	s.logger.Infow("sessions revoked", "user_id", userID, "count", n, "kept_current", false)
	return n, nil
}
