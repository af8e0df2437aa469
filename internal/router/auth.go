package router

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/httpx"
)

// SessionChecker reports whether a session token is still active.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionToken string) (bool, error)
}

// AccountLookup loads the account behind a token.
type AccountLookup interface {
	Lookup(ctx context.Context, id int64) (*accountentity.User, error)
}

var (
	errTokenMissing   = apperr.Wrap(apperr.ErrInvalidToken, "Token is missing")
	errTokenInvalid   = apperr.Wrap(apperr.ErrInvalidToken, "Invalid or expired token")
	errSessionRevoked = apperr.Wrap(apperr.ErrInvalidToken, "Session has been revoked. Please log in again.")
	errUnknownAccount = apperr.Wrap(apperr.ErrInvalidToken, "User not found")
	errForbidden      = apperr.Wrap(apperr.ErrForbidden, "Access denied")
)

// Authenticator resolves the bearer token into a token.Principal.
type Authenticator struct {
	issuer   *token.Issuer
	sessions SessionChecker
	accounts AccountLookup
	logger   *zap.SugaredLogger
}

func NewAuthenticator(issuer *token.Issuer, sessions SessionChecker, accounts AccountLookup, logger *zap.SugaredLogger) *Authenticator {
	return &Authenticator{issuer: issuer, sessions: sessions, accounts: accounts, logger: logger}
}

// Middleware rejects requests without a valid bearer token bound to an
// active session. The role is read from the account row, not the claims.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			httpx.Error(w, a.logger, errTokenMissing)
			return
		}
		claims, err := a.issuer.Verify(raw)
		if err != nil {
			a.logger.Debugw("bearer rejected", "err", err)
			httpx.Error(w, a.logger, errTokenInvalid)
			return
		}
		if claims.Session != "" {
			active, err := a.sessions.IsActive(r.Context(), claims.Session)
			if err != nil {
				httpx.Error(w, a.logger, err)
				return
			}
			if !active {
				httpx.Error(w, a.logger, errSessionRevoked)
				return
			}
		}
		id, _ := claims.UserID()
		u, err := a.accounts.Lookup(r.Context(), id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				err = errUnknownAccount
			}
			httpx.Error(w, a.logger, err)
			return
		}
		p := token.Principal{UserID: u.ID, Email: u.Email, Role: u.Role, Session: claims.Session}
		next.ServeHTTP(w, r.WithContext(token.WithPrincipal(r.Context(), p)))
	})
}

// RequireRole admits only principals holding one of roles. It must run
// after Authenticator.Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := token.FromContext(r.Context())
			if !ok {
				httpx.Error(w, nil, errTokenMissing)
				return
			}
			if !slices.Contains(roles, p.Role) {
				httpx.Error(w, nil, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
