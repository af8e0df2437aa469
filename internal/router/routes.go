package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/account"
	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/reset"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/signup"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/httpx"
)

// Request caps per client address.
var (
	CheckEmailRule     = ratelimit.PerMinute("check-email", 10)
	SendSignupOTPRule  = ratelimit.PerHour("send-signup-otp", 3)
	VerifySignupRule   = ratelimit.PerMinute("verify-signup-otp", 10)
	CompleteSignupRule = ratelimit.PerHour("complete-signup", 5)
	SignupRule         = ratelimit.PerHour("signup", 5)
	LoginRule          = ratelimit.PerHour("login", 10)
	ForgotPasswordRule = ratelimit.PerHour("forgot-password", 3)
	ResetPasswordRule  = ratelimit.PerHour("reset-password", 5)
)

// Handlers groups the feature handlers mounted by RegisterRoutes.
type Handlers struct {
	Signup  *signup.Handler
	Session *session.Handler
	Reset   *reset.Handler
	Account *account.Handler
}

// RegisterRoutes mounts every endpoint on a http.ServeMux and wraps it with
// request id, logging and security header middleware.
func RegisterRoutes(logger *zap.SugaredLogger, h Handlers, auth *Authenticator, limiter *ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, httpx.M{
			"success":   true,
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	capped := func(rule ratelimit.Rule, fn http.HandlerFunc) http.Handler {
		return limiter.Middleware(rule)(fn)
	}
	authed := func(fn http.HandlerFunc) http.Handler {
		return auth.Middleware(fn)
	}

	// signup
	mux.Handle("POST /api/auth/check-email", capped(CheckEmailRule, h.Signup.CheckEmail))
	mux.Handle("POST /api/auth/send-signup-otp", capped(SendSignupOTPRule, h.Signup.SendOTP))
	mux.Handle("POST /api/auth/verify-signup-otp", capped(VerifySignupRule, h.Signup.VerifyOTP))
	mux.Handle("POST /api/auth/complete-signup", capped(CompleteSignupRule, h.Signup.CompleteSignup))
	mux.Handle("POST /api/auth/signup", capped(SignupRule, h.Signup.Register))

	// login and password reset
	mux.Handle("POST /api/auth/login", capped(LoginRule, h.Session.Login))
	mux.Handle("POST /api/auth/forgot-password", capped(ForgotPasswordRule, h.Reset.Forgot))
	mux.Handle("POST /api/auth/reset-password", capped(ResetPasswordRule, h.Reset.Reset))

	// bearer protected
	mux.Handle("GET /api/auth/verify-token", authed(h.Account.Me))
	mux.Handle("GET /api/auth/me", authed(h.Account.Me))
	mux.Handle("GET /api/auth/login-activity", authed(h.Session.Activity))
	mux.Handle("POST /api/auth/logout-all", authed(h.Session.LogoutAll))
	mux.Handle("GET /api/sessions/active", authed(h.Session.Active))
	mux.Handle("POST /api/sessions/revoke-all", authed(h.Session.RevokeOthers))
	mux.Handle("POST /api/sessions/{id}/revoke", authed(h.Session.Revoke))
	mux.Handle("PUT /api/profile/update", authed(h.Account.UpdateProfile))
	mux.Handle("POST /api/profile/change-password", authed(h.Account.ChangePassword))
	mux.Handle("POST /api/profile/two-factor", authed(h.Account.TwoFactor))

	// admin
	mux.Handle("GET /api/admin/dashboard",
		auth.Middleware(RequireRole(accountentity.RoleAdmin)(http.HandlerFunc(h.Account.Dashboard))))

	return chain(mux,
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		SecurityHeadersMiddleware(),
	)
}
