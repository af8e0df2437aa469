package signup

import (
	"net/http"

	"go.uber.org/zap"

	sessionentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/httpx"
)

// Handler exposes the signup flow over HTTP.
type Handler struct {
	svc        *Service
	logger     *zap.SugaredLogger
	trustProxy bool
}

func NewHandler(svc *Service, logger *zap.SugaredLogger, trustProxy bool) *Handler {
	return &Handler{svc: svc, logger: logger, trustProxy: trustProxy}
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	ok, err := h.svc.CheckEmailAvailable(r.Context(), req.Email)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, httpx.M{
			"success":         false,
			"email_available": false,
			"message":         "This email is already registered. Try Login.",
		})
		return
	}
	httpx.OK(w, http.StatusOK, "Email is available", httpx.M{"email_available": true})
}

// SendOTPRequest starts a signup. Password may be supplied up front.
type SendOTPRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	res, err := h.svc.SendOTP(r.Context(), SendInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		IP:       httpx.ClientIP(r, h.trustProxy),
	})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "OTP sent to your email", httpx.M{
		"expires_in": int(h.svc.cfg.OTPTTL.Seconds()),
		"expires_at": res.ExpiresAt,
	})
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	res, err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	msg := "Email verified successfully"
	if res.AlreadyVerified {
		msg = "Email already verified. Please set your password."
	}
	httpx.OK(w, http.StatusOK, msg, httpx.M{"verified": true})
}

type completeRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) CompleteSignup(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	client := sessionentity.Client{UserAgent: r.UserAgent(), IP: httpx.ClientIP(r, h.trustProxy)}
	done, err := h.svc.CompleteSignup(r.Context(), req.Email, req.Password, client)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "Account created successfully", httpx.M{
		"token": done.Grant.Token,
		"user":  done.User,
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register is the direct signup without email verification.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "Account created successfully", httpx.M{"user": v})
}
