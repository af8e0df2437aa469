package reset

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/httpx"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type forgotRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	issued, err := h.svc.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	body := httpx.M{
		"reset_token": issued.ResetToken,
		"expires_in":  int(h.svc.TTL().Seconds()),
	}
	if !issued.Delivered {
		body["otp"] = issued.OTP
		httpx.OK(w, http.StatusOK, "OTP generated (email service unavailable)", body)
		return
	}
	httpx.OK(w, http.StatusOK, "OTP sent to your email", body)
}

type resetRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	err := h.svc.ResetPassword(r.Context(), ResetInput{
		Email:       req.Email,
		OTP:         req.OTP,
		ResetToken:  req.ResetToken,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Password reset successfully", nil)
}
