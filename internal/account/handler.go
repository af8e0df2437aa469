package account

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/httpx"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Me returns the bearer's account. It also answers verify-token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), p.UserID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", httpx.M{"user": v})
}

// ProfileRequest carries optional fields; absent keys are left unchanged.
type ProfileRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
	Bio   *string `json:"bio"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := h.svc.UpdateProfile(r.Context(), p.UserID, entity.ProfileUpdate{Name: req.Name, Phone: req.Phone, Bio: req.Bio})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Profile updated successfully", httpx.M{"user": v})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	n, err := h.svc.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Password changed successfully. Please log in again.", httpx.M{"sessions_revoked": n})
}

type twoFactorRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) TwoFactor(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req twoFactorRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := h.svc.SetTwoFactor(r.Context(), p.UserID, req.Enabled)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	msg := "Two-factor authentication disabled"
	if req.Enabled {
		msg = "Two-factor authentication enabled"
	}
	httpx.OK(w, http.StatusOK, msg, httpx.M{"two_factor_enabled": v.TwoFactorEnabled})
}

// Dashboard is admin only; the route guard enforces the role.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", httpx.M{"stats": st})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (token.Principal, bool) {
	p, ok := token.FromContext(r.Context())
	if !ok {
		httpx.Error(w, h.logger, apperr.ErrInvalidToken)
	}
	return p, ok
}
