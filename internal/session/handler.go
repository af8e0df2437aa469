package session

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/httpx"
)

// Handler exposes login and the session registry over HTTP.
type Handler struct {
	svc        *Service
	logger     *zap.SugaredLogger
	trustProxy bool
}

func NewHandler(svc *Service, logger *zap.SugaredLogger, trustProxy bool) *Handler {
	return &Handler{svc: svc, logger: logger, trustProxy: trustProxy}
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	client := entity.Client{UserAgent: r.UserAgent(), IP: httpx.ClientIP(r, h.trustProxy)}
	g, err := h.svc.Login(r.Context(), req.Email, req.Password, client)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Login successful", httpx.M{"token": g.Token, "user": g.User})
}

func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListActive(r.Context(), p.UserID, p.Session)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", httpx.M{"sessions": list})
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.LoginActivity(r.Context(), p.UserID, p.Session)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", httpx.M{"activities": list})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.svc.Revoke(r.Context(), p.UserID, r.PathValue("id")); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Session revoked successfully", nil)
}

// RevokeOthers keeps the caller's session and revokes the rest.
func (h *Handler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := h.svc.RevokeAllExceptCurrent(r.Context(), p.UserID, p.Session)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, fmt.Sprintf("%d session(s) revoked successfully", n), httpx.M{"revoked": n})
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := h.svc.RevokeAll(r.Context(), p.UserID, p.Session)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Logged out from all other devices successfully", httpx.M{"revoked": n})
}

func principal(w http.ResponseWriter, r *http.Request) (token.Principal, bool) {
	p, ok := token.FromContext(r.Context())
	if !ok {
		httpx.Error(w, nil, apperr.ErrInvalidToken)
	}
	return p, ok
}
