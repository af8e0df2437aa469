// Package httpx holds the JSON envelope helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
)

const maxBodyBytes = 1 << 20

// M is a response body fragment.
type M map[string]any

// WriteJSON writes v as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope carrying message and any extra fields.
func OK(w http.ResponseWriter, status int, message string, extra M) {
	body := M{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range extra {
		body[k] = v
	}
	WriteJSON(w, status, body)
}

// Fail writes a failure envelope with an explicit status.
func Fail(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, M{"success": false, "message": message})
}

// Error renders err through the apperr taxonomy. Lockout and attempt
// counters are surfaced so clients can render them; internal errors are
// logged and replaced with a generic message.
func Error(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	status := apperr.HTTPStatus(err)
	body := M{"success": false, "message": apperr.Message(err)}

	var locked *apperr.LockedError
	var invalidOTP *apperr.InvalidOTPError
	switch {
	case errors.As(err, &locked):
		body["locked"] = true
		body["remaining_minutes"] = locked.RemainingMinutes
		body["attempts_remaining"] = 0
	case errors.As(err, &invalidOTP):
		body["attempts_remaining"] = invalidOTP.AttemptsRemaining
	case errors.Is(err, apperr.ErrLocked):
		body["locked"] = true
	case errors.Is(err, apperr.ErrExpired):
		body["expired"] = true
	}

	if status == http.StatusInternalServerError && logger != nil {
		logger.Errorw("request failed", "err", err)
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON body into dst. A malformed body is a validation error.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Invalid("Request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("Invalid request payload")
	}
	return nil
}
