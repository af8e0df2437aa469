// Package apperr holds the error taxonomy shared by the auth modules and its
// mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrAlreadyRegistered  = errors.New("email already registered")
	ErrNotFound           = errors.New("not found")
	ErrNotVerified        = errors.New("email not verified")
	ErrExpired            = errors.New("expired")
	ErrLocked             = errors.New("too many failed attempts")
	ErrRateLimited        = errors.New("rate limited")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrInvalidOrExpired   = errors.New("invalid or expired reset request")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
	ErrMailDeliveryFailed = errors.New("mail delivery failed")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")
)

// ValidationError names the first rule an input violated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

type messageError struct {
	msg string
	err error
}

func (e *messageError) Error() string { return e.msg }

func (e *messageError) Unwrap() error { return e.err }

// Wrap gives a taxonomy error a client-facing message while keeping errors.Is matching.
func Wrap(err error, msg string) error {
	return &messageError{msg: msg, err: err}
}

// LockedError reports how long verification stays locked. Its text is
// shown to clients as is.
type LockedError struct {
	RemainingMinutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("Too many failed attempts. Try again in %d minutes.", e.RemainingMinutes)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// InvalidOTPError reports how many verification attempts are left before lockout.
type InvalidOTPError struct {
	AttemptsRemaining int
}

func (e *InvalidOTPError) Error() string {
	return fmt.Sprintf("Invalid OTP. %d attempts remaining.", e.AttemptsRemaining)
}

func (e *InvalidOTPError) Unwrap() error { return ErrInvalidOTP }

// HTTPStatus maps an error from the taxonomy onto a response status.
// Anything unknown is an internal error.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotVerified),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrInvalidOTP),
		errors.Is(err, ErrInvalidOrExpired):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrIncorrectPassword),
		errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, ErrLocked), errors.Is(err, ErrRateLimited), errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Internal failures get a
// generic message so driver or network details never reach the client.
func Message(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		if errors.Is(err, ErrMailDeliveryFailed) {
			return "Failed to send email. Please try again."
		}
		return "Server error occurred"
	}
	return err.Error()
}
