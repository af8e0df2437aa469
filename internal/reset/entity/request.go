package entity

import "time"

// Request is one password reset attempt in `password_resets`. Neither the
// OTP nor the reset token is stored in the clear.
type Request struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	OTPHash   string    `db:"otp_hash"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"used"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the request is past its window at now, expires_at
// included.
func (r *Request) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Issued is returned by forgot_password. OTP is only set when the mail
// could not be delivered.
type Issued struct {
	ResetToken string
	OTP        string
	Delivered  bool
}
