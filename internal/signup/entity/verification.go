package entity

import "time"

// Verification is the in-flight signup for one email in `signup_verifications`.
type Verification struct {
	Email            string     `db:"email"`
	OTPHash          string     `db:"otp_hash"`
	ExpiresAt        time.Time  `db:"expires_at"`
	Attempts         int        `db:"attempts"`
	Verified         bool       `db:"verified"`
	LockedUntil      *time.Time `db:"locked_until"`
	TempName         string     `db:"temp_name"`
	TempPasswordHash *string    `db:"temp_password_hash"`
	CreatedAt        time.Time  `db:"created_at"`
}

// Expired reports whether the OTP window has closed at now. The window is
// closed from expires_at onward.
func (v *Verification) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// Locked reports whether verification is locked at now.
func (v *Verification) Locked(now time.Time) bool {
	return v.LockedUntil != nil && v.LockedUntil.After(now)
}

// VerifyResult is what a successful verify_otp reports.
type VerifyResult struct {
	Email           string `json:"email"`
	AlreadyVerified bool   `json:"already_verified"`
}

// SendResult is what a successful send_otp reports.
type SendResult struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}
