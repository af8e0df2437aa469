package credential

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
)

const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72 // bcrypt input limit
	MinNameLength     = 2
	symbolSet         = `!@#$%^&*(),.?":{}|<>`
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports a ValidationError for syntactically invalid addresses.
func ValidateEmail(email string) error {
	if email == "" {
		return apperr.Invalid("Email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperr.Invalid("Invalid email format")
	}
	return nil
}

// ValidatePassword returns the first strength rule the password violates.
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return apperr.Invalid("Password must be at least 8 characters long")
	}
	if len(pw) > MaxPasswordBytes {
		return apperr.Invalid("Password must be at most 72 bytes long")
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(symbolSet, r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return apperr.Invalid("Password must contain at least one uppercase letter")
	case !lower:
		return apperr.Invalid("Password must contain at least one lowercase letter")
	case !digit:
		return apperr.Invalid("Password must contain at least one number")
	case !symbol:
		return apperr.Invalid("Password must contain at least one special character")
	}
	return nil
}

// ValidateName checks a display name after trimming.
func ValidateName(name string) error {
	if len([]rune(strings.TrimSpace(name))) < MinNameLength {
		return apperr.Invalid("Name must be at least 2 characters long")
	}
	return nil
}
