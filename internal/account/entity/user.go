package entity

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account row in the `users` table.
type User struct {
	ID               int64     `db:"id"`
	Name             string    `db:"name"`
	Email            string    `db:"email"`
	PasswordHash     string    `db:"password_hash"`
	Role             string    `db:"role"`
	Verified         bool      `db:"verified"`
	Phone            *string   `db:"phone"`
	Bio              *string   `db:"bio"`
	TwoFactorEnabled bool      `db:"two_factor_enabled"`
	TwoFactorSecret  *string   `db:"two_factor_secret"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// View is the account as returned to its owner. It never carries the
// password hash or the two-factor secret.
type View struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Verified         bool      `json:"verified"`
	Phone            *string   `json:"phone"`
	Bio              *string   `json:"bio"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MinimalAuthView is the reduced projection returned by login.
type MinimalAuthView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

func (u *User) View() View {
	return View{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		Verified:         u.Verified,
		Phone:            u.Phone,
		Bio:              u.Bio,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func (u *User) Minimal() MinimalAuthView {
	return MinimalAuthView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Verified: u.Verified}
}

// ProfileUpdate carries optional profile changes. A nil field is left as is;
// an empty Phone or Bio clears the column.
type ProfileUpdate struct {
	Name  *string
	Phone *string
	Bio   *string
}

// Stats aggregates account counts for the admin dashboard.
type Stats struct {
	TotalUsers int64 `db:"total_users" json:"total_users"`
	Admins     int64 `db:"admins" json:"admins"`
	Users      int64 `db:"users" json:"users"`
}
