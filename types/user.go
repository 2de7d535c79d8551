package types

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It contains identity, role, verification state and audit metadata.
type User struct {
	// ID is the opaque unique identifier of the user.
	ID string `json:"user_id" db:"user_id"`

	// FullName is the user's display or full name.
	FullName string `json:"fullname" db:"fullname"`

	// Email is the user's unique email address, also used to log in.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level ("user" or "admin").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// Verified reports whether the user redeemed their verification token.
	Verified bool `json:"is_verified" db:"is_verified"`

	// VerificationToken is the single-use token mailed at registration.
	// It is NULL once the email address has been verified and is never
	// exposed in API responses.
	VerificationToken *string `json:"-" db:"verification_token"`

	// AvatarKey is the object storage key of the uploaded avatar, if any.
	AvatarKey *string `json:"-" db:"avatar_key"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasAvatar reports whether an avatar object has been stored for the user.
func (u User) HasAvatar() bool {
	return u.AvatarKey != nil && *u.AvatarKey != ""
}

// IsAdmin reports whether the role grants administrative access.
func IsAdmin(role string) bool {
	return role == RoleAdmin
}
