package models

import "time"

// Role constants for accounts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// AccountRestoreWindow is how long a soft-deleted account can be restored.
const AccountRestoreWindow = 30 * 24 * time.Hour

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// Account is an authenticated principal.
type Account struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	PasswordHash  string     `json:"-"`
	IsActive      bool       `json:"is_active"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsDeleted reports whether the account is soft-deleted.
func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// CanRestore reports whether a soft-deleted account is still within the restore window.
func (a *Account) CanRestore(now time.Time) bool {
	return a.DeletedAt != nil && now.Sub(*a.DeletedAt) <= AccountRestoreWindow
}

// RefreshToken is the server-side record backing refresh token rotation.
// Only the SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsUsable reports whether the token is neither revoked nor expired.
func (t *RefreshToken) IsUsable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
