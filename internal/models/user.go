package models

import "time"

// Role is the authorization level of a user account
type Role string

// Supported roles. Promotion is one-directional: user -> admin.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a user account
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserSummary is the admin listing projection of a user and its quota
type UserSummary struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	APICount int    `json:"apiCount"`
}

// APIQuota holds the remaining metered calls for a user
type APIQuota struct {
	UserID         int64 `json:"userId"`
	RemainingCalls int   `json:"remainingCalls"`
}

// MaxedOut reports whether no metered calls remain
func (q APIQuota) MaxedOut() bool {
	return q.RemainingCalls <= 0
}
