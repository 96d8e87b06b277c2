// Package policy holds the input and ownership rules that sit in front of the
// account store: email and password shape, accepted roles, and the narrow
// rights of the super-admin account.
package policy

import (
	"errors"
	"regexp"
	"strings"

	"github.com/adamscao/captionapi/internal/config"
	"github.com/adamscao/captionapi/internal/models"
)

var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrMissingPassword  = errors.New("password is required")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrInvalidRole      = errors.New("invalid role")
	ErrNotSuperAdmin    = errors.New("only the super admin can delete users")
	ErrProtectedTarget  = errors.New("the super admin account cannot be deleted")
)

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

// local@domain.tld with no whitespace and a single @
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validator validates account input against policy
type Validator struct {
	superAdminEmail   string
	minPasswordLength int
	allowRole         bool
}

// NewValidator creates a new policy validator
func NewValidator(cfg *config.Config) *Validator {
	return &Validator{
		superAdminEmail:   cfg.Admin.SuperAdminEmail,
		minPasswordLength: cfg.Admin.MinPasswordLength,
		allowRole:         cfg.Auth.AllowRoleOnRegister,
	}
}

// ValidateEmail checks the local@domain.tld shape
func (v *Validator) ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword requires a non-empty password of at least the configured
// length and at most MaxPasswordBytes bytes
func (v *Validator) ValidatePassword(password string) error {
	if password == "" {
		return ErrMissingPassword
	}
	if len([]rune(password)) < v.minPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// RegistrationRole resolves the role a new account gets. An empty request
// means user; a requested role is honoured only when registration is allowed
// to pick one.
func (v *Validator) RegistrationRole(requested string) (models.Role, error) {
	if requested == "" {
		return models.RoleUser, nil
	}

	role := models.Role(strings.ToLower(strings.TrimSpace(requested)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}

	if !v.allowRole {
		return models.RoleUser, nil
	}
	return role, nil
}

// IsSuperAdmin reports whether email is the distinguished super-admin address
func (v *Validator) IsSuperAdmin(email string) bool {
	return v.superAdminEmail != "" && email == v.superAdminEmail
}

// SuperAdminEmail returns the configured super-admin address
func (v *Validator) SuperAdminEmail() string {
	return v.superAdminEmail
}

// CanDelete checks that requester may delete target. Only the super admin may
// delete, and never its own account.
func (v *Validator) CanDelete(requesterEmail string, target *models.User) error {
	if !v.IsSuperAdmin(requesterEmail) {
		return ErrNotSuperAdmin
	}
	if v.IsSuperAdmin(target.Email) {
		return ErrProtectedTarget
	}
	return nil
}
