package service

import "errors"

// Kind is the category of a service error. Transports map it to a status.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindQuotaExhausted
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a failure safe to show to a client
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidEmail          = newError(KindValidation, "invalid_email", "Invalid email address")
	ErrMissingPassword       = newError(KindValidation, "missing_password", "Password is required")
	ErrWeakPassword          = newError(KindValidation, "weak_password", "Password is too short")
	ErrPasswordTooLong       = newError(KindValidation, "password_too_long", "Password must be at most 72 bytes")
	ErrInvalidRole           = newError(KindValidation, "invalid_role", "Role must be 'user' or 'admin'")
	ErrMissingCredentials    = newError(KindValidation, "missing_credentials", "Email and password are required")
	ErrMissingFields         = newError(KindValidation, "missing_fields", "Token and new password are required")
	ErrInvalidOrExpiredToken = newError(KindValidation, "invalid_token", "Invalid or expired token")
	ErrMissingUserID         = newError(KindValidation, "missing_user_id", "User ID is required")

	ErrInvalidCredentials = newError(KindAuthentication, "invalid_credentials", "Invalid email or password")

	ErrForbidden           = newError(KindAuthorization, "forbidden", "Only the super admin can delete users")
	ErrSuperAdminProtected = newError(KindAuthorization, "forbidden", "Super admin account cannot be deleted")

	ErrUserNotFound = newError(KindNotFound, "user_not_found", "User not found")

	ErrDuplicateEmail = newError(KindConflict, "email_exists", "Email already exists")

	ErrQuotaExhausted = newError(KindQuotaExhausted, "quota_exhausted", "API call limit reached")

	ErrEmailDispatch = newError(KindInternal, "email_dispatch_failed", "Failed to send password reset email")
	ErrInternal      = newError(KindInternal, "internal_error", "Internal server error")
)

// AsError extracts the service error from err. Anything that is not one is
// reported as ErrInternal.
func AsError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return ErrInternal
}
