// Package service implements the account, quota and admin operations on top
// of the repositories.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adamscao/captionapi/internal/auth"
	"github.com/adamscao/captionapi/internal/config"
	"github.com/adamscao/captionapi/internal/db/repository"
	"github.com/adamscao/captionapi/internal/logging"
	"github.com/adamscao/captionapi/internal/mailer"
	"github.com/adamscao/captionapi/internal/models"
	"github.com/adamscao/captionapi/internal/policy"
)

// ResetRequestedMessage is returned for every well-formed reset request,
// whether or not the address is registered.
const ResetRequestedMessage = "If that email is registered, a password reset link has been sent"

// UserStore is the account store the service depends on
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, role models.Role) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*models.UserSummary, error)
	GetAPIQuota(ctx context.Context, userID int64) (int, error)
	DecrementAPIQuota(ctx context.Context, userID int64) (int, error)
}

// StatsReader reads the endpoint usage ledger
type StatsReader interface {
	List(ctx context.Context) ([]*models.EndpointStat, error)
}

// Deps are the collaborators of AccountService
type Deps struct {
	Users     UserStore
	Stats     StatsReader
	Hasher    *auth.PasswordHasher
	Tokens    *auth.TokenManager
	Validator *policy.Validator
	Mailer    mailer.Mailer
	Logger    *zap.Logger
}

// AccountService coordinates registration, login, password reset, quota
// metering and admin user management.
type AccountService struct {
	users     UserStore
	stats     StatsReader
	hasher    *auth.PasswordHasher
	tokens    *auth.TokenManager
	validator *policy.Validator
	mailer    mailer.Mailer
	logger    *zap.Logger

	sessionTTL time.Duration
	resetTTL   time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService constructs an AccountService
func NewAccountService(cfg *config.Config, deps Deps) *AccountService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AccountService{
		users:      deps.Users,
		stats:      deps.Stats,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		validator:  deps.Validator,
		mailer:     deps.Mailer,
		logger:     logger,
		sessionTTL: cfg.GetSessionTTL(),
		resetTTL:   cfg.GetResetTTL(),
	}
}

// LoginResult is a freshly issued session
type LoginResult struct {
	Token string      `json:"token"`
	Role  models.Role `json:"role"`
}

// QuotaStatus is the metered-call balance of a user
type QuotaStatus struct {
	APICount int  `json:"apiCount"`
	MaxedOut bool `json:"maxedOut"`
}

func quotaStatus(remaining int) QuotaStatus {
	return QuotaStatus{APICount: remaining, MaxedOut: remaining <= 0}
}

// Register creates a user account with a fresh quota
func (s *AccountService) Register(ctx context.Context, email, password, role string) (*models.User, error) {
	if err := s.validator.ValidateEmail(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}

	r, err := s.validator.RegistrationRole(role)
	if err != nil {
		return nil, ErrInvalidRole
	}

	return s.createUser(ctx, email, password, r)
}

// AdminCreateUser creates an account with an explicit role. It is meant for
// operator tooling and bypasses the registration role policy.
func (s *AccountService) AdminCreateUser(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	if err := s.validator.ValidateEmail(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	return s.createUser(ctx, email, password, role)
}

func (s *AccountService) createUser(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.internal("hash password", err)
	}

	user := &models.User{Email: email, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, s.internal("create user", err)
	}

	s.logger.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.String("email", logging.MaskEmail(email)),
		zap.String("role", string(role)),
	)

	return user, nil
}

func (s *AccountService) checkPassword(password string) error {
	switch err := s.validator.ValidatePassword(password); {
	case errors.Is(err, policy.ErrMissingPassword):
		return ErrMissingPassword
	case errors.Is(err, policy.ErrPasswordTooLong):
		return ErrPasswordTooLong
	case err != nil:
		return ErrWeakPassword
	}
	return nil
}

// Login verifies credentials and issues a session token. Unknown email and
// wrong password fail the same way.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		// Spend the same bcrypt work as a real account would.
		_, _ = s.hasher.Verify(password, s.unknownUserHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.internal("get user", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, s.internal("verify password", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(auth.Claims{
		Email:   user.Email,
		Role:    string(user.Role),
		Purpose: auth.PurposeSession,
	}, s.sessionTTL)
	if err != nil {
		return nil, s.internal("issue session token", err)
	}

	return &LoginResult{Token: token, Role: user.Role}, nil
}

// unknownUserHash is a hash at the configured cost that no password matches
// in practice. It is compared against on logins for unknown emails.
func (s *AccountService) unknownUserHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("captionapi-unknown-user")
		if err != nil {
			s.logger.Error("failed to prepare login comparison hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// RequestPasswordReset mails a reset link to a registered address. An unknown
// address succeeds silently.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	if err := s.validator.ValidateEmail(email); err != nil {
		return ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("password reset requested for unknown email", zap.String("email", logging.MaskEmail(email)))
		return nil
	}
	if err != nil {
		return s.internal("get user", err)
	}

	token, err := s.tokens.Issue(auth.Claims{
		Email:               user.Email,
		Purpose:             auth.PurposeReset,
		PasswordFingerprint: auth.Fingerprint(user.PasswordHash),
	}, s.resetTTL)
	if err != nil {
		return s.internal("issue reset token", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to dispatch password reset email",
			zap.String("email", logging.MaskEmail(user.Email)),
			zap.Error(err),
		)
		return ErrEmailDispatch
	}

	return nil
}

// ConfirmPasswordReset redeems a reset token and returns the email whose
// password was replaced. The token stops working once the password changes.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (string, error) {
	if token == "" || newPassword == "" {
		return "", ErrMissingFields
	}

	claims, err := s.tokens.Verify(token, auth.PurposeReset)
	if err != nil {
		s.logger.Debug("reset token rejected", zap.Error(err))
		return "", ErrInvalidOrExpiredToken
	}

	user, err := s.users.GetByEmail(ctx, claims.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", s.internal("get user", err)
	}

	if !auth.MatchFingerprint(user.PasswordHash, claims.PasswordFingerprint) {
		return "", ErrInvalidOrExpiredToken
	}

	if err := s.checkPassword(newPassword); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", s.internal("hash password", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, user.Email, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", s.internal("update password", err)
	}

	s.logger.Info("password reset", zap.Int64("user_id", user.ID))
	return user.Email, nil
}

// GetAPIQuota returns the remaining metered calls of the user
func (s *AccountService) GetAPIQuota(ctx context.Context, email string) (*QuotaStatus, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	remaining, err := s.users.GetAPIQuota(ctx, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, s.internal("get api quota", err)
	}

	status := quotaStatus(remaining)
	return &status, nil
}

// UseAPI consumes one metered call. At zero nothing is consumed and
// ErrQuotaExhausted is returned.
func (s *AccountService) UseAPI(ctx context.Context, email string) (*QuotaStatus, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	remaining, err := s.users.DecrementAPIQuota(ctx, user.ID)
	switch {
	case errors.Is(err, repository.ErrQuotaExhausted):
		return nil, ErrQuotaExhausted
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, s.internal("decrement api quota", err)
	}

	status := quotaStatus(remaining)
	return &status, nil
}

// AdminListUsers lists every account with its remaining quota
func (s *AccountService) AdminListUsers(ctx context.Context) ([]*models.UserSummary, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.internal("list users", err)
	}
	return users, nil
}

// AdminPromoteUser grants the admin role. Promoting an admin again is a no-op.
func (s *AccountService) AdminPromoteUser(ctx context.Context, userID int64) (*models.User, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}

	if err := s.users.UpdateRole(ctx, userID, models.RoleAdmin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.internal("promote user", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, s.internal("get user", err)
	}

	s.logger.Info("user promoted", zap.Int64("user_id", userID))
	return user, nil
}

// AdminDeleteUser deletes an account on behalf of requesterEmail. Only the
// super admin may delete, and the super admin account itself is never deleted.
// The requester is checked before the target id is looked at.
func (s *AccountService) AdminDeleteUser(ctx context.Context, requesterEmail string, targetID int64) (*models.User, error) {
	if !s.validator.IsSuperAdmin(requesterEmail) {
		return nil, ErrForbidden
	}
	if targetID <= 0 {
		return nil, ErrMissingUserID
	}

	target, err := s.users.GetByID(ctx, targetID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, s.internal("get user", err)
	}

	switch err := s.validator.CanDelete(requesterEmail, target); {
	case errors.Is(err, policy.ErrProtectedTarget):
		return nil, ErrSuperAdminProtected
	case err != nil:
		return nil, ErrForbidden
	}

	if err := s.users.Delete(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.internal("delete user", err)
	}

	s.logger.Info("user deleted", zap.Int64("user_id", targetID))
	return target, nil
}

// AdminGetEndpointStats returns the request ledger, busiest routes first
func (s *AccountService) AdminGetEndpointStats(ctx context.Context) ([]*models.EndpointStat, error) {
	stats, err := s.stats.List(ctx)
	if err != nil {
		return nil, s.internal("list endpoint stats", err)
	}
	return stats, nil
}

// EnsureSuperAdmin makes sure the configured super-admin account exists and
// holds the admin role. Without a bootstrap password a missing account is
// only reported. It returns true when an account was created.
func (s *AccountService) EnsureSuperAdmin(ctx context.Context, password string) (bool, error) {
	email := s.validator.SuperAdminEmail()
	if email == "" {
		return false, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.IsAdmin() {
			if _, err := s.AdminPromoteUser(ctx, user.ID); err != nil {
				return false, err
			}
		}
		return false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return false, s.internal("get super admin", err)
	}

	if password == "" {
		s.logger.Warn("super admin account does not exist and no bootstrap password is set",
			zap.String("email", logging.MaskEmail(email)))
		return false, nil
	}

	if _, err := s.AdminCreateUser(ctx, email, password, models.RoleAdmin); err != nil {
		// Lost a race with another creator; the account exists now.
		if errors.Is(err, ErrDuplicateEmail) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *AccountService) userByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, s.internal("get user", err)
	}
	return user, nil
}

// internal logs err and hides it behind ErrInternal
func (s *AccountService) internal(op string, err error) error {
	s.logger.Error("account operation failed", zap.String("op", op), zap.Error(err))
	return ErrInternal
}
