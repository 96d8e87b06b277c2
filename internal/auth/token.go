package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose separates session tokens from password reset tokens.
type Purpose string

const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

var (
	ErrMalformed        = errors.New("token is malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token has expired")
	ErrWrongPurpose     = errors.New("token was issued for a different purpose")
	ErrInvalidClaims    = errors.New("token claims are invalid")
)

// Claims is the payload of every token the service signs
type Claims struct {
	Email               string  `json:"email"`
	Role                string  `json:"role,omitempty"`
	Purpose             Purpose `json:"typ"`
	PasswordFingerprint string  `json:"pwf,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens with a server-held secret
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenManager creates a token manager
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs claims valid for ttl. Issued-at, expiry, issuer and a random
// token id are filled in here.
func (m *TokenManager) Issue(claims Claims, ttl time.Duration) (string, error) {
	if claims.Purpose == "" {
		return "", errors.New("token purpose is required")
	}

	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    m.issuer,
		Subject:   claims.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify parses token, checks its signature, expiry and issuer, and that it
// was issued for purpose.
func (m *TokenManager) Verify(token string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}

// Fingerprint hashes a password hash for embedding in reset tokens
func Fingerprint(passwordHash string) string {
	hash := sha256.Sum256([]byte(passwordHash))
	return base64.RawStdEncoding.EncodeToString(hash[:])
}

// MatchFingerprint compares a token fingerprint against the current password
// hash using constant-time comparison
func MatchFingerprint(passwordHash, fingerprint string) bool {
	actual := Fingerprint(passwordHash)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(fingerprint)) == 1
}
