package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/captionapi/internal/auth"
	"github.com/adamscao/captionapi/internal/models"
)

// Context keys set by RequireAuth
const (
	ContextKeyEmail = "auth_email"
	ContextKeyRole  = "auth_role"
)

const bearerPrefix = "Bearer "

// RequireAuth middleware checks for a valid session bearer token
func RequireAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Unauthorized",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimSpace(header[len(bearerPrefix):]), auth.PurposeSession)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Unauthorized",
			})
			return
		}

		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyRole, models.Role(claims.Role))

		c.Next()
	}
}

// RequireAdmin middleware rejects authenticated callers without the admin role.
// It must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentRole(c) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Access denied",
			})
			return
		}

		c.Next()
	}
}

// CurrentEmail returns the email of the authenticated caller
func CurrentEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

// CurrentRole returns the role claim of the authenticated caller
func CurrentRole(c *gin.Context) models.Role {
	role, _ := c.Get(ContextKeyRole)
	r, _ := role.(models.Role)
	return r
}
