package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/captionapi/internal/models"
	"github.com/adamscao/captionapi/internal/service"
)

// AuthHandler handles registration, login and password reset
type AuthHandler struct {
	svc     *service.AccountService
	auditor *Auditor
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *service.AccountService, auditor *Auditor) *AuthHandler {
	return &AuthHandler{
		svc:     svc,
		auditor: auditor,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// RegisterResponse represents a registration response
type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

// Register creates a new account
// POST /register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateEmail) {
			h.auditor.Record(c, models.ActionRegister, req.Email, err, nil)
		}
		RespondServiceError(c, err)
		return
	}

	h.auditor.Record(c, models.ActionRegister, user.Email, nil, gin.H{"userId": user.ID, "role": user.Role})

	c.JSON(http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		UserID:  user.ID,
	})
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login issues a session token
// POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.auditor.Record(c, models.ActionLoginFailed, req.Email, err, nil)
		}
		RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Protected confirms the bearer token is valid
// GET /protected
func (h *AuthHandler) Protected(c *gin.Context) {
	c.JSON(http.StatusOK, MessageResponse{Message: "Access granted to protected route"})
}

// ResetRequest represents a password reset link request
type ResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset mails a reset link
// POST /request-reset-password
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email)
	if errors.Is(err, service.ErrInvalidEmail) {
		RespondServiceError(c, err)
		return
	}

	h.auditor.Record(c, models.ActionPasswordResetRequest, req.Email, err, nil)

	if err != nil {
		RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: service.ResetRequestedMessage})
}

// ResetConfirmRequest represents a password reset
type ResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword redeems a reset token
// POST /reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	email, err := h.svc.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		if !errors.Is(err, service.ErrMissingFields) {
			h.auditor.Record(c, models.ActionPasswordReset, email, err, nil)
		}
		RespondServiceError(c, err)
		return
	}

	h.auditor.Record(c, models.ActionPasswordReset, email, nil, nil)

	c.JSON(http.StatusOK, MessageResponse{Message: "Password reset successful"})
}
