package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/captionapi/internal/api/middleware"
	"github.com/adamscao/captionapi/internal/models"
	"github.com/adamscao/captionapi/internal/service"
)

// AdminHandler handles administrative operations
type AdminHandler struct {
	svc     *service.AccountService
	auditor *Auditor
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc *service.AccountService, auditor *Auditor) *AdminHandler {
	return &AdminHandler{
		svc:     svc,
		auditor: auditor,
	}
}

// ListUsers lists every account with its quota
// GET /admin
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.AdminListUsers(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// UserID accepts a user id sent either as a JSON number or a numeric string
type UserID int64

// UnmarshalJSON implements json.Unmarshaler
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.New("userId must be an integer")
	}
	*id = UserID(n)
	return nil
}

var _ json.Unmarshaler = (*UserID)(nil)

// PromoteRequest represents a promotion request
type PromoteRequest struct {
	UserID UserID `json:"userId"`
}

// PromoteUser grants the admin role
// PUT /admin/promote
func (h *AdminHandler) PromoteUser(c *gin.Context) {
	var req PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	user, err := h.svc.AdminPromoteUser(c.Request.Context(), int64(req.UserID))
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	h.auditor.Record(c, models.ActionAdminPromote, user.Email, nil, gin.H{
		"userId": user.ID,
		"by":     middleware.CurrentEmail(c),
	})

	c.JSON(http.StatusOK, MessageResponse{Message: "User promoted to admin successfully"})
}

// DeleteUser permanently deletes an account. Only the super admin may call it.
// DELETE /admin/delete-user/:userId
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	requester := middleware.CurrentEmail(c)

	// An unparsable id goes to the service as 0 so that non-super-admins
	// get Forbidden regardless of what they sent.
	targetID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || targetID < 0 {
		targetID = 0
	}

	target, err := h.svc.AdminDeleteUser(c.Request.Context(), requester, targetID)
	if err != nil {
		if errors.Is(err, service.ErrMissingUserID) {
			RespondError(c, http.StatusBadRequest, "invalid_user_id", "User ID must be a positive integer")
			return
		}
		if service.AsError(err).Kind == service.KindAuthorization {
			h.auditor.Record(c, models.ActionAdminDeleteUser, requester, err, gin.H{"userId": targetID})
		}
		RespondServiceError(c, err)
		return
	}

	h.auditor.Record(c, models.ActionAdminDeleteUser, target.Email, nil, gin.H{
		"userId": target.ID,
		"by":     requester,
	})

	c.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// EndpointStats returns the request ledger
// GET /admin/endpoint-stats
func (h *AdminHandler) EndpointStats(c *gin.Context) {
	stats, err := h.svc.AdminGetEndpointStats(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
