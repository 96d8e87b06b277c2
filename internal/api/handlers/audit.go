package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adamscao/captionapi/internal/db/repository"
	"github.com/adamscao/captionapi/internal/models"
	"github.com/adamscao/captionapi/internal/service"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// Auditor appends security events to the audit trail. Write failures are
// logged and never change the response.
type Auditor struct {
	repo   *repository.AuditRepository
	logger *zap.Logger
}

// NewAuditor creates a new auditor
func NewAuditor(repo *repository.AuditRepository, logger *zap.Logger) *Auditor {
	return &Auditor{repo: repo, logger: logger}
}

// Record stores one event for the current request. A nil err marks success.
func (a *Auditor) Record(c *gin.Context, action, email string, err error, details interface{}) {
	entry := &models.AuditLog{
		Action:    action,
		Email:     email,
		ClientIP:  GetClientIP(c),
		UserAgent: c.GetHeader("User-Agent"),
		Success:   err == nil,
	}
	if err != nil {
		entry.ErrorMsg = service.AsError(err).Message
	}
	if details != nil {
		if b, mErr := json.Marshal(details); mErr == nil {
			entry.Details = string(b)
		}
	}

	if cErr := a.repo.Create(c.Request.Context(), entry); cErr != nil {
		a.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(cErr))
	}
}

// ListAuditLogs lists the audit trail, newest first
// GET /admin/audit-logs?email=&action=&limit=
func (a *Auditor) ListAuditLogs(c *gin.Context) {
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	logs, err := a.repo.List(c.Request.Context(), c.Query("email"), c.Query("action"), limit)
	if err != nil {
		a.logger.Error("failed to list audit logs", zap.Error(err))
		RespondServiceError(c, service.ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
