package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/captionapi/internal/api/middleware"
	"github.com/adamscao/captionapi/internal/models"
	"github.com/adamscao/captionapi/internal/service"
)

// QuotaHandler handles metered API quota requests
type QuotaHandler struct {
	svc     *service.AccountService
	auditor *Auditor
}

// NewQuotaHandler creates a new quota handler
func NewQuotaHandler(svc *service.AccountService, auditor *Auditor) *QuotaHandler {
	return &QuotaHandler{
		svc:     svc,
		auditor: auditor,
	}
}

// GetAPICount returns the caller's remaining calls
// GET /get-api-count
func (h *QuotaHandler) GetAPICount(c *gin.Context) {
	status, err := h.svc.GetAPIQuota(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// UseAPI consumes one metered call
// POST /use-api
func (h *QuotaHandler) UseAPI(c *gin.Context) {
	email := middleware.CurrentEmail(c)

	status, err := h.svc.UseAPI(c.Request.Context(), email)
	if errors.Is(err, service.ErrQuotaExhausted) {
		h.auditor.Record(c, models.ActionQuotaExhausted, email, err, nil)
		RespondErrorWithDetails(c, http.StatusForbidden, service.ErrQuotaExhausted.Code, service.ErrQuotaExhausted.Message,
			service.QuotaStatus{APICount: 0, MaxedOut: true})
		return
	}
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
