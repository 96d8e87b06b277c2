package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/captionapi/internal/service"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// MessageResponse is the body of operations that only confirm success
type MessageResponse struct {
	Message string `json:"message"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondErrorWithDetails sends an error response with details
func RespondErrorWithDetails(c *gin.Context, statusCode int, errorCode string, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// RespondServiceError sends the response for an error returned by the service layer
func RespondServiceError(c *gin.Context, err error) {
	svcErr := service.AsError(err)
	RespondError(c, StatusFor(svcErr.Kind), svcErr.Code, svcErr.Message)
}

// StatusFor maps a service error kind to its HTTP status
func StatusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindAuthorization, service.KindQuotaExhausted:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GetClientIP gets the client IP address. Forwarding headers are only honoured
// from the trusted proxies configured on the engine.
func GetClientIP(c *gin.Context) string {
	return c.ClientIP()
}
