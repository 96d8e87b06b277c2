package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UnmatchedEndpoint is the ledger key shared by all requests no route matched
const UnmatchedEndpoint = "<unmatched>"

// HitRecorder counts requests per method and route
type HitRecorder interface {
	RecordHit(ctx context.Context, method, endpoint string) error
}

// TrackEndpoint records every request in the endpoint usage ledger before
// any later middleware can reject it. Requests are keyed by route template;
// requests no route matched share UnmatchedEndpoint. A failed write is logged
// and the request continues.
func TrackEndpoint(ledger HitRecorder, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = UnmatchedEndpoint
		}

		if err := ledger.RecordHit(c.Request.Context(), c.Request.Method, endpoint); err != nil {
			log.Warn("failed to record endpoint hit",
				zap.String("method", c.Request.Method),
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		}

		c.Next()
	}
}
