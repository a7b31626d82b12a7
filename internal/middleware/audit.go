package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/pkg/middleware/requestid"
)

const auditResourceKey = "audit_resource_id"

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditResource names the record a handler just created, for routes without
// an :id parameter.
func AuditResource(c *gin.Context, id string) {
	c.Set(auditResourceKey, id)
}

// Audit writes one audit entry per successful mutation. Failed requests and
// audit write errors are not recorded; the latter are only logged.
func Audit(writer AuditWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if actor, ok := CurrentActor(c); ok {
			entry.UserID = &actor.UserID
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		} else if id := c.GetString(auditResourceKey); id != "" {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(struct {
			Route     string `json:"route"`
			Method    string `json:"method"`
			Status    int    `json:"status"`
			LatencyMS int64  `json:"latency_ms"`
			RequestID string `json:"request_id,omitempty"`
		}{c.FullPath(), c.Request.Method, status, time.Since(start).Milliseconds(), requestid.Value(c)})

		if err := writer.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("audit entry dropped",
				zap.String("action", action),
				zap.String("request_id", requestid.Value(c)),
				zap.Error(err),
			)
		}
	}
}
