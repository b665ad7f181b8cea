package middleware

import (
	"time"

	"freelancer-bot/internal/logger"

	"github.com/gin-gonic/gin"
)

// AuditMiddleware logs every ops call with its caller and outcome.
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// API-key callers carry no claims, so no token id.
		tokenID := ""
		if claims := GetClaims(c); claims != nil {
			tokenID = claims.ID
		}

		logger.Info("ops request",
			"request_id", GetRequestID(c),
			"subject", GetSubject(c),
			"token_id", tokenID,
			"role", GetRole(c),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"params", c.Params,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
