package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Audit records who performed action after a successful request.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.Named("audit").Sugar()
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		subject, role := "anonymous", ""
		if claims, ok := ClaimsFrom(c); ok {
			subject = claims.Subject
			role = string(claims.Role)
		}

		sugar.Infow("council action",
			"action", action,
			"subject", subject,
			"role", role,
			"path", c.FullPath(),
			"method", c.Request.Method,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
