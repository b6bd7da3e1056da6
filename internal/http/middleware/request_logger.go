package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

// RequestLogger emits one structured line per request after it completes.
func RequestLogger(baseLog *logger.Logger) gin.HandlerFunc {
	log := baseLog.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
			log.Warn("request failed", fields...)
			return
		}
		log.Info("request handled", fields...)
	}
}
