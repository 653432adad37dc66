package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nextmonthlab/progress-versioning/pkg/logger"
	"github.com/rs/zerolog"
)

// RequestLogger assigns every request a short id, echoes it in the
// X-Request-ID header and logs the outcome with structured fields.
// Audit-relevant requests (mutations) additionally carry the acting
// user id once JWTAuth has run.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		status := c.Writer.Status()
		event := eventForStatus(status)
		if userID := GetUserID(c); userID != 0 {
			event = event.Int64("user_id", userID)
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("query", c.Request.URL.RawQuery).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("request")
	}
}

func eventForStatus(status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.GetLogger().Error()
	case status >= 400:
		return logger.GetLogger().Warn()
	default:
		return logger.GetLogger().Info()
	}
}
