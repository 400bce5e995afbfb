package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/takumin/iqdb/internal/logger"
)

// RequestLogger returns a middleware that injects a request-scoped logger
// carrying a generated request ID, and logs request completion with status
// and latency.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := uuid.New().String()
		reqLog := log.WithFields(logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))
		c.Header("X-Request-ID", requestID)

		c.Next()

		latency := time.Since(start)
		fullPath := path
		if query := c.Request.URL.RawQuery; query != "" {
			fullPath = path + "?" + query
		}

		reqLog.WithFields(logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: latency.Milliseconds(),
			"size":                 c.Writer.Size(),
			"client_ip":            c.ClientIP(),
		}).Infof("%s %s", c.Request.Method, fullPath)
	}
}
