package monitoring

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SlowRequestThreshold marks a request worth a warning in the logs
const SlowRequestThreshold = 5 * time.Second

// RequestMiddleware logs every HTTP request once it completes
func RequestMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.Error("Request Error",
				"error", err.Err,
				"method", method,
				"path", path,
				"status_code", statusCode,
			)
		}

		if duration > SlowRequestThreshold {
			logger.Warn("Slow Request", "path", path, "duration_ms", duration.Milliseconds())
		}
	}
}

// DeliveryMonitoringMiddleware flags webhook deliveries that do not look like
// they came from a webhook sender, before signature verification runs.
func DeliveryMonitoringMiddleware(logger *Logger, maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		details := make(map[string]interface{})

		if ct := c.ContentType(); ct != "" && ct != "application/json" {
			details["content_type"] = ct
		}
		if maxBodyBytes > 0 && c.Request.ContentLength > maxBodyBytes {
			details["size_bytes"] = c.Request.ContentLength
		}
		if ua := c.GetHeader("User-Agent"); ua != "" && !strings.HasPrefix(ua, "GitHub-Hookshot/") {
			details["unexpected_user_agent"] = true
		}

		if len(details) > 0 {
			logger.SecurityLogger("unusual_delivery", c.ClientIP(), c.GetHeader("User-Agent"), details)
		}

		c.Next()
	}
}
