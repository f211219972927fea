// internal/middleware/logging.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/metrics"
)

// RequestLogger logs every request with logrus and records request metrics.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), duration)

		if c.Request.URL.Path == "/health" {
			return
		}

		userID, _ := c.Get("user_id")
		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   duration.Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"user_id":    userID,
		}
		if resourceID := extractResourceID(c.Request.URL.Path); resourceID != "" {
			fields["resource_type"] = extractResourceType(c.Request.URL.Path)
			fields["resource_id"] = resourceID
		}

		entry := logrus.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request processed")
		case c.Writer.Status() >= 400:
			entry.Warn("Request processed")
		default:
			entry.Info("Request processed")
		}
	}
}

func extractResourceType(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if _, err := uuid.Parse(part); err == nil && i > 0 {
			return parts[i-1]
		}
	}
	return "unknown"
}

func extractResourceID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, part := range parts {
		if _, err := uuid.Parse(part); err == nil {
			return part
		}
	}
	return ""
}
