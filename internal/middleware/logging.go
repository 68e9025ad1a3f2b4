package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/bizdesk/pkg/logger"
	"github.com/thereayou/bizdesk/pkg/metrics"
	"go.uber.org/zap"
)

const (
	CorrelationHeader = "X-Correlation-ID"
	CorrelationKey    = "correlationId"
)

// Logging logs every request and records its latency.
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Set(CorrelationKey, correlationID)
		c.Header(CorrelationHeader, correlationID)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(c.Request.Method, route, strconv.Itoa(status), duration.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("correlation_id", correlationID),
			zap.String("client_ip", c.ClientIP()),
		}
		if ac := GetAuth(c); ac != nil {
			if ac.User != nil {
				fields = append(fields, zap.Uint("user_id", ac.User.ID))
			}
			if ac.WorkspaceID != 0 {
				fields = append(fields, zap.Uint("workspace_id", ac.WorkspaceID))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// Recovery turns panics into a logged 500.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("correlation_id", c.GetString(CorrelationKey)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
