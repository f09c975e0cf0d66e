package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/api/shared/errors"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
)

const (
	REQUEST_ID_HEADER = "X-Request-ID"
	REQUEST_ID_KEY    = "request_id"
)

// RequestID returns a gin middleware assigning every request an id. An id sent by the
// client is kept when it is a valid UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(REQUEST_ID_HEADER)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		c.Set(REQUEST_ID_KEY, requestID)
		c.Header(REQUEST_ID_HEADER, requestID)
		c.Next()
	}
}

// RequestIDFrom returns the id of the request, or an empty string outside RequestID
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(REQUEST_ID_KEY)
}

// Logger returns a gin middleware for structured logging using zap
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.InfoCtx(c.Request.Context(), "API request",
			zap.String("request_id", RequestIDFrom(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// Recovery returns a gin middleware for panic recovery with logging
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorCtx(c.Request.Context(), fmt.Errorf("panic recovered: %v", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", RequestIDFrom(c)),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errors.NewInternalError("Internal server error"))
			}
		}()
		c.Next()
	}
}
