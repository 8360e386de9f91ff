package api

import (
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags the request context logger with the caller's request id,
// minting one when absent.
func RequestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), reqID))
		c.Next()
	}
}

func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := log.WithFields(c.Request.Context(), map[string]any{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		})
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		c.Next()

		ctx = log.WithFields(ctx, map[string]any{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		log.Info(ctx, "request.complete")
	}
}

func Recoverer(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				log.Error(log.WithField(c.Request.Context(), "panic", rec), "panic.recovered", err)
				writeError(c, nil, apperrors.Wrap(apperrors.CodeInternal, err, "panic"))
			}
		}()
		c.Next()
	}
}
