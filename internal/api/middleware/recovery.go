package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/entrasync/internal/api/models"
)

// Recovery recovers from handler panics and answers with a problem response.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				attrs := []any{
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"stack", string(debug.Stack()),
				}
				if requestID := c.GetString(RequestIDKey); requestID != "" {
					attrs = append(attrs, "request_id", requestID)
				}
				logger.Error("panic recovered", attrs...)

				if c.Writer.Written() {
					c.Abort()
					return
				}
				models.RespondWithError(c, models.NewInternalError(
					c.Request.URL.Path,
					"An unexpected error occurred",
				))
				c.Abort()
			}
		}()

		c.Next()
	}
}
