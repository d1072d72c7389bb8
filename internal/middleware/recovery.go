package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/lgu-eportal/rptpay/internal/logger"
)

// Recovery creates a middleware that recovers from panics and logs them.
// A panic inside a payment transaction has already rolled the transaction
// back by the time it reaches here; the client gets the generic system error.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				// Get stack trace
				stack := debug.Stack()

				// Get request ID if available
				requestID := GetRequestID(c)

				// Get logger from context or use provided logger
				requestLogger := GetLogger(c)
				if requestLogger == nil {
					requestLogger = log
				}

				// Log the panic with full details
				requestLogger.Error(
					"Panic recovered",
					fmt.Errorf("panic: %v", err),
					map[string]interface{}{
						"request_id": requestID,
						"method":     c.Request.Method,
						"path":       c.Request.URL.Path,
						"stack":      string(stack),
					},
				)

				abortWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR",
					"A system error occurred. Please try again later.")
			}
		}()

		c.Next()
	}
}

// abortWithError writes the standard error envelope. The errors package builds
// on this package, so middleware that must reject a request writes it directly.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":       code,
			"message":    message,
			"request_id": GetRequestID(c),
		},
	})
}
