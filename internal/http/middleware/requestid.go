// README: Request id propagation (X-Request-ID header, request context).
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"park/internal/logging"
)

const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
