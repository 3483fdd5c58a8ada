package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header is the request ID header propagated to clients and logs.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware ensures every request carries an ID, reusing the caller's when
// one is supplied.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// FromContext returns the request ID for the current request, or "".
func FromContext(c *gin.Context) string {
	id, _ := c.Value(contextKey).(string)
	return id
}
