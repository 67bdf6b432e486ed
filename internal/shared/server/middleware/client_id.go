package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
)

const (
	clientIDKey    = "clientId"
	clientIDHeader = "X-Client-Id"
)

// ClientIdentity records a well-formed X-Client-Id header on the context.
// Malformed or missing headers are left for the handlers to resolve.
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(clientIDHeader))
		if id != "" && sanitize.ClientID(id) == nil {
			c.Set(clientIDKey, id)
		}
		c.Next()
	}
}

// ClientIDFromContext returns the client id set by ClientIdentity or a handler.
func ClientIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(clientIDKey)
}
