package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// callerIdentityKey is the gin.Context key the auth middleware stores the
// bearer token's caller identity under; handlers read it back via
// callerSystem(c) when building a CallLog.
const callerIdentityKey = "caller_identity"

// authMiddleware enforces a single configured opaque bearer token when
// token is non-empty. The token maps 1:1 to a caller identity; this HTTP
// boundary is the only place that cares about the transport, the core
// only ever sees the resulting caller_system string.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) || strings.TrimPrefix(header, prefix) != token {
			c.JSON(http.StatusUnauthorized, Envelope{Code: 40100, Message: "authentication required"})
			c.Abort()
			return
		}
		c.Set(callerIdentityKey, strings.TrimPrefix(header, prefix))
		c.Next()
	}
}

func callerSystem(c *gin.Context) string {
	if v, ok := c.Get(callerIdentityKey); ok {
		return v.(string)
	}
	return "anonymous"
}

// corsMiddleware applies the configured allow-list of origins, or "*" for
// every origin when none is configured.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
