package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the caller's identity from the upstream gateway.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is read by the logger, rate limiter and handlers.
const ctxKeyUserID = "userID"

// Identity copies X-User-ID into the Gin context. It never rejects a request;
// handlers that need an identity answer 401 when UserID is empty.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" when the request carried
// none.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
