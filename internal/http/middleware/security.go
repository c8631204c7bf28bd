// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// SecurityHeaders hardens JSON responses and keeps per-user data (inboxes,
// tenancy lists, hidden reviews) out of shared caches. Conditional requests
// still work: identified responses are "private, no-cache", so clients
// revalidate with If-None-Match instead of refetching.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only. Turn
	// it on only when TLS reaches the app or a trusted proxy sets
	// X-Forwarded-Proto.
	EnableHSTS bool
	HSTSMaxAge time.Duration // <= 0 means 180 days
	// NoStore forbids caching of every response.
	NoStore bool
	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityHeaders returns the hardening middleware.
//
// Always: nosniff, frame DENY, no-referrer. Requests carrying X-User-ID get
// Cache-Control "private, no-cache" and Vary on the identity header unless
// NoStore already forbids caching.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		switch {
		case opt.NoStore:
			h.Set("Cache-Control", "no-store")
		case c.GetHeader(HeaderUserID) != "":
			h.Set("Cache-Control", "private, no-cache")
			h.Add("Vary", HeaderUserID)
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or through a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
