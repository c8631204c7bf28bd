// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Request-scoped logging: RequestID assigns the correlation id, AccessLog
// installs a zerolog logger carrying request_id, user_id and route for
// handlers (see LoggerFrom) and writes one scrubbed access line per request,
// and Recovery turns panics into the standard JSON 500.
//
// Bodies are never logged. Query strings and header values pass through a
// scrubber that replaces emails, phone numbers and UUIDs; credential headers
// are masked outright.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxRequestIDLen   = 128
	maxQueryLogLength = 1024
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

// RequestID propagates a well-formed inbound X-Request-ID or generates a
// UUID, and echoes it on the response. Inbound ids that are too long or carry
// unexpected characters are replaced so they cannot be used to forge log
// lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if len(rid) > maxRequestIDLen || !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// AccessLogOptions configures AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are replaced with "[REDACTED]" in addition to
	// Authorization, Cookie and Set-Cookie. Matching is case-insensitive.
	MaskHeaders []string
}

// UUIDs go first: the phone pattern would otherwise eat their digit groups.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// AccessLog logs each request once it completes: info for 2xx/3xx, warn for
// 4xx, error for 5xx. The identity goes to user_id unscrubbed; the
// X-User-ID header itself is left out of the header dump.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}
	skipped := strings.ToLower(HeaderUserID)

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = scrub(c.Request.URL.Path)
		}
		rid, _ := c.Get(requestIDKey)
		rl := log.With().
			Str("request_id", asString(rid)).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		c.Set(loggerKey, &rl)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			lk := strings.ToLower(k)
			if lk == skipped {
				continue
			}
			if _, ok := masked[lk]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}
		query := scrub(truncate(c.Request.URL.RawQuery, maxQueryLogLength))

		c.Next()

		status := c.Writer.Status()
		ev := rl.Info()
		switch {
		case status >= 500:
			ev = rl.Error()
		case status >= 400:
			ev = rl.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if IsReplay(c) {
			ev = ev.Bool("replayed", true)
		}
		ev.
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("remote_ip", c.ClientIP()).
			Interface("headers", headers).
			Msg("http_request")
	}
}

// Recovery converts a panic into the standard JSON 500 (code
// "internal_error") and logs it with its stack. If the handler already wrote
// a response only the status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			SetErrorCode(c, "internal_error")
			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger installed by AccessLog, or
// the global logger when there is none. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
