// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter keyed by
// caller. Writes (bookings, proposals, reviews) can be made to cost more than
// reads, and replays found by IdempotencyValidator are never limited.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc selects the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated callers by their X-User-ID identity and
// anonymous ones by client IP. The prefixes keep the namespaces apart.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64 // tokens refilled per second
	Burst int     // bucket size; <= 0 means 1
	// WriteCost is the number of tokens a POST/PUT/PATCH/DELETE consumes.
	// Values <= 0 mean 1. It is capped at Burst.
	WriteCost int
	// IdleTTL evicts buckets not used for this long. Zero means 10 minutes.
	IdleTTL time.Duration
	Key     KeyFunc // nil means KeyByUserOrIP
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	opts    RateLimitOptions
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

// evictEvery is the number of lookups between idle-bucket sweeps.
const evictEvery = 1024

// NewRateLimiter builds a limiter; install it with Handler.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.WriteCost <= 0 {
		opts.WriteCost = 1
	}
	if opts.WriteCost > opts.Burst {
		opts.WriteCost = opts.Burst
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.Key == nil {
		opts.Key = KeyByUserOrIP()
	}
	return &RateLimiter{opts: opts, now: time.Now, buckets: make(map[string]*bucket)}
}

// limiterFor returns the bucket for key, creating it on first use. Idle
// buckets are swept before the lookup so a stale bucket is never revived.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups%evictEvery == 0 {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rate.Limit(rl.opts.RPS), rl.opts.Burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// size reports the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limits. A denied request gets 429 with code
// "rate_limited" and a Retry-After of whole seconds until enough tokens
// have refilled.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		cost := 1
		if unsafeMethod(c.Request.Method) {
			cost = rl.opts.WriteCost
		}
		now := rl.now()
		res := rl.limiterFor(rl.opts.Key(c)).ReserveN(now, cost)
		if res.OK() {
			delay := res.DelayFrom(now)
			if delay == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		} else {
			c.Header("Retry-After", "1")
		}

		SetErrorCode(c, "rate_limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
