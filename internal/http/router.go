// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// identity, idempotency, rate limiting, compression, CORS and security
// headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/docs"
	"github.com/tbourn/go-tenancy-backend/internal/config"
	"github.com/tbourn/go-tenancy-backend/internal/http/handlers"
	"github.com/tbourn/go-tenancy-backend/internal/http/middleware"
	"github.com/tbourn/go-tenancy-backend/internal/notify"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
	"github.com/tbourn/go-tenancy-backend/internal/services"
)

// idempotencyStore adapts the repository free functions to
// handlers.IdempotencyStore and to the middleware lookup.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Remember proxies repo.CreateIdempotency. A concurrent retry that stored the
// same key first is not an error.
func (s idempotencyStore) Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Lookup proxies repo.GetIdempotency; a missing or expired record is a miss.
func (s idempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath. Notifications
// raised by the services go to notifier.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: X-User-ID into the context (logger, limiter and handlers read it)
//  4. AccessLog: request-scoped logger plus a scrubbed access line
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. Gzip, CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, notifier notify.Notifier) {
	r.HandleMethodNotAllowed = true
	if notifier == nil {
		notifier = notify.Nop{}
	}
	idem := idempotencyStore{db: db, ttl: cfg.IdempotencyTTL}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Caller identity from the gateway
	r.Use(middleware.Identity())

	// 4) Structured logging with redaction
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Lookup))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:       cfg.RateRPS,
		Burst:     cfg.RateBurst,
		WriteCost: 2,
		Key:       middleware.KeyByUserOrIP(),
	})
	r.Use(rl.Handler())

	// 10) Response compression; the scrape endpoint stays plain
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	lock := cfg.DB.LockTimeout
	h := handlers.New(handlers.Services{
		Slots:       &services.SlotLedger{DB: db, LockTimeout: lock},
		Tenancies:   &services.TenancyService{DB: db, Notifier: notifier, LockTimeout: lock},
		Reviews:     &services.ReviewVault{DB: db, Notifier: notifier, LockTimeout: lock},
		Ratings:     &services.RatingAggregator{DB: db},
		Inbox:       &services.Inbox{DB: db},
		Idempotency: idem,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Viewings
		api.POST("/bookings", h.CreateBooking)
		api.POST("/bookings/:id/cancel", h.CancelBooking)
		api.POST("/bookings/:id/reviews", h.BookingReview)

		// Rooms
		api.POST("/rooms/:id/slots", h.CreateSlot)
		api.GET("/rooms/:id/slots", h.ListSlots)
		api.DELETE("/rooms/:id/slots/:slot_id", h.DeleteSlot)
		api.GET("/rooms/:id/availability", h.Availability)
		api.GET("/rooms/:id/rating", h.RoomRating)

		// Tenancies
		api.POST("/tenancies/propose", h.ProposeTenancy)
		api.GET("/tenancies", h.ListTenancies)
		api.GET("/tenancies/:id", h.GetTenancy)
		api.POST("/tenancies/:id/respond", h.RespondTenancy)
		api.POST("/tenancies/:id/extensions", h.ExtendTenancy)
		api.PATCH("/tenancies/:id/extensions/:ext_id/respond", h.RespondExtension)
		api.PATCH("/tenancies/:id/still-living/confirm", h.ConfirmStillLiving)

		// Reviews and ratings
		api.POST("/tenancies/:id/reviews", h.SubmitReview)
		api.GET("/tenancies/:id/reviews", h.ListReviews)
		api.GET("/users/:id/ratings", h.UserRatings)

		// Inbox
		api.GET("/notifications", h.ListNotifications)
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap will cause downstream body
// reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
