// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels stay
// bounded: the route label is the registered Gin route
// (e.g. /api/v1/tenancies/:id/reviews), or "unmatched" when none matched, and
// error codes come from the fixed vocabulary the handlers emit.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "tenancy"
	unmatchedRoute   = "unmatched"
	ctxKeyErrorCode  = "errorCode"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	// Status is left off so the histogram stays small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_inflight",
			Help:      "HTTP requests currently being served.",
		},
	)

	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_errors_total",
			Help:      "Error responses by route and error code (slot_full, too_early, ...).",
		},
		[]string{"route", "code"},
	)

	httpReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_idempotent_replays_total",
			Help:      "Requests answered from a stored Idempotency-Key.",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpErrors, httpReplays)
}

// SetErrorCode records the machine-readable code of an error response so
// Metrics can count it.
func SetErrorCode(c *gin.Context, code string) {
	c.Set(ctxKeyErrorCode, code)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

		if v, ok := c.Get(ctxKeyErrorCode); ok {
			if code, ok := v.(string); ok && code != "" {
				httpErrors.WithLabelValues(route, code).Inc()
			}
		}
		if IsReplay(c) {
			httpReplays.WithLabelValues(route).Inc()
		}
	}
}
