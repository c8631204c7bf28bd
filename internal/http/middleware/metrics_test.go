package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabels_ErrorCodes_Replays(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") != "" {
			c.Set(ctxKeyIdempotency, idemState{Key: "k", Resource: "booking-1"})
		}
		c.Next()
	})
	r.Use(Metrics())
	r.POST("/bookings", func(c *gin.Context) { c.String(http.StatusCreated, "ok") })
	r.POST("/tenancies/:id/reviews", func(c *gin.Context) {
		SetErrorCode(c, "too_early")
		c.JSON(http.StatusBadRequest, gin.H{"code": "too_early"})
	})

	baseCreated := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/bookings", "201"))
	baseUnmatched := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))
	baseTooEarly := testutil.ToFloat64(httpErrors.WithLabelValues("/tenancies/:id/reviews", "too_early"))
	baseReplay := testutil.ToFloat64(httpReplays.WithLabelValues("/bookings"))

	serve := func(method, path string, replay bool) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		if replay {
			req.Header.Set("X-Replay", "1")
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := serve(http.MethodPost, "/bookings", false); code != http.StatusCreated {
		t.Fatalf("POST /bookings -> %d", code)
	}
	if code := serve(http.MethodPost, "/bookings", true); code != http.StatusCreated {
		t.Fatalf("POST /bookings (replay) -> %d", code)
	}
	if code := serve(http.MethodPost, "/tenancies/abc/reviews", false); code != http.StatusBadRequest {
		t.Fatalf("POST review -> %d", code)
	}
	serve(http.MethodGet, "/no/such/route/12345", false)

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/bookings", "201")); got != baseCreated+2 {
		t.Fatalf("requests /bookings 201 = %v; want %v", got, baseCreated+2)
	}
	// raw paths never become label values
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != baseUnmatched+1 {
		t.Fatalf("unmatched 404 = %v; want %v", got, baseUnmatched+1)
	}
	if got := testutil.ToFloat64(httpErrors.WithLabelValues("/tenancies/:id/reviews", "too_early")); got != baseTooEarly+1 {
		t.Fatalf("too_early errors = %v; want %v", got, baseTooEarly+1)
	}
	if got := testutil.ToFloat64(httpReplays.WithLabelValues("/bookings")); got != baseReplay+1 {
		t.Fatalf("replays = %v; want %v", got, baseReplay+1)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}
