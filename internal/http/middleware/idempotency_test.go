package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyAccessors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if k, ok := GetIdempotencyKey(c); ok || k != "" || IsReplay(c) || IdempotencyScope(c) != "" {
		t.Fatalf("expected zero state on a fresh context")
	}

	c.Set(ctxKeyIdempotency, "not-a-state")
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("foreign value must read as absent")
	}

	c.Set(ctxKeyIdempotency, idemState{Key: "k1", Scope: "POST /bookings"})
	if k, ok := GetIdempotencyKey(c); !ok || k != "k1" || IdempotencyScope(c) != "POST /bookings" || IsReplay(c) {
		t.Fatalf("unexpected fresh-key state")
	}

	c.Set(ctxKeyIdempotency, idemState{Key: "k1", Scope: "POST /bookings", Resource: "b-1"})
	if rid, ok := ReplayResource(c); !ok || rid != "b-1" || !IsReplay(c) {
		t.Fatalf("ReplayResource = %q,%v", rid, ok)
	}
}

func TestIdempotencyValidator_LookupErrorIsMiss(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	lookup := func(context.Context, string, string, string, time.Time) (string, bool, error) {
		return "b-1", true, errors.New("db down")
	}
	r.Use(Identity(), IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/bookings", func(c *gin.Context) {
		if IsReplay(c) || IsRateBypass(c) {
			t.Fatalf("lookup error must not produce a replay")
		}
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestIdempotencyValidator_NoHeaderOrSafeMethod_NoLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	lookupCalled := false
	lookup := func(context.Context, string, string, string, time.Time) (string, bool, error) {
		lookupCalled = true
		return "", false, nil
	}
	r.Use(Identity(), IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.GET("/ping", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("key should not be stashed on safe methods")
		}
		c.Status(http.StatusNoContent)
	})
	r.POST("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, tc := range []struct {
		method string
		header string
	}{
		{http.MethodGet, "k-1"},
		{http.MethodPost, ""},
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, "/ping", nil)
		req.Header.Set(HeaderUserID, "u1")
		if tc.header != "" {
			req.Header.Set(HeaderIdempotencyKey, tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", tc.method, w.Code)
		}
	}
	if lookupCalled {
		t.Fatalf("lookup should not be called")
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern", IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(IdempotencyValidator(tc.opts, nil))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_AnonymousSkipsLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	lookup := func(context.Context, string, string, string, time.Time) (string, bool, error) {
		t.Fatalf("lookup must not run without a user")
		return "", false, nil
	}
	r.Use(Identity(), IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/z", func(c *gin.Context) {
		if key, ok := GetIdempotencyKey(c); !ok || key != "abc-123" {
			t.Fatalf("expected stashed key abc-123, got %q ok=%v", key, ok)
		}
		if IsReplay(c) || IsRateBypass(c) {
			t.Fatalf("expected no replay")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/z", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc-123")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIdempotencyValidator_LookupMissAndHit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	stored := map[string]string{"u9|POST /tenancies/t-1/extensions|k-9": "ext-1"}
	var gotScope string
	lookup := func(_ context.Context, userID, scope, key string, now time.Time) (string, bool, error) {
		if now.IsZero() {
			t.Fatalf("lookup time not populated")
		}
		gotScope = scope
		rid, ok := stored[userID+"|"+scope+"|"+key]
		return rid, ok, nil
	}

	r := gin.New()
	r.Use(Identity(), IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/tenancies/:id/extensions", func(c *gin.Context) {
		if rid, ok := ReplayResource(c); ok {
			if !IsRateBypass(c) {
				t.Fatalf("expected rate bypass on replay")
			}
			c.String(http.StatusOK, rid)
			return
		}
		if IsRateBypass(c) {
			t.Fatalf("unexpected rate bypass on miss")
		}
		c.String(http.StatusCreated, IdempotencyScope(c))
	})

	send := func(path, user, key string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		return w
	}

	if w := send("/tenancies/t-1/extensions", "u9", "k-9"); w.Code != http.StatusOK || w.Body.String() != "ext-1" {
		t.Fatalf("hit: got %d %q", w.Code, w.Body.String())
	}
	if gotScope != "POST /tenancies/t-1/extensions" {
		t.Fatalf("scope = %q", gotScope)
	}

	// Same key on another tenancy or by another user is a different scope.
	if w := send("/tenancies/t-2/extensions", "u9", "k-9"); w.Code != http.StatusCreated {
		t.Fatalf("other path: got %d", w.Code)
	}
	if w := send("/tenancies/t-1/extensions", "u8", "k-9"); w.Code != http.StatusCreated {
		t.Fatalf("other user: got %d", w.Code)
	}
}

func TestIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "  u1 ")
	r.ServeHTTP(w, req)
	if w.Body.String() != "u1" {
		t.Fatalf("UserID = %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Body.String() != "" {
		t.Fatalf("expected empty identity, got %q", w.Body.String())
	}
}
