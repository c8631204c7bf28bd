package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-tenancy-backend/internal/services"
)

// newErrorEngine serves err through writeError and captures the
// request-scoped log.
func newErrorEngine(err error, logs *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := zerolog.New(logs)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/x", func(c *gin.Context) { writeError(c, err) })
	return r
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.NewValidationError(map[string]string{"notes": "is required"}), http.StatusBadRequest, "validation_error"},
		{services.ErrSlotFull, http.StatusBadRequest, "slot_full"},
		{services.ErrAlreadySubmitted, http.StatusBadRequest, "already_submitted"},
		{services.ErrExtensionInProgress, http.StatusBadRequest, "extension_in_progress"},
		{services.ErrBookingReviewsDisabled, http.StatusBadRequest, "booking_reviews_disabled"},
		{services.ErrNotOwner, http.StatusForbidden, "not_owner"},
		{services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{services.ErrTenancyNotFound, http.StatusNotFound, "tenancy_not_found"},
		{services.ErrBookingConflict, http.StatusConflict, "booking_conflict"},
		{services.ErrSlotInUse, http.StatusConflict, "slot_in_use"},
		{services.ErrBusy, http.StatusConflict, "busy"},
		{context.Canceled, http.StatusServiceUnavailable, ErrCodeUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			var logs bytes.Buffer
			w := httptest.NewRecorder()
			newErrorEngine(tc.err, &logs).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("json: %v", err)
			}
			if resp.Code != tc.code || resp.RequestID != "rid-1" {
				t.Fatalf("unexpected body: %+v", resp)
			}
		})
	}
}

func TestWriteError_FieldErrors(t *testing.T) {
	var logs bytes.Buffer
	w := httptest.NewRecorder()
	err := services.NewValidationError(map[string]string{"review_flags": "cannot be combined with notes"})
	newErrorEngine(err, &logs).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.FieldErrors["review_flags"] != "cannot be combined with notes" {
		t.Fatalf("field_errors = %v", resp.FieldErrors)
	}
	if logs.Len() != 0 {
		t.Fatalf("4xx must not log at error level: %s", logs.String())
	}
}

func TestWriteError_UnknownErrorIsOpaque500(t *testing.T) {
	var logs bytes.Buffer
	w := httptest.NewRecorder()
	newErrorEngine(errors.New("pq: connection refused to 10.0.0.3"), &logs).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.3") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}
	if !strings.Contains(logs.String(), `"level":"error"`) || !strings.Contains(logs.String(), "connection refused") {
		t.Fatalf("expected error log with cause, got: %s", logs.String())
	}
}

func TestFail_And_SuccessHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-404")
		c.Next()
	})
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"ok": true}) })
	r.DELETE("/gone", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json 404: %v", err)
	}
	if w.Code != http.StatusNotFound || er.RequestID != "rid-404" || er.Code != ErrCodeNotFound || er.FieldErrors != nil {
		t.Fatalf("unexpected 404: %d %+v", w.Code, er)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("ok: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d", w.Code)
	}
}
