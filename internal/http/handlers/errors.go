// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the transport-level error codes and the translation of
// service errors into HTTP responses. Service errors already carry a stable
// machine-readable code (see services.Error); the handler layer only decides
// the HTTP status and attaches field errors when present.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (e.g., bad_request, unauthorized) mirror common HTTP status
//     semantics and are used when a request never reaches a service.
//   - Business codes (e.g., slot_full, window_expired) come from the service
//     layer unchanged so that clients can branch on them.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_error",
//	  "message": "invalid request",
//	  "field_errors": {"notes": "cannot be combined with review_flags"}
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tenancy-backend/internal/http/middleware"
	"github.com/tbourn/go-tenancy-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"
)

// statusFor maps a service error kind to an HTTP status.
func statusFor(k services.Kind) int {
	switch k {
	case services.KindValidation, services.KindNotEligible:
		return http.StatusBadRequest
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError answers with the envelope matching err. Unclassified errors are
// logged and reported as 500 without leaking their text.
func writeError(c *gin.Context, err error) {
	var se *services.Error
	if errors.As(err, &se) {
		failFields(c, statusFor(se.Kind), se.Code, se.Message, se.Fields)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled")
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
}
