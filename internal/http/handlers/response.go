// Response envelopes shared by every endpoint. Failures carry a stable
// machine-readable code next to the request id, e.g.
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "booking_conflict",
//	  "message": "user already has an active booking for this room"
//	}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tenancy-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope. FieldErrors is only set for
// validation failures and is keyed by request field name.
type ErrorResponse struct {
	RequestID   string            `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code        string            `json:"code" example:"booking_conflict"`
	Message     string            `json:"message" example:"user already has an active booking for this room"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

func fail(c *gin.Context, status int, code, msg string) {
	failFields(c, status, code, msg, nil)
}

// failFields aborts with an ErrorResponse, tags the request with code for the
// error counter, and logs 5xx answers on the request logger.
func failFields(c *gin.Context, status int, code, msg string, fields map[string]string) {
	middleware.SetErrorCode(c, code)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID:   c.Writer.Header().Get("X-Request-ID"),
		Code:        code,
		Message:     msg,
		FieldErrors: fields,
	})
}

// Fail is used by the router for unmatched routes and methods.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
