// Package handlers exposes the REST endpoints of the tenancy service.
//
// Handlers are transport-thin: they authenticate the caller from the identity
// middleware, bind and shape input, call application services, and translate
// results into HTTP responses (including conditional and replayed responses).
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/http/middleware"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
	"github.com/tbourn/go-tenancy-backend/internal/services"
	"github.com/tbourn/go-tenancy-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SlotService manages viewing slots and bookings.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SlotService interface {
	Reserve(ctx context.Context, slotID, userID string) (*domain.Booking, error)
	BookRange(ctx context.Context, roomID, userID string, start, end time.Time) (*domain.Booking, error)
	Cancel(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)
	CreateSlot(ctx context.Context, roomID, actorID string, start, end time.Time, maxBookings int) (*domain.AvailabilitySlot, error)
	DeleteSlot(ctx context.Context, slotID, actorID string) error
	ListSlots(ctx context.Context, roomID string, onlyFree bool) ([]repo.SlotWithUsage, error)
	Availability(ctx context.Context, roomID string, from, to time.Time) (*services.Availability, error)
}

// TenancyService drives the tenancy lifecycle.
type TenancyService interface {
	Propose(ctx context.Context, in services.ProposeInput) (*domain.Tenancy, bool, error)
	Respond(ctx context.Context, tenancyID, actorID, action string, terms services.Terms) (*domain.Tenancy, error)
	Extend(ctx context.Context, tenancyID, actorID string, months int) (*domain.TenancyExtension, error)
	RespondToExtension(ctx context.Context, tenancyID, extensionID, actorID, action string) (*domain.Tenancy, *domain.TenancyExtension, error)
	ConfirmStillLiving(ctx context.Context, tenancyID, actorID string) (*domain.Tenancy, error)
	Get(ctx context.Context, tenancyID, actorID string) (*services.TenancyDetail, error)
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Tenancy, int64, error)
	// Stats returns the count and latest update time used for list ETags.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// ReviewService accepts and exposes reviews.
type ReviewService interface {
	Submit(ctx context.Context, tenancyID, reviewerID string, in services.ReviewInput) (*domain.Review, error)
	SubmitForBooking(ctx context.Context, bookingID, reviewerID string, in services.ReviewInput) (*domain.Review, error)
	ListVisible(ctx context.Context, tenancyID, viewerID string) ([]domain.Review, error)
}

// RatingService reads stored rating aggregates.
type RatingService interface {
	Profile(ctx context.Context, userID string) (*domain.UserProfile, error)
	RoomRating(ctx context.Context, roomID string) (*domain.Room, error)
}

// InboxService reads a user's notifications.
type InboxService interface {
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Notification, int64, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// IdempotencyStore records the resource a keyed request produced so that a
// retry with the same key replays it.
type IdempotencyStore interface {
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Idempotency may be nil, in
// which case keyed requests are processed but not recorded.
type Services struct {
	Slots       SlotService
	Tenancies   TenancyService
	Reviews     ReviewService
	Ratings     RatingService
	Inbox       InboxService
	Idempotency IdempotencyStore
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	slots     SlotService
	tenancies TenancyService
	reviews   ReviewService
	ratings   RatingService
	inbox     InboxService
	idem      IdempotencyStore
}

// New constructs a Handlers instance bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		slots:     s.Slots,
		tenancies: s.Tenancies,
		reviews:   s.Reviews,
		ratings:   s.Ratings,
		inbox:     s.Inbox,
		idem:      s.Idempotency,
	}
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.NewWindow(page, pageSize).TotalPages(total)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// requireUser returns the caller's identity, or answers 401 and returns
// false.
func requireUser(c *gin.Context) (string, bool) {
	uid := middleware.UserID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing "+middleware.HeaderUserID+" header")
		return "", false
	}
	return uid, true
}

// clampPagination reads page and page_size from the query, bounded to
// utils.MaxPageSize.
func clampPagination(c *gin.Context) (page, pageSize int) {
	w := utils.ParseWindow(c.Query("page"), c.Query("page_size"))
	return w.Page, w.PageSize
}

// notModified sets the ETag header and reports whether the client already
// holds this representation, in which case a 304 has been written.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseTimes parses RFC 3339 values keyed by field name. Empty values stay
// zero; malformed ones are reported as field errors.
func parseTimes(in map[string]string) (map[string]time.Time, map[string]string) {
	out := make(map[string]time.Time, len(in))
	var bad map[string]string
	for k, v := range in {
		if strings.TrimSpace(v) == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		if err != nil {
			if bad == nil {
				bad = map[string]string{}
			}
			bad[k] = "must be an RFC 3339 timestamp"
			continue
		}
		out[k] = t
	}
	return out, bad
}

// badFields answers 400 with field errors in the validation envelope.
func badFields(c *gin.Context, fields map[string]string) {
	e := services.NewValidationError(fields)
	failFields(c, http.StatusBadRequest, e.Code, e.Message, e.Fields)
}

// remember stores the outcome of a keyed request. Failures are logged only:
// the resource already exists and the client gets it either way.
func (h *Handlers) remember(c *gin.Context, userID, resourceID string, status int) {
	key, ok := middleware.GetIdempotencyKey(c)
	if !ok || h.idem == nil {
		return
	}
	scope := middleware.IdempotencyScope(c)
	if err := h.idem.Remember(c.Request.Context(), userID, scope, key, resourceID, status); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency record not stored")
	}
}

// replayed marks a response as produced by an earlier request.
func replayed(c *gin.Context) {
	c.Header("Idempotency-Replayed", "true")
}
