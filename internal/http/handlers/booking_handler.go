// Booking and slot HTTP handlers.
//
// This file exposes REST endpoints for viewing slots and bookings:
//   - POST   /bookings                          (reserve a slot or book a window)
//   - POST   /bookings/{id}/cancel              (cancel)
//   - POST   /bookings/{id}/reviews             (disabled; tenancies only)
//   - POST   /rooms/{id}/slots                  (create slot, owner only)
//   - GET    /rooms/{id}/slots                  (list upcoming slots)
//   - DELETE /rooms/{id}/slots/{slot_id}        (delete slot, owner only)
//   - GET    /rooms/{id}/availability           (window availability)
//
// Idempotency:
// POST /bookings honors Idempotency-Key. A retry with a key that already
// produced a booking returns that booking with 200 and
// `Idempotency-Replayed: true` instead of reserving another seat.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/http/middleware"
	"github.com/tbourn/go-tenancy-backend/internal/services"
	"github.com/tbourn/go-tenancy-backend/internal/sysutil"
)

// CreateBookingRequest books either a slot (slot_id) or a free window of a
// room (room_id, start, end). The two forms are mutually exclusive.
type CreateBookingRequest struct {
	SlotID string `json:"slot_id,omitempty" example:"2b1f3c9e-5f0a-4f5e-9a51-0c8a1f4c2d11"`
	RoomID string `json:"room_id,omitempty" example:"9a0c1d2e-3f40-4a5b-8c6d-7e8f9a0b1c2d"`
	Start  string `json:"start,omitempty"   example:"2025-05-01T10:00:00Z"`
	End    string `json:"end,omitempty"     example:"2025-05-01T10:30:00Z"`
}

// CreateSlotRequest is the JSON payload for creating a viewing slot.
type CreateSlotRequest struct {
	Start       string `json:"start"        example:"2025-05-01T10:00:00Z"`
	End         string `json:"end"          example:"2025-05-01T10:30:00Z"`
	MaxBookings int    `json:"max_bookings" example:"3"`
}

// CreateBooking godoc
// @ID          createBooking
// @Summary     Book a viewing
// @Description Reserves a seat of a slot, or books an arbitrary window of a room. Supports Idempotency-Key.
// @Tags        Bookings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Caller identity"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateBookingRequest  true  "Booking payload"
//
// @Success     201  {object}  domain.Booking
// @Success     200  {object}  domain.Booking  "Replayed booking"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error, slot full or expired"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Slot or room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Window overlaps an existing booking"
// @Router      /bookings [post]
func (h *Handlers) CreateBooking(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	if rid, hit := middleware.ReplayResource(c); hit {
		b, err := h.slots.GetBooking(ctx, rid, uid)
		if err == nil {
			replayed(c)
			ok(c, http.StatusOK, b)
			return
		}
		// A vanished record falls through to a fresh booking.
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.RoomID = strings.TrimSpace(req.RoomID)

	var (
		b   *domain.Booking
		err error
	)
	switch {
	case req.SlotID != "" && req.RoomID != "":
		badFields(c, map[string]string{"slot_id": "cannot be combined with room_id"})
		return
	case req.SlotID != "":
		b, err = h.slots.Reserve(ctx, req.SlotID, uid)
	case req.RoomID != "":
		ts, bad := parseTimes(map[string]string{"start": req.Start, "end": req.End})
		if bad != nil {
			badFields(c, bad)
			return
		}
		b, err = h.slots.BookRange(ctx, req.RoomID, uid, ts["start"], ts["end"])
	default:
		badFields(c, map[string]string{"slot_id": "slot_id or room_id is required"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	h.remember(c, uid, b.ID, http.StatusCreated)
	ok(c, http.StatusCreated, b)
}

// CancelBooking godoc
// @ID          cancelBooking
// @Summary     Cancel a booking
// @Description Cancels a booking owned by the caller before it starts. Cancelling twice is a no-op.
// @Tags        Bookings
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Booking ID"
//
// @Success     200  {object}  domain.Booking
// @Failure     400  {object}  handlers.ErrorResponse  "Booking already started"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the booking owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Booking not found"
// @Router      /bookings/{id}/cancel [post]
func (h *Handlers) CancelBooking(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	b, err := h.slots.Cancel(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// BookingReview godoc
// @ID          submitBookingReview
// @Summary     Review a booking (disabled)
// @Description Reviews are accepted for tenancies only; this endpoint always answers 400 booking_reviews_disabled.
// @Tags        Bookings
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Booking ID"
//
// @Failure     400  {object}  handlers.ErrorResponse  "Booking reviews are disabled"
// @Router      /bookings/{id}/reviews [post]
func (h *Handlers) BookingReview(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	_, err := h.reviews.SubmitForBooking(c.Request.Context(), c.Param("id"), uid, services.ReviewInput{})
	if err == nil {
		err = services.ErrBookingReviewsDisabled
	}
	writeError(c, err)
}

// CreateSlot godoc
// @ID          createSlot
// @Summary     Create a viewing slot
// @Description Adds a viewing slot to a room owned by the caller.
// @Tags        Rooms
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Room ID"
// @Param       body       body    handlers.CreateSlotRequest  true  "Slot payload"
//
// @Success     201  {object}  domain.AvailabilitySlot
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the room owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Slot already exists"
// @Router      /rooms/{id}/slots [post]
func (h *Handlers) CreateSlot(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	var req CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ts, bad := parseTimes(map[string]string{"start": req.Start, "end": req.End})
	if bad != nil {
		badFields(c, bad)
		return
	}
	slot, err := h.slots.CreateSlot(c.Request.Context(), c.Param("id"), uid, ts["start"], ts["end"], req.MaxBookings)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, slot)
}

// ListSlots godoc
// @ID          listSlots
// @Summary     List upcoming slots of a room
// @Description Returns slots that have not ended, with their booked counts. only_free=1 hides full slots.
// @Tags        Rooms
// @Produce     json
//
// @Param       id         path    string  true   "Room ID"
// @Param       only_free  query   bool    false  "Hide full slots"
//
// @Success     200  {array}   repo.SlotWithUsage
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id}/slots [get]
func (h *Handlers) ListSlots(c *gin.Context) {
	items, err := h.slots.ListSlots(c.Request.Context(), c.Param("id"), sysutil.IsTruthy(c.Query("only_free")))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// DeleteSlot godoc
// @ID          deleteSlot
// @Summary     Delete a slot
// @Description Removes a slot with no active bookings. Owner only.
// @Tags        Rooms
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Room ID"
// @Param       slot_id    path    string  true  "Slot ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the room owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Slot not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Slot has active bookings"
// @Router      /rooms/{id}/slots/{slot_id} [delete]
func (h *Handlers) DeleteSlot(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	if err := h.slots.DeleteSlot(c.Request.Context(), c.Param("slot_id"), uid); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// Availability godoc
// @ID          roomAvailability
// @Summary     Check a room window
// @Description Reports whether [from, to) is free of active bookings and lists the conflicts.
// @Tags        Rooms
// @Produce     json
//
// @Param       id    path   string  true  "Room ID"
// @Param       from  query  string  true  "Window start (RFC 3339)"
// @Param       to    query  string  true  "Window end (RFC 3339)"
//
// @Success     200  {object}  services.Availability
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id}/availability [get]
func (h *Handlers) Availability(c *gin.Context) {
	ts, bad := parseTimes(map[string]string{"from": c.Query("from"), "to": c.Query("to")})
	if bad != nil {
		badFields(c, bad)
		return
	}
	av, err := h.slots.Availability(c.Request.Context(), c.Param("id"), ts["from"], ts["to"])
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, av)
}
