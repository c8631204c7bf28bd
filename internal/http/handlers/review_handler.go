// Review and rating HTTP handlers.
//
//   - POST /tenancies/{id}/reviews   (submit)
//   - GET  /tenancies/{id}/reviews   (revealed reviews plus the caller's own)
//   - GET  /users/{id}/ratings       (user aggregates, ETag on generation)
//   - GET  /rooms/{id}/rating        (room aggregate, ETag on generation)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/services"
)

// SubmitReviewRequest is a review submission. Exactly one of review_flags or
// notes must be set; overall_rating is required with notes and forbidden with
// flags, where the rating is derived from the checklist.
type SubmitReviewRequest struct {
	Role          string   `json:"role,omitempty"           example:"tenant_to_landlord" enums:"tenant_to_landlord,landlord_to_tenant"`
	ReviewFlags   []string `json:"review_flags,omitempty"   example:"responsive,maintenance_good"`
	Notes         *string  `json:"notes,omitempty"          example:"Great landlord, fixed the boiler within a day."`
	OverallRating *int     `json:"overall_rating,omitempty" example:"5"`
}

// RoomRatingResponse is the stored aggregate of a room.
type RoomRatingResponse struct {
	RoomID           string  `json:"room_id"`
	AvgRating        float64 `json:"avg_rating"`
	NumberRatings    int64   `json:"number_ratings"`
	RatingGeneration int64   `json:"rating_generation"`
}

// SubmitReview godoc
// @ID          submitReview
// @Summary     Submit a tenancy review
// @Description Stores the caller's review hidden until both parties submit or the review deadline passes.
// @Tags        Reviews
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Tenancy ID"
// @Param       body       body    handlers.SubmitReviewRequest  true  "Review"
//
// @Success     201  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error, too early, window expired or already submitted"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party or role mismatch"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenancy not found"
// @Router      /tenancies/{id}/reviews [post]
func (h *Handlers) SubmitReview(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rv, err := h.reviews.Submit(c.Request.Context(), c.Param("id"), uid, services.ReviewInput{
		Role:          domain.ReviewRole(req.Role),
		ReviewFlags:   req.ReviewFlags,
		Notes:         req.Notes,
		OverallRating: req.OverallRating,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, rv)
}

// ListReviews godoc
// @ID          listReviews
// @Summary     List tenancy reviews
// @Description Returns revealed reviews plus the caller's own hidden review. Parties only.
// @Tags        Reviews
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Tenancy ID"
//
// @Success     200  {array}   domain.Review
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenancy not found"
// @Router      /tenancies/{id}/reviews [get]
func (h *Handlers) ListReviews(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	items, err := h.reviews.ListVisible(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []domain.Review{}
	}
	ok(c, http.StatusOK, items)
}

// UserRatings godoc
// @ID          userRatings
// @Summary     User rating aggregates
// @Description Returns the user's averages as tenant and as landlord over revealed reviews. ETag follows the rating generation.
// @Tags        Ratings
// @Produce     json
//
// @Param       id             path    string  true   "User ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  domain.UserProfile
// @Header      200  {string}  ETag  "Weak ETag on the rating generation"
// @Success     304  {string}  string "Not Modified"
// @Router      /users/{id}/ratings [get]
func (h *Handlers) UserRatings(c *gin.Context) {
	id := c.Param("id")
	p, err := h.ratings.Profile(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if notModified(c, fmt.Sprintf(`W/"user-ratings:%s:%d"`, id, p.RatingGeneration)) {
		return
	}
	ok(c, http.StatusOK, p)
}

// RoomRating godoc
// @ID          roomRating
// @Summary     Room rating aggregate
// @Description Returns the room's average over revealed tenant reviews. ETag follows the rating generation.
// @Tags        Ratings
// @Produce     json
//
// @Param       id             path    string  true   "Room ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.RoomRatingResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id}/rating [get]
func (h *Handlers) RoomRating(c *gin.Context) {
	r, err := h.ratings.RoomRating(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if notModified(c, fmt.Sprintf(`W/"room-rating:%s:%d"`, r.ID, r.RatingGeneration)) {
		return
	}
	ok(c, http.StatusOK, RoomRatingResponse{
		RoomID:           r.ID,
		AvgRating:        r.AvgRating,
		NumberRatings:    r.NumberRatings,
		RatingGeneration: r.RatingGeneration,
	})
}
