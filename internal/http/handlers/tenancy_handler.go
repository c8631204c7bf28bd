// Tenancy HTTP handlers.
//
// This file exposes REST endpoints for the tenancy lifecycle:
//   - POST  /tenancies/propose                              (propose or re-propose)
//   - GET   /tenancies                                      (list, paginated, ETag support)
//   - GET   /tenancies/{id}                                 (detail with extensions)
//   - POST  /tenancies/{id}/respond                         (confirm, propose_changes, reject)
//   - POST  /tenancies/{id}/extensions                      (propose extension)
//   - PATCH /tenancies/{id}/extensions/{ext_id}/respond     (accept or reject extension)
//   - PATCH /tenancies/{id}/still-living/confirm            (still-living confirmation)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/http/middleware"
	"github.com/tbourn/go-tenancy-backend/internal/services"
)

// ProposeTenancyRequest is the JSON payload for a tenancy proposal. Dates
// are calendar dates (2006-01-02); RFC 3339 timestamps are accepted and
// truncated to their day.
type ProposeTenancyRequest struct {
	RoomID         string `json:"room_id"         example:"9a0c1d2e-3f40-4a5b-8c6d-7e8f9a0b1c2d"`
	CounterpartyID string `json:"counterparty_id" example:"landlord-7"`
	MoveInDate     string `json:"move_in_date"    example:"2025-06-01"`
	DurationMonths *int   `json:"duration_months" example:"6"`
}

// RespondTenancyRequest answers a proposal. Terms are required for
// propose_changes and ignored otherwise.
type RespondTenancyRequest struct {
	Action         string  `json:"action"                    example:"confirm" enums:"confirm,propose_changes,reject"`
	MoveInDate     *string `json:"move_in_date,omitempty"    example:"2025-07-01"`
	DurationMonths *int    `json:"duration_months,omitempty" example:"12"`
}

// ExtendTenancyRequest proposes extra months on a tenancy.
type ExtendTenancyRequest struct {
	ProposedDurationMonths int `json:"proposed_duration_months" example:"6"`
}

// RespondExtensionRequest answers an extension proposal.
type RespondExtensionRequest struct {
	Action string `json:"action" example:"accept" enums:"accept,reject"`
}

// ListTenanciesResponse wraps a page of tenancies and pagination information.
type ListTenanciesResponse struct {
	Tenancies  []domain.Tenancy `json:"tenancies"`
	Pagination Pagination       `json:"pagination"`
}

// ProposeTenancy godoc
// @ID          proposeTenancy
// @Summary     Propose a tenancy
// @Description Creates a proposal between a room owner and a tenant who completed a viewing, or updates the live one in place. Supports Idempotency-Key.
// @Tags        Tenancies
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Caller identity"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.ProposeTenancyRequest  true  "Proposal"
//
// @Success     201  {object}  domain.Tenancy  "Created"
// @Success     200  {object}  domain.Tenancy  "Updated or replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error, viewing required or not eligible"
// @Failure     403  {object}  handlers.ErrorResponse  "Neither party owns the room"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /tenancies/propose [post]
func (h *Handlers) ProposeTenancy(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	if rid, hit := middleware.ReplayResource(c); hit {
		if d, err := h.tenancies.Get(ctx, rid, uid); err == nil {
			replayed(c)
			ok(c, http.StatusOK, d.Tenancy)
			return
		}
	}

	var req ProposeTenancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in := services.ProposeInput{
		RoomID:         strings.TrimSpace(req.RoomID),
		ProposerID:     uid,
		CounterpartyID: strings.TrimSpace(req.CounterpartyID),
	}
	if req.DurationMonths != nil {
		in.DurationMonths = *req.DurationMonths
	}
	if req.MoveInDate != "" {
		d, valid := parseDate(req.MoveInDate)
		if !valid {
			badFields(c, map[string]string{"move_in_date": "must be a date (YYYY-MM-DD)"})
			return
		}
		in.MoveInDate = d
	}

	t, created, err := h.tenancies.Propose(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.remember(c, uid, t.ID, status)
	ok(c, status, t)
}

// ListTenancies godoc
// @ID          listTenancies
// @Summary     List my tenancies (paginated)
// @Description Returns tenancies the caller is party to. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Tenancies
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "Caller identity"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListTenanciesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Router      /tenancies [get]
func (h *Handlers) ListTenancies(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.tenancies.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"tenancies:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.tenancies.ListForUser(ctx, uid, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListTenanciesResponse{
		Tenancies:  items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetTenancy godoc
// @ID          getTenancy
// @Summary     Get a tenancy
// @Description Returns a tenancy and its extension history. Parties only.
// @Tags        Tenancies
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Tenancy ID"
//
// @Success     200  {object}  services.TenancyDetail
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenancy not found"
// @Router      /tenancies/{id} [get]
func (h *Handlers) GetTenancy(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	d, err := h.tenancies.Get(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// RespondTenancy godoc
// @ID          respondTenancy
// @Summary     Respond to a proposal
// @Description confirm records the caller's confirmation (both → confirmed, schedule set); propose_changes replaces the terms; reject cancels.
// @Tags        Tenancies
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Tenancy ID"
// @Param       body       body    handlers.RespondTenancyRequest  true  "Response"
//
// @Success     200  {object}  domain.Tenancy
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error or not eligible"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenancy not found"
// @Router      /tenancies/{id}/respond [post]
func (h *Handlers) RespondTenancy(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	var req RespondTenancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	terms := services.Terms{DurationMonths: req.DurationMonths}
	if req.MoveInDate != nil && *req.MoveInDate != "" {
		d, valid := parseDate(*req.MoveInDate)
		if !valid {
			badFields(c, map[string]string{"move_in_date": "must be a date (YYYY-MM-DD)"})
			return
		}
		terms.MoveInDate = &d
	}

	t, err := h.tenancies.Respond(c.Request.Context(), c.Param("id"), uid, strings.TrimSpace(req.Action), terms)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// ExtendTenancy godoc
// @ID          extendTenancy
// @Summary     Propose an extension
// @Description Proposes extra months on a confirmed or active tenancy. One open extension at a time.
// @Tags        Tenancies
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Tenancy ID"
// @Param       body       body    handlers.ExtendTenancyRequest  true  "Extension"
//
// @Success     201  {object}  domain.TenancyExtension
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error or not eligible"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenancy not found"
// @Router      /tenancies/{id}/extensions [post]
func (h *Handlers) ExtendTenancy(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	var req ExtendTenancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ext, err := h.tenancies.Extend(c.Request.Context(), c.Param("id"), uid, req.ProposedDurationMonths)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, ext)
}

// RespondExtensionResponse is the tenancy and the extension after a response.
type RespondExtensionResponse struct {
	Tenancy   *domain.Tenancy          `json:"tenancy"`
	Extension *domain.TenancyExtension `json:"extension"`
}

// RespondExtension godoc
// @ID          respondExtension
// @Summary     Respond to an extension
// @Description The counterparty accepts (duration grows, schedule recomputed when the review window has not opened) or rejects.
// @Tags        Tenancies
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Tenancy ID"
// @Param       ext_id     path    string  true  "Extension ID"
// @Param       body       body    handlers.RespondExtensionRequest  true  "Response"
//
// @Success     200  {object}  handlers.RespondExtensionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error or not eligible"
// @Failure     403  {object}  handlers.ErrorResponse  "Proposer or non-party"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenancy or extension not found"
// @Router      /tenancies/{id}/extensions/{ext_id}/respond [patch]
func (h *Handlers) RespondExtension(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	var req RespondExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	t, ext, err := h.tenancies.RespondToExtension(c.Request.Context(), c.Param("id"), c.Param("ext_id"), uid, strings.TrimSpace(req.Action))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, RespondExtensionResponse{Tenancy: t, Extension: ext})
}

// ConfirmStillLiving godoc
// @ID          confirmStillLiving
// @Summary     Confirm still living
// @Description Records the caller's still-living confirmation once the check date has passed.
// @Tags        Tenancies
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller identity"  example(user123)
// @Param       id         path    string  true  "Tenancy ID"
//
// @Success     200  {object}  domain.Tenancy
// @Failure     400  {object}  handlers.ErrorResponse  "Too early or not eligible"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenancy not found"
// @Router      /tenancies/{id}/still-living/confirm [patch]
func (h *Handlers) ConfirmStillLiving(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	t, err := h.tenancies.ConfirmStillLiving(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}
