// Package services defines the business logic for slot booking, the tenancy
// lifecycle, double-blind reviews and rating aggregation. This file
// centralizes the service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// Every error carries a Kind and a stable machine-readable Code. Two errors
// compare equal under errors.Is when their codes match, so callers can test
// against the exported sentinels even when the returned value carries extra
// detail (a custom message or field errors). Translation into HTTP status
// codes is performed at the handler layer.
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/go-tenancy-backend/internal/repo"
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotEligible
	KindForbidden
	KindNotFound
	KindConflict
)

// Error is a business-rule failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newErr(k Kind, code, msg string) *Error {
	return &Error{Kind: k, Code: code, Message: msg}
}

// Validation.
var (
	// ErrValidation is the umbrella for field-level input errors; see
	// NewValidationError.
	ErrValidation = newErr(KindValidation, "validation_error", "invalid request")
)

// Slot and booking errors.
var (
	ErrSlotNotFound    = newErr(KindNotFound, "slot_not_found", "slot not found")
	ErrBookingNotFound = newErr(KindNotFound, "booking_not_found", "booking not found")
	ErrRoomNotFound    = newErr(KindNotFound, "room_not_found", "room not found")

	// ErrSlotFull is returned when every seat of a slot is taken.
	ErrSlotFull = newErr(KindNotEligible, "slot_full", "slot is fully booked")

	// ErrSlotExpired is returned when the window being booked has already ended.
	ErrSlotExpired = newErr(KindNotEligible, "slot_expired", "slot has already ended")

	// ErrAlreadyStarted is returned when cancelling a booking whose window has begun.
	ErrAlreadyStarted = newErr(KindNotEligible, "already_started", "booking has already started")

	ErrNotOwner = newErr(KindForbidden, "not_owner", "only the booking owner can do this")

	ErrSlotInUse       = newErr(KindConflict, "slot_in_use", "slot still has active bookings")
	ErrSlotExists      = newErr(KindConflict, "slot_exists", "a slot with this window already exists")
	ErrBookingConflict = newErr(KindConflict, "booking_conflict", "the room is already booked for part of this window")

	// ErrBusy is returned when a row lock could not be acquired in time.
	ErrBusy = newErr(KindConflict, "busy", "resource is busy, retry later")
)

// Tenancy errors.
var (
	ErrTenancyNotFound   = newErr(KindNotFound, "tenancy_not_found", "tenancy not found")
	ErrExtensionNotFound = newErr(KindNotFound, "extension_not_found", "extension not found")

	// ErrForbidden is returned when the actor is not a party to the resource.
	ErrForbidden = newErr(KindForbidden, "forbidden", "not allowed")

	// ErrViewingRequired is returned when a tenancy is proposed for a tenant
	// who has not completed a viewing of the room.
	ErrViewingRequired = newErr(KindNotEligible, "viewing_required", "the tenant must complete a viewing first")

	// ErrNotEligible is returned when the resource is in the wrong state for
	// the requested transition.
	ErrNotEligible = newErr(KindNotEligible, "not_eligible", "operation not allowed in the current state")

	ErrExtensionInProgress = newErr(KindNotEligible, "extension_in_progress", "an extension is already awaiting a response")

	// ErrTooEarly is returned when a time-gated action is attempted before its window.
	ErrTooEarly = newErr(KindNotEligible, "too_early", "not available yet")
)

// Review errors.
var (
	ErrWindowExpired          = newErr(KindNotEligible, "window_expired", "the review window has closed")
	ErrAlreadySubmitted       = newErr(KindNotEligible, "already_submitted", "a review has already been submitted")
	ErrBookingReviewsDisabled = newErr(KindNotEligible, "booking_reviews_disabled", "reviews are only accepted for tenancies")
)

// NewValidationError builds a field-attributed validation error.
func NewValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Message: ErrValidation.Message, Fields: fields}
}

func fieldError(field, msg string) *Error {
	return NewValidationError(map[string]string{field: msg})
}

// storage wraps unexpected persistence errors, mapping lock timeouts to ErrBusy.
func storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if repo.IsLockTimeout(err) {
		return ErrBusy
	}
	return fmt.Errorf("%s: %w", op, err)
}
