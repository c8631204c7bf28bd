// Package services – SlotLedger
//
// This file implements SlotLedger, the component that owns viewing slots and
// the bookings made against them. Capacity is enforced inside a transaction
// that holds a row lock on the slot (or, for manual range bookings, on the
// room), so concurrent reservations of the last seat cannot both succeed.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include slot/room/booking and user identifiers.

package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SlotLedger coordinates slot capacity and booking lifecycle.
type SlotLedger struct {
	DB          *gorm.DB
	Now         func() time.Time
	LockTimeout time.Duration
}

// Reserve books one seat of a slot for userID.
func (s *SlotLedger) Reserve(ctx context.Context, slotID, userID string) (*domain.Booking, error) {
	tr := otel.Tracer("services/SlotLedger")
	ctx, span := tr.Start(ctx, "Reserve",
		trace.WithAttributes(
			attribute.String("slot.id", slotID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	now := clock(s.Now)
	var out *domain.Booking
	err := inTx(ctx, s.DB, s.LockTimeout, "reserve slot", func(tx *gorm.DB) error {
		slot, err := repo.LockSlot(ctx, tx, slotID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		if !slot.End.After(now) {
			return ErrSlotExpired
		}

		n, err := repo.CountActiveBookings(ctx, tx, slot.ID)
		if err != nil {
			return err
		}
		if n >= int64(slot.MaxBookings) {
			return ErrSlotFull
		}

		sid := slot.ID
		b := &domain.Booking{
			ID:        uuid.NewString(),
			SlotID:    &sid,
			RoomID:    slot.RoomID,
			UserID:    userID,
			Start:     slot.Start,
			End:       slot.End,
			CreatedAt: now,
		}
		if err := repo.CreateBooking(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.id", out.ID))
	return out, nil
}

// BookRange books an arbitrary window of a room, rejecting any overlap with
// an active booking of the same room.
func (s *SlotLedger) BookRange(ctx context.Context, roomID, userID string, start, end time.Time) (*domain.Booking, error) {
	tr := otel.Tracer("services/SlotLedger")
	ctx, span := tr.Start(ctx, "BookRange",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	start, end = start.UTC(), end.UTC()
	if fe := windowErrors(start, end); fe != nil {
		return nil, fe
	}
	now := clock(s.Now)
	if !end.After(now) {
		return nil, ErrSlotExpired
	}

	var out *domain.Booking
	err := inTx(ctx, s.DB, s.LockTimeout, "book range", func(tx *gorm.DB) error {
		if _, err := repo.LockRoom(ctx, tx, roomID); errors.Is(err, repo.ErrNotFound) {
			return ErrRoomNotFound
		} else if err != nil {
			return err
		}

		clash, err := repo.ListOverlappingBookings(ctx, tx, roomID, start, end)
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return ErrBookingConflict
		}

		b := &domain.Booking{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			UserID:    userID,
			Start:     start,
			End:       end,
			CreatedAt: now,
		}
		if err := repo.CreateBooking(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel soft-cancels a booking owned by actorID. Cancelling twice is a no-op.
func (s *SlotLedger) Cancel(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	tr := otel.Tracer("services/SlotLedger")
	ctx, span := tr.Start(ctx, "Cancel",
		trace.WithAttributes(
			attribute.String("booking.id", bookingID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	now := clock(s.Now)
	var out *domain.Booking
	err := inTx(ctx, s.DB, s.LockTimeout, "cancel booking", func(tx *gorm.DB) error {
		b, err := repo.LockBooking(ctx, tx, bookingID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if b.UserID != actorID {
			return ErrNotOwner
		}
		out = b
		if !b.Active() {
			return nil
		}
		if !b.Start.After(now) {
			return ErrAlreadyStarted
		}
		if err := repo.CancelBooking(ctx, tx, b.ID, now); err != nil {
			return err
		}
		b.CanceledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetBooking returns a booking owned by actorID.
func (s *SlotLedger) GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	b, err := repo.GetBooking(ctx, s.DB, bookingID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, storage("load booking", err)
	}
	if b.UserID != actorID {
		return nil, ErrNotOwner
	}
	return b, nil
}

// CreateSlot adds a viewing slot to a room owned by actorID.
func (s *SlotLedger) CreateSlot(ctx context.Context, roomID, actorID string, start, end time.Time, maxBookings int) (*domain.AvailabilitySlot, error) {
	tr := otel.Tracer("services/SlotLedger")
	ctx, span := tr.Start(ctx, "CreateSlot",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	start, end = start.UTC(), end.UTC()
	fields := map[string]string{}
	if fe := windowErrors(start, end); fe != nil {
		fields = fe.Fields
	}
	if maxBookings < 1 {
		fields["max_bookings"] = "must be at least 1"
	}
	if len(fields) > 0 {
		return nil, NewValidationError(fields)
	}

	room, err := repo.GetRoom(ctx, s.DB, roomID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, storage("load room", err)
	}
	if room.OwnerID != actorID {
		return nil, ErrForbidden
	}

	slot := &domain.AvailabilitySlot{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Start:       start,
		End:         end,
		MaxBookings: maxBookings,
		CreatedAt:   clock(s.Now),
	}
	if err := repo.CreateSlot(ctx, s.DB, slot); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrSlotExists
		}
		return nil, storage("create slot", err)
	}
	return slot, nil
}

// DeleteSlot removes a slot with no active bookings. Only the room owner may
// delete it.
func (s *SlotLedger) DeleteSlot(ctx context.Context, slotID, actorID string) error {
	tr := otel.Tracer("services/SlotLedger")
	ctx, span := tr.Start(ctx, "DeleteSlot",
		trace.WithAttributes(
			attribute.String("slot.id", slotID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	return inTx(ctx, s.DB, s.LockTimeout, "delete slot", func(tx *gorm.DB) error {
		slot, err := repo.LockSlot(ctx, tx, slotID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		room, err := repo.GetRoom(ctx, tx, slot.RoomID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if room.OwnerID != actorID {
			return ErrForbidden
		}

		n, err := repo.CountActiveBookings(ctx, tx, slot.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSlotInUse
		}
		return repo.DeleteSlot(ctx, tx, slot.ID)
	})
}

// ListSlots returns a room's slots that have not ended yet, each with its
// booked count. onlyFree drops full slots.
func (s *SlotLedger) ListSlots(ctx context.Context, roomID string, onlyFree bool) ([]repo.SlotWithUsage, error) {
	tr := otel.Tracer("services/SlotLedger")
	ctx, span := tr.Start(ctx, "ListSlots",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.Bool("only_free", onlyFree),
		),
	)
	defer span.End()

	if _, err := repo.GetRoom(ctx, s.DB, roomID); errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRoomNotFound
	} else if err != nil {
		return nil, storage("load room", err)
	}
	out, err := repo.ListSlots(ctx, s.DB, roomID, clock(s.Now), time.Time{}, onlyFree)
	return out, storage("list slots", err)
}

// Availability is the booking state of a room window.
type Availability struct {
	Available bool             `json:"available"`
	Conflicts []domain.Booking `json:"conflicts"`
}

// Availability reports whether [from, to) is free of active bookings.
func (s *SlotLedger) Availability(ctx context.Context, roomID string, from, to time.Time) (*Availability, error) {
	tr := otel.Tracer("services/SlotLedger")
	ctx, span := tr.Start(ctx, "Availability",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	from, to = from.UTC(), to.UTC()
	if fe := windowErrors(from, to); fe != nil {
		// Re-key to the query parameter names.
		fields := map[string]string{}
		for k, v := range fe.Fields {
			switch k {
			case "start":
				fields["from"] = v
			case "end":
				fields["to"] = v
			}
		}
		return nil, NewValidationError(fields)
	}
	if _, err := repo.GetRoom(ctx, s.DB, roomID); errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRoomNotFound
	} else if err != nil {
		return nil, storage("load room", err)
	}

	clash, err := repo.ListOverlappingBookings(ctx, s.DB, roomID, from, to)
	if err != nil {
		return nil, storage("list overlaps", err)
	}
	if clash == nil {
		clash = []domain.Booking{}
	}
	return &Availability{Available: len(clash) == 0, Conflicts: clash}, nil
}

func windowErrors(start, end time.Time) *Error {
	fields := map[string]string{}
	if start.IsZero() {
		fields["start"] = "is required"
	}
	if end.IsZero() {
		fields["end"] = "is required"
	}
	if len(fields) == 0 && !end.After(start) {
		fields["end"] = "must be after start"
	}
	if len(fields) == 0 {
		return nil
	}
	return NewValidationError(fields)
}
