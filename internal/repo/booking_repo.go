// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for rooms,
// availability slots and bookings.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving capacity rules, ownership checks and timing gates
// to services.SlotLedger. Functions whose name starts with Lock must run inside
// a transaction; they take a row lock that is held until commit.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// GetRoom fetches a room by id, or ErrNotFound.
func GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// LockRoom fetches a room with a row lock.
func LockRoom(ctx context.Context, tx *gorm.DB, id string) (*domain.Room, error) {
	var r domain.Room
	if err := ForUpdate(tx.WithContext(ctx)).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom inserts a room row. Rooms are owned by the listing catalog; this
// is used for seeding and tests.
func CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	return db.WithContext(ctx).Create(r).Error
}

// CreateSlot inserts an availability slot.
func CreateSlot(ctx context.Context, db *gorm.DB, s *domain.AvailabilitySlot) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetSlot fetches a slot by id, or ErrNotFound.
func GetSlot(ctx context.Context, db *gorm.DB, id string) (*domain.AvailabilitySlot, error) {
	var s domain.AvailabilitySlot
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// LockSlot fetches a slot with a row lock.
func LockSlot(ctx context.Context, tx *gorm.DB, id string) (*domain.AvailabilitySlot, error) {
	var s domain.AvailabilitySlot
	if err := ForUpdate(tx.WithContext(ctx)).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSlot hard-deletes a slot row.
func DeleteSlot(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.AvailabilitySlot{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveBookings counts non-cancelled bookings holding a slot.
func CountActiveBookings(ctx context.Context, db *gorm.DB, slotID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Booking{}).
		Where("slot_id = ? AND canceled_at IS NULL", slotID).
		Count(&n).Error
	return n, err
}

// SlotWithUsage is a slot plus its number of active bookings.
type SlotWithUsage struct {
	domain.AvailabilitySlot
	Booked int64 `json:"booked"`
}

// ListSlots returns slots of a room intersecting [from, to), ordered by start,
// together with their active booking counts. A zero bound is open. When
// onlyFree is set, full slots are filtered out.
func ListSlots(ctx context.Context, db *gorm.DB, roomID string, from, to time.Time, onlyFree bool) ([]SlotWithUsage, error) {
	q := db.WithContext(ctx).Where("room_id = ?", roomID)
	if !from.IsZero() {
		q = q.Where("end_at > ?", from)
	}
	if !to.IsZero() {
		q = q.Where("start_at < ?", to)
	}
	var slots []domain.AvailabilitySlot
	if err := q.Order("start_at ASC").Find(&slots).Error; err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return []SlotWithUsage{}, nil
	}

	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	var rows []struct {
		SlotID string
		N      int64
	}
	if err := db.WithContext(ctx).Model(&domain.Booking{}).
		Select("slot_id, COUNT(*) AS n").
		Where("slot_id IN ? AND canceled_at IS NULL", ids).
		Group("slot_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	used := make(map[string]int64, len(rows))
	for _, r := range rows {
		used[r.SlotID] = r.N
	}

	out := make([]SlotWithUsage, 0, len(slots))
	for _, s := range slots {
		n := used[s.ID]
		if onlyFree && n >= int64(s.MaxBookings) {
			continue
		}
		out = append(out, SlotWithUsage{AvailabilitySlot: s, Booked: n})
	}
	return out, nil
}

// CreateBooking inserts a booking row.
func CreateBooking(ctx context.Context, db *gorm.DB, b *domain.Booking) error {
	return db.WithContext(ctx).Create(b).Error
}

// GetBooking fetches a booking by id, or ErrNotFound.
func GetBooking(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// LockBooking fetches a booking with a row lock.
func LockBooking(ctx context.Context, tx *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := ForUpdate(tx.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBooking stamps canceled_at on an active booking.
func CancelBooking(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND canceled_at IS NULL", id).
		Update("canceled_at", at).Error
}

// ListOverlappingBookings returns active bookings of a room that intersect
// [start, end).
func ListOverlappingBookings(ctx context.Context, db *gorm.DB, roomID string, start, end time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	err := db.WithContext(ctx).
		Where("room_id = ? AND canceled_at IS NULL AND start_at < ? AND end_at > ?", roomID, end, start).
		Order("start_at ASC").
		Find(&out).Error
	return out, err
}

// HasCompletedViewing reports whether userID holds a non-cancelled booking for
// roomID that ended before now.
func HasCompletedViewing(ctx context.Context, db *gorm.DB, roomID, userID string, now time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Booking{}).
		Where("room_id = ? AND user_id = ? AND canceled_at IS NULL AND end_at < ?", roomID, userID, now).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}
