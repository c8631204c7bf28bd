// Package domain defines the persistence models for rooms, viewing slots,
// bookings, tenancies, extensions, reviews, rating aggregates and the
// notification inbox. These types are mapped with GORM and form the core data
// layer of the tenancy backend.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Room is the catalog entry a landlord owns. The catalog itself is managed
// elsewhere; this service reads OwnerID and maintains the rating aggregate.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - OwnerID: landlord user id.
//   - AvgRating / NumberRatings: aggregate over revealed tenant reviews.
//   - RatingGeneration: bumped on every aggregate write (cache validator).
type Room struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	OwnerID          string    `json:"owner_id"          gorm:"type:varchar(64);not null;index"`
	Title            string    `json:"title"             gorm:"type:varchar(255);not null;default:''"`
	AvgRating        float64   `json:"avg_rating"        gorm:"not null;default:0"`
	NumberRatings    int64     `json:"number_ratings"    gorm:"not null;default:0"`
	RatingGeneration int64     `json:"rating_generation" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// AvailabilitySlot is a viewing window with finite capacity. A slot may be
// deleted only while no active booking holds it.
type AvailabilitySlot struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	RoomID      string    `json:"room_id"      gorm:"type:char(36);not null;uniqueIndex:ux_slot_window,priority:1"`
	Start       time.Time `json:"start"        gorm:"column:start_at;not null;uniqueIndex:ux_slot_window,priority:2"`
	End         time.Time `json:"end"          gorm:"column:end_at;not null;uniqueIndex:ux_slot_window,priority:3;check:end_at > start_at"`
	MaxBookings int       `json:"max_bookings" gorm:"not null;default:1;check:max_bookings >= 1"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for AvailabilitySlot.
func (AvailabilitySlot) TableName() string { return "availability_slots" }

// Booking is a reservation of a room window, either through a slot or as a
// manual range. Cancellation is soft (CanceledAt); rows are never removed.
type Booking struct {
	ID         string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	SlotID     *string    `json:"slot_id,omitempty"     gorm:"type:char(36);index:idx_booking_slot_active,priority:1"`
	RoomID     string     `json:"room_id"               gorm:"type:char(36);not null;index:idx_booking_room_user,priority:1"`
	UserID     string     `json:"user_id"               gorm:"type:varchar(64);not null;index:idx_booking_room_user,priority:2"`
	Start      time.Time  `json:"start"                 gorm:"column:start_at;not null"`
	End        time.Time  `json:"end"                   gorm:"column:end_at;not null;check:end_at > start_at"`
	CreatedAt  time.Time  `json:"created_at"`
	CanceledAt *time.Time `json:"canceled_at,omitempty" gorm:"index:idx_booking_slot_active,priority:2"`
}

// TableName returns the database table name for Booking.
func (Booking) TableName() string { return "bookings" }

// Active reports whether the booking still holds its window.
func (b Booking) Active() bool { return b.CanceledAt == nil }

// Tenancy is the occupancy agreement between a room's landlord and a tenant.
// At most one non-cancelled tenancy exists per (room, tenant); re-proposals
// update the row in place.
type Tenancy struct {
	ID             string        `json:"id"              gorm:"type:char(36);primaryKey"`
	RoomID         string        `json:"room_id"         gorm:"type:char(36);not null;uniqueIndex:ux_tenancy_room_tenant,priority:1,where:status <> 'cancelled'"`
	LandlordID     string        `json:"landlord_id"     gorm:"type:varchar(64);not null;index"`
	TenantID       string        `json:"tenant_id"       gorm:"type:varchar(64);not null;index;uniqueIndex:ux_tenancy_room_tenant,priority:2,where:status <> 'cancelled'"`
	ProposedByID   string        `json:"proposed_by_id"  gorm:"type:varchar(64);not null"`
	MoveInDate     time.Time     `json:"move_in_date"    gorm:"not null"`
	DurationMonths int           `json:"duration_months" gorm:"not null;check:duration_months >= 1"`
	Status         TenancyStatus `json:"status"          gorm:"type:varchar(16);not null;index;check:status IN ('proposed','confirmed','active','ended','cancelled')"`

	LandlordConfirmedAt *time.Time `json:"landlord_confirmed_at"`
	TenantConfirmedAt   *time.Time `json:"tenant_confirmed_at"`

	ReviewOpenAt       *time.Time `json:"review_open_at"`
	ReviewDeadlineAt   *time.Time `json:"review_deadline_at"`
	StillLivingCheckAt *time.Time `json:"still_living_check_at"`

	StillLivingLandlordConfirmedAt *time.Time `json:"still_living_landlord_confirmed_at"`
	StillLivingTenantConfirmedAt   *time.Time `json:"still_living_tenant_confirmed_at"`
	StillLivingConfirmedAt         *time.Time `json:"still_living_confirmed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Tenancy.
func (Tenancy) TableName() string { return "tenancies" }

// TenancyExtension is a request to change a tenancy's total duration. Only one
// extension may be open (proposed) per tenancy.
type TenancyExtension struct {
	ID                     string          `json:"id"                       gorm:"type:char(36);primaryKey"`
	TenancyID              string          `json:"tenancy_id"               gorm:"type:char(36);not null;index;uniqueIndex:ux_extension_open,where:status = 'proposed'"`
	ProposedByID           string          `json:"proposed_by_id"           gorm:"type:varchar(64);not null"`
	ProposedDurationMonths int             `json:"proposed_duration_months" gorm:"not null;check:proposed_duration_months >= 1"`
	Status                 ExtensionStatus `json:"status"                   gorm:"type:varchar(16);not null;check:status IN ('proposed','accepted','rejected')"`
	RespondedAt            *time.Time      `json:"responded_at"`
	CreatedAt              time.Time       `json:"created_at"`
}

// TableName returns the database table name for TenancyExtension.
func (TenancyExtension) TableName() string { return "tenancy_extensions" }

// Review is one party's assessment of the other for a tenancy. It stays
// hidden (Active=false) until RevealAt passes; once active it never reverts.
type Review struct {
	ID            string                      `json:"id"                   gorm:"type:char(36);primaryKey"`
	TenancyID     *string                     `json:"tenancy_id,omitempty" gorm:"type:char(36);uniqueIndex:ux_review_tenancy_role,priority:1"`
	BookingID     *string                     `json:"booking_id,omitempty" gorm:"type:char(36)"`
	ReviewerID    string                      `json:"reviewer_id"          gorm:"type:varchar(64);not null;index"`
	RevieweeID    string                      `json:"reviewee_id"          gorm:"type:varchar(64);not null;index:idx_review_subject,priority:1"`
	Role          ReviewRole                  `json:"role"                 gorm:"type:varchar(32);not null;uniqueIndex:ux_review_tenancy_role,priority:2;index:idx_review_subject,priority:2;check:role IN ('tenant_to_landlord','landlord_to_tenant')"`
	OverallRating int                         `json:"overall_rating"       gorm:"not null;check:overall_rating BETWEEN 1 AND 5"`
	ReviewFlags   datatypes.JSONSlice[string] `json:"review_flags"`
	Notes         string                      `json:"notes"                gorm:"type:text;not null;default:''"`
	RevealAt      time.Time                   `json:"reveal_at"            gorm:"not null;index:idx_review_reveal,priority:2"`
	Active        bool                        `json:"active"               gorm:"not null;default:false;index:idx_review_subject,priority:3;index:idx_review_reveal,priority:1"`
	RevealedAt    *time.Time                  `json:"revealed_at,omitempty"`
	SubmittedAt   time.Time                   `json:"submitted_at"         gorm:"not null"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// UserProfile holds a user's derived rating aggregates. Rows are written only
// by the rating aggregator.
type UserProfile struct {
	UserID                string    `json:"user_id"                 gorm:"type:varchar(64);primaryKey"`
	AvgTenantRating       float64   `json:"avg_tenant_rating"       gorm:"not null;default:0"`
	NumberTenantRatings   int64     `json:"number_tenant_ratings"   gorm:"not null;default:0"`
	AvgLandlordRating     float64   `json:"avg_landlord_rating"     gorm:"not null;default:0"`
	NumberLandlordRatings int64     `json:"number_landlord_ratings" gorm:"not null;default:0"`
	RatingGeneration      int64     `json:"rating_generation"       gorm:"not null;default:0"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserProfile.
func (UserProfile) TableName() string { return "user_profiles" }

// Notification is an inbox entry delivered to a user.
type Notification struct {
	ID        string            `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string            `json:"user_id" gorm:"type:varchar(64);not null;index:idx_notification_user,priority:1"`
	Type      string            `json:"type"    gorm:"type:varchar(64);not null"`
	Subject   string            `json:"subject" gorm:"type:varchar(255);not null;default:''"`
	Context   datatypes.JSONMap `json:"context"`
	CreatedAt time.Time         `json:"created_at" gorm:"index:idx_notification_user,priority:2"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
