package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_models_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Room{}, &AvailabilitySlot{}, &Booking{}, &Tenancy{},
		&TenancyExtension{}, &Review{}, &UserProfile{}, &Notification{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Room{}).TableName():             "rooms",
		(AvailabilitySlot{}).TableName(): "availability_slots",
		(Booking{}).TableName():          "bookings",
		(Tenancy{}).TableName():          "tenancies",
		(TenancyExtension{}).TableName(): "tenancy_extensions",
		(Review{}).TableName():           "reviews",
		(UserProfile{}).TableName():      "user_profiles",
		(Notification{}).TableName():     "notifications",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	checks := []struct {
		model any
		index string
	}{
		{&AvailabilitySlot{}, "ux_slot_window"},
		{&Booking{}, "idx_booking_slot_active"},
		{&Tenancy{}, "ux_tenancy_room_tenant"},
		{&TenancyExtension{}, "ux_extension_open"},
		{&Review{}, "ux_review_tenancy_role"},
		{&Review{}, "idx_review_reveal"},
	}
	for _, c := range checks {
		if !m.HasIndex(c.model, c.index) {
			t.Fatalf("expected index %s on %T", c.index, c.model)
		}
	}
}

func TestSlotConstraints(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	bad := &AvailabilitySlot{ID: "s0", RoomID: "r1", Start: now, End: now.Add(-time.Hour), MaxBookings: 1}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected check violation for end <= start")
	}
	zero := &AvailabilitySlot{ID: "s1", RoomID: "r1", Start: now, End: now.Add(time.Hour), MaxBookings: 0}
	if err := db.Exec(`INSERT INTO availability_slots (id, room_id, start_at, end_at, max_bookings, created_at) VALUES (?,?,?,?,?,?)`,
		zero.ID, zero.RoomID, zero.Start, zero.End, 0, now).Error; err == nil {
		t.Fatalf("expected check violation for max_bookings < 1")
	}

	ok := &AvailabilitySlot{ID: "s2", RoomID: "r1", Start: now, End: now.Add(time.Hour), MaxBookings: 2}
	if err := db.Create(ok).Error; err != nil {
		t.Fatalf("insert slot: %v", err)
	}
	dup := &AvailabilitySlot{ID: "s3", RoomID: "r1", Start: now, End: now.Add(time.Hour), MaxBookings: 1}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on (room, start, end)")
	}
}

func TestTenancyPartialUniqueIndex(t *testing.T) {
	db := newDomainDB(t)
	moveIn := DateOf(time.Now())

	mk := func(id string, status TenancyStatus) *Tenancy {
		return &Tenancy{
			ID: id, RoomID: "r1", LandlordID: "ll", TenantID: "tt", ProposedByID: "ll",
			MoveInDate: moveIn, DurationMonths: 6, Status: status,
		}
	}

	if err := db.Create(mk("t1", TenancyCancelled)).Error; err != nil {
		t.Fatalf("insert cancelled: %v", err)
	}
	if err := db.Create(mk("t2", TenancyCancelled)).Error; err != nil {
		t.Fatalf("cancelled rows must not collide: %v", err)
	}
	if err := db.Create(mk("t3", TenancyProposed)).Error; err != nil {
		t.Fatalf("insert proposed: %v", err)
	}
	if err := db.Create(mk("t4", TenancyActive)).Error; err == nil {
		t.Fatalf("expected unique violation for a second live tenancy on (room, tenant)")
	}

	bad := mk("t5", "archived")
	bad.TenantID = "other"
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected check violation for unknown status")
	}
}

func TestReviewConstraints_AndFlagsRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()
	tid := "t1"

	r := &Review{
		ID: "rv1", TenancyID: &tid, ReviewerID: "tt", RevieweeID: "ll",
		Role: RoleTenantToLandlord, OverallRating: 5,
		ReviewFlags: []string{"responsive", "maintenance_good"},
		RevealAt:    now, SubmittedAt: now,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("insert review: %v", err)
	}

	var got Review
	if err := db.First(&got, "id = ?", "rv1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if len(got.ReviewFlags) != 2 || got.ReviewFlags[0] != "responsive" || got.Active {
		t.Fatalf("unexpected review: %+v", got)
	}

	dup := *r
	dup.ID = "rv2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique violation on (tenancy, role)")
	}

	other := *r
	other.ID = "rv3"
	other.Role = RoleLandlordToTenant
	other.OverallRating = 9
	if err := db.Create(&other).Error; err == nil {
		t.Fatalf("expected check violation for rating outside 1..5")
	}
}
