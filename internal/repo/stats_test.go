package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedTenancy(t *testing.T, db *gorm.DB, id, landlord, tenant string, updated time.Time) {
	t.Helper()
	tn := &domain.Tenancy{
		ID: id, RoomID: "room-" + id, LandlordID: landlord, TenantID: tenant, ProposedByID: landlord,
		MoveInDate: domain.DateOf(updated), DurationMonths: 6, Status: domain.TenancyProposed,
		CreatedAt: updated, UpdatedAt: updated,
	}
	if err := db.Create(tn).Error; err != nil {
		t.Fatalf("seed tenancy %s: %v", id, err)
	}
}

func TestTenanciesStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, _, err := TenanciesStats(context.Background(), db, "u1")
	if err == nil {
		t.Fatalf("expected error due to missing tenancies table")
	}
}

func TestTenanciesStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Tenancy{})
	count, maxAt, err := TenanciesStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("TenanciesStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestTenanciesStats_Success_BothSidesAndMax(t *testing.T) {
	db := newTestDB(t, &domain.Tenancy{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for u1
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // unrelated

	seedTenancy(t, db, "t1", "u1", "x", t1)
	seedTenancy(t, db, "t2", "y", "u1", t2)
	seedTenancy(t, db, "t3", "y", "z", t3)

	count, maxAt, err := TenanciesStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("TenanciesStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected maxUpdatedAt %v, got %v", t2, maxAt)
	}
}

func TestNotificationsStats(t *testing.T) {
	db := newTestDB(t, &domain.Notification{})
	ctx := context.Background()

	if n, newest, err := NotificationsStats(ctx, db, "u1"); err != nil || n != 0 || newest != nil {
		t.Fatalf("empty inbox: (%d, %v, %v)", n, newest, err)
	}

	t1 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{t1, t2} {
		n := &domain.Notification{ID: fmt.Sprintf("n%d", i), UserID: "u1", Type: "review_revealed", CreatedAt: at}
		if err := CreateNotification(ctx, db, n); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, newest, err := NotificationsStats(ctx, db, "u1")
	if err != nil || n != 2 || newest == nil || !newest.Equal(t2) {
		t.Fatalf("stats = (%d, %v, %v)", n, newest, err)
	}
	page, err := ListNotificationsPage(ctx, db, "u1", 0, 1)
	if err != nil || len(page) != 1 || page[0].ID != "n1" {
		t.Fatalf("newest-first page = %+v, %v", page, err)
	}
}
