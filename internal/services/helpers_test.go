package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/notify"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
)

// newTestDB opens an isolated in-memory database with the full schema. One
// open connection serializes transactions the way row locks would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// testClock is a settable clock.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Set(t time.Time)         { c.t = t.UTC() }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock(t time.Time) *testClock { return &testClock{t: t.UTC()} }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedRoom(t *testing.T, db *gorm.DB, id, owner string) *domain.Room {
	t.Helper()
	r := &domain.Room{ID: id, OwnerID: owner, Title: "Room " + id}
	require.NoError(t, repo.CreateRoom(context.Background(), db, r))
	return r
}

// seedViewing records a finished viewing of roomID by userID.
func seedViewing(t *testing.T, db *gorm.DB, roomID, userID string, end time.Time) {
	t.Helper()
	b := &domain.Booking{
		ID: uuid.NewString(), RoomID: roomID, UserID: userID,
		Start: end.Add(-30 * time.Minute), End: end, CreatedAt: end.Add(-time.Hour),
	}
	require.NoError(t, repo.CreateBooking(context.Background(), db, b))
}

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	rec      *notify.Recorder
	ledger   *SlotLedger
	tenancy  *TenancyService
	vault    *ReviewVault
	ratings  *RatingAggregator
	landlord string
	tenant   string
	room     *domain.Room
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db := newTestDB(t)
	c := newClock(now)
	rec := &notify.Recorder{}
	f := &fixture{
		db:       db,
		clock:    c,
		rec:      rec,
		ledger:   &SlotLedger{DB: db, Now: c.Now},
		tenancy:  &TenancyService{DB: db, Notifier: rec, Now: c.Now},
		vault:    &ReviewVault{DB: db, Notifier: rec, Now: c.Now},
		ratings:  &RatingAggregator{DB: db, Now: c.Now},
		landlord: "landlord-1",
		tenant:   "tenant-1",
	}
	f.room = seedRoom(t, db, "room-1", f.landlord)
	return f
}

// confirmedTenancy proposes and confirms a tenancy between the fixture's
// landlord and tenant.
func (f *fixture) confirmedTenancy(t *testing.T, moveIn time.Time, months int) *domain.Tenancy {
	t.Helper()
	ctx := context.Background()
	seedViewing(t, f.db, f.room.ID, f.tenant, f.clock.Now().Add(-24*time.Hour))

	tn, created, err := f.tenancy.Propose(ctx, ProposeInput{
		RoomID: f.room.ID, ProposerID: f.landlord, CounterpartyID: f.tenant,
		MoveInDate: moveIn, DurationMonths: months,
	})
	require.NoError(t, err)
	require.True(t, created)

	tn, err = f.tenancy.Respond(ctx, tn.ID, f.tenant, ActionConfirm, Terms{})
	require.NoError(t, err)
	return tn
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	require.ErrorIs(t, err, ErrValidation)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Contains(t, se.Fields, field, "fields: %v", se.Fields)
}
