package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
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
	"github.com/tbourn/go-tenancy-backend/internal/services"
)

const (
	landlord = "landlord-1"
	tenant   = "tenant-1"
	roomID   = "room-1"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time  { return c.t }
func (c *testClock) Set(t time.Time) { c.t = t.UTC() }

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type env struct {
	db      *gorm.DB
	clock   *testClock
	rec     *notify.Recorder
	tenancy *services.TenancyService
	vault   *services.ReviewVault
	ratings *services.RatingAggregator
	sweeper *Sweeper
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:sweep_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))

	c := &testClock{t: now.UTC()}
	rec := &notify.Recorder{}
	ratings := &services.RatingAggregator{DB: db, Now: c.Now}
	e := &env{
		db:      db,
		clock:   c,
		rec:     rec,
		tenancy: &services.TenancyService{DB: db, Notifier: rec, Now: c.Now},
		vault:   &services.ReviewVault{DB: db, Notifier: rec, Now: c.Now},
		ratings: ratings,
		sweeper: &Sweeper{DB: db, Notifier: rec, Ratings: ratings, Now: c.Now, Workers: 3},
	}
	require.NoError(t, repo.CreateRoom(context.Background(), db, &domain.Room{ID: roomID, OwnerID: landlord, Title: "Room"}))
	return e
}

// confirmed runs propose and confirm for the fixed landlord and tenant.
func (e *env) confirmed(t *testing.T, moveIn time.Time, months int) *domain.Tenancy {
	t.Helper()
	return e.confirmedWith(t, tenant, moveIn, months)
}

// confirmedWith is confirmed for an arbitrary tenant of the same room.
func (e *env) confirmedWith(t *testing.T, tenant string, moveIn time.Time, months int) *domain.Tenancy {
	t.Helper()
	ctx := context.Background()
	end := e.clock.Now().Add(-time.Hour)
	require.NoError(t, repo.CreateBooking(ctx, e.db, &domain.Booking{
		ID: uuid.NewString(), RoomID: roomID, UserID: tenant,
		Start: end.Add(-30 * time.Minute), End: end, CreatedAt: end.Add(-time.Hour),
	}))
	tn, _, err := e.tenancy.Propose(ctx, services.ProposeInput{
		RoomID: roomID, ProposerID: landlord, CounterpartyID: tenant,
		MoveInDate: moveIn, DurationMonths: months,
	})
	require.NoError(t, err)
	tn, err = e.tenancy.Respond(ctx, tn.ID, tenant, services.ActionConfirm, services.Terms{})
	require.NoError(t, err)
	return tn
}

func (e *env) load(t *testing.T, id string) *domain.Tenancy {
	t.Helper()
	tn, err := repo.GetTenancy(context.Background(), e.db, id)
	require.NoError(t, err)
	return tn
}

func (e *env) run(t *testing.T) Result {
	t.Helper()
	res, err := e.sweeper.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestSweep_StatusAdvanceIsIdempotent(t *testing.T) {
	// Landlord proposes six months starting in seven days; tenant confirms.
	e := newEnv(t, time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC))
	tn := e.confirmed(t, day(2025, 1, 1), 6)
	require.Equal(t, domain.TenancyConfirmed, tn.Status)
	require.NotNil(t, tn.ReviewOpenAt)
	require.NotNil(t, tn.StillLivingCheckAt)

	res := e.run(t)
	require.Equal(t, 1, res.Tenancies)
	require.Zero(t, res.Activated)
	require.Equal(t, domain.TenancyConfirmed, e.load(t, tn.ID).Status)

	e.clock.Set(day(2025, 1, 1).Add(9 * time.Hour))
	res = e.run(t)
	require.Equal(t, 1, res.Activated)
	require.Equal(t, domain.TenancyActive, e.load(t, tn.ID).Status)

	res = e.run(t)
	require.Zero(t, res.Activated)
	require.Zero(t, res.Ended)
	require.Zero(t, res.Backfilled)

	// The end date itself is still occupied; the day after, it has ended.
	e.clock.Set(day(2025, 7, 1).Add(12 * time.Hour))
	require.Zero(t, e.run(t).Ended)
	e.clock.Set(day(2025, 7, 2))
	require.Equal(t, 1, e.run(t).Ended)
	require.Equal(t, domain.TenancyEnded, e.load(t, tn.ID).Status)
	require.Zero(t, e.run(t).Ended)
}

func TestSweep_BackfillsMissingSchedule(t *testing.T) {
	e := newEnv(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	tn := &domain.Tenancy{
		ID: uuid.NewString(), RoomID: roomID, LandlordID: landlord, TenantID: tenant, ProposedByID: landlord,
		MoveInDate: day(2025, 1, 1), DurationMonths: 6, Status: domain.TenancyActive,
	}
	require.NoError(t, repo.CreateTenancy(ctx, e.db, tn))

	// Cancelled tenancies are not visited at all.
	require.NoError(t, repo.CreateTenancy(ctx, e.db, &domain.Tenancy{
		ID: uuid.NewString(), RoomID: roomID, LandlordID: landlord, TenantID: "tenant-2", ProposedByID: landlord,
		MoveInDate: day(2025, 1, 1), DurationMonths: 1, Status: domain.TenancyCancelled,
	}))

	res := e.run(t)
	require.Equal(t, 1, res.Tenancies)
	require.Equal(t, 1, res.Backfilled)

	got := e.load(t, tn.ID)
	want := domain.ComputeSchedule(tn.MoveInDate, tn.DurationMonths)
	require.True(t, got.ReviewOpenAt.Equal(want.ReviewOpenAt))
	require.True(t, got.ReviewDeadlineAt.Equal(want.ReviewDeadlineAt))
	require.True(t, got.StillLivingCheckAt.Equal(want.StillLivingCheckAt))

	require.Zero(t, e.run(t).Backfilled)
}

func TestSweep_StillLivingPromptsOnlyUnconfirmedSide(t *testing.T) {
	e := newEnv(t, time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	tn := e.confirmed(t, day(2025, 1, 1), 6)

	e.clock.Set(day(2025, 6, 25))
	res := e.run(t)
	require.Equal(t, 2, res.Prompted)
	require.Equal(t, 1, e.rec.Count(notify.StillLivingCheck, landlord))
	require.Equal(t, 1, e.rec.Count(notify.StillLivingCheck, tenant))

	_, err := e.tenancy.ConfirmStillLiving(ctx, tn.ID, tenant)
	require.NoError(t, err)
	require.Equal(t, 1, e.run(t).Prompted)
	require.Equal(t, 2, e.rec.Count(notify.StillLivingCheck, landlord))
	require.Equal(t, 1, e.rec.Count(notify.StillLivingCheck, tenant))

	_, err = e.tenancy.ConfirmStillLiving(ctx, tn.ID, landlord)
	require.NoError(t, err)
	require.Zero(t, e.run(t).Prompted)
	require.Equal(t, 3, e.rec.Count(notify.StillLivingCheck, ""))
}

func TestSweep_StampsCombinedStillLiving(t *testing.T) {
	now := time.Date(2025, 6, 25, 0, 0, 0, 0, time.UTC)
	e := newEnv(t, now)
	ctx := context.Background()

	check := day(2025, 6, 24)
	l, tt := now.Add(-2*time.Hour), now.Add(-time.Hour)
	tn := &domain.Tenancy{
		ID: uuid.NewString(), RoomID: roomID, LandlordID: landlord, TenantID: tenant, ProposedByID: landlord,
		MoveInDate: day(2025, 1, 1), DurationMonths: 6, Status: domain.TenancyActive,
		StillLivingCheckAt: &check, StillLivingLandlordConfirmedAt: &l, StillLivingTenantConfirmedAt: &tt,
	}
	require.NoError(t, repo.CreateTenancy(ctx, e.db, tn))

	res := e.run(t)
	require.Equal(t, 1, res.StillLiving)
	require.Zero(t, res.Prompted)
	require.NotNil(t, e.load(t, tn.ID).StillLivingConfirmedAt)
	require.Zero(t, e.run(t).StillLiving)
}

func TestSweep_MutualRevealAndAggregates(t *testing.T) {
	e := newEnv(t, time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	tn := e.confirmed(t, day(2025, 1, 1), 6)

	e.clock.Set(day(2025, 7, 10))
	res := e.run(t)
	require.Equal(t, 1, res.Activated)
	require.Equal(t, 1, res.Ended)
	require.Equal(t, 1, res.Nudged)
	require.Equal(t, 1, e.rec.Count(notify.ReviewAvailable, landlord))
	require.Equal(t, 1, e.rec.Count(notify.ReviewAvailable, tenant))

	_, err := e.vault.Submit(ctx, tn.ID, tenant, services.ReviewInput{ReviewFlags: []string{"responsive", "maintenance_good"}})
	require.NoError(t, err)

	before, err := e.ratings.Recompute(ctx, landlord, domain.RoleTenantToLandlord)
	require.NoError(t, err)
	require.Zero(t, before.Count)

	res = e.run(t)
	require.Zero(t, res.Revealed)
	require.Equal(t, 1, res.Nudged)

	_, err = e.vault.Submit(ctx, tn.ID, landlord, services.ReviewInput{Notes: strPtr("left it tidy"), OverallRating: intPtr(4)})
	require.NoError(t, err)

	res = e.run(t)
	require.Equal(t, 2, res.Revealed)
	require.Zero(t, res.Nudged)
	require.Equal(t, 3, res.Aggregates)
	require.Equal(t, 1, e.rec.Count(notify.ReviewRevealed, landlord))
	require.Equal(t, 1, e.rec.Count(notify.ReviewRevealed, tenant))

	lp, err := e.ratings.Profile(ctx, landlord)
	require.NoError(t, err)
	require.InDelta(t, 5, lp.AvgLandlordRating, 1e-9)
	require.EqualValues(t, 1, lp.NumberLandlordRatings)
	require.EqualValues(t, 1, lp.RatingGeneration)

	tp, err := e.ratings.Profile(ctx, tenant)
	require.NoError(t, err)
	require.InDelta(t, 4, tp.AvgTenantRating, 1e-9)
	require.EqualValues(t, 1, tp.NumberTenantRatings)

	room, err := e.ratings.RoomRating(ctx, roomID)
	require.NoError(t, err)
	require.InDelta(t, 5, room.AvgRating, 1e-9)
	require.EqualValues(t, 1, room.NumberRatings)

	// A second pass changes nothing and rewrites no aggregate.
	res = e.run(t)
	require.Zero(t, res.Revealed)
	require.Zero(t, res.Aggregates)
	lp, err = e.ratings.Profile(ctx, landlord)
	require.NoError(t, err)
	require.EqualValues(t, 1, lp.RatingGeneration)
	require.Equal(t, 2, e.rec.Count(notify.ReviewRevealed, ""))
}

func TestSweep_DeadlineRevealsOneSidedReview(t *testing.T) {
	e := newEnv(t, time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	tn := e.confirmed(t, day(2025, 1, 1), 6)

	e.clock.Set(day(2025, 7, 10))
	_, err := e.vault.Submit(ctx, tn.ID, landlord, services.ReviewInput{ReviewFlags: []string{"late_payment"}})
	require.NoError(t, err)
	require.Zero(t, e.run(t).Revealed)

	e.clock.Set(*tn.ReviewDeadlineAt)
	res := e.run(t)
	require.Equal(t, 1, res.Revealed)
	require.Zero(t, res.Nudged, "no nudges once the window closed")

	tp, err := e.ratings.Profile(ctx, tenant)
	require.NoError(t, err)
	require.InDelta(t, 2, tp.AvgTenantRating, 1e-9)

	// Landlord reviews do not feed the room rating.
	room, err := e.ratings.RoomRating(ctx, roomID)
	require.NoError(t, err)
	require.Zero(t, room.NumberRatings)
	require.Zero(t, room.RatingGeneration)
}

func TestSweep_PurgesExpiredIdempotencyKeys(t *testing.T) {
	e := newEnv(t, time.Now().UTC())
	ctx := context.Background()

	_, err := repo.CreateIdempotency(ctx, e.db, "u1", "POST /bookings", "k1", "b1", 201, -time.Minute)
	require.NoError(t, err)
	_, err = repo.CreateIdempotency(ctx, e.db, "u1", "POST /bookings", "k2", "b2", 201, time.Hour)
	require.NoError(t, err)

	require.EqualValues(t, 1, e.run(t).PurgedKeys)
	require.Zero(t, e.run(t).PurgedKeys)
}

func TestSweep_CancelledContext(t *testing.T) {
	e := newEnv(t, time.Now().UTC())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.sweeper.Run(ctx)
	require.Error(t, err)
}

func TestSweep_OneTenancyFailureDoesNotAbortPass(t *testing.T) {
	e := newEnv(t, time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))
	a := e.confirmedWith(t, "tenant-a", day(2025, 1, 1), 6)
	b := e.confirmedWith(t, "tenant-b", day(2025, 1, 1), 6)
	c := e.confirmedWith(t, "tenant-c", day(2025, 1, 1), 6)

	require.NoError(t, e.db.Callback().Update().Before("gorm:update").Register("fail_one_tenancy", func(tx *gorm.DB) {
		if tn, ok := tx.Statement.Dest.(*domain.Tenancy); ok && tn.ID == b.ID {
			tx.AddError(errors.New("disk full"))
		}
	}))

	e.clock.Set(day(2025, 1, 2))
	res := e.run(t)
	require.Equal(t, 3, res.Tenancies)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 2, res.Activated)

	require.Equal(t, domain.TenancyActive, e.load(t, a.ID).Status)
	require.Equal(t, domain.TenancyConfirmed, e.load(t, b.ID).Status, "failed tenancy rolls back")
	require.Equal(t, domain.TenancyActive, e.load(t, c.ID).Status)
}

func TestSweep_AggregateWriteFailureHealsNextPass(t *testing.T) {
	e := newEnv(t, time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	tn := e.confirmed(t, day(2025, 1, 1), 6)

	var failProfiles atomic.Bool
	require.NoError(t, e.db.Callback().Create().Before("gorm:create").Register("fail_profiles", func(tx *gorm.DB) {
		if failProfiles.Load() && tx.Statement.Table == "user_profiles" {
			tx.AddError(errors.New("profiles unavailable"))
		}
	}))

	e.clock.Set(day(2025, 7, 10))
	require.Equal(t, 1, e.run(t).Ended)
	_, err := e.vault.Submit(ctx, tn.ID, tenant, services.ReviewInput{ReviewFlags: []string{"responsive", "maintenance_good"}})
	require.NoError(t, err)
	_, err = e.vault.Submit(ctx, tn.ID, landlord, services.ReviewInput{Notes: strPtr("left it tidy"), OverallRating: intPtr(4)})
	require.NoError(t, err)

	failProfiles.Store(true)
	res := e.run(t)
	require.Equal(t, 2, res.Revealed)
	require.Equal(t, 2, res.Failed, "both profile writes fail")
	require.Equal(t, 1, res.Aggregates, "room aggregate still written")

	lp, err := e.ratings.Profile(ctx, landlord)
	require.NoError(t, err)
	require.Zero(t, lp.NumberLandlordRatings)

	failProfiles.Store(false)
	res = e.run(t)
	require.Zero(t, res.Revealed)
	require.Zero(t, res.Failed)
	require.Equal(t, 2, res.Aggregates)

	lp, err = e.ratings.Profile(ctx, landlord)
	require.NoError(t, err)
	require.EqualValues(t, 1, lp.NumberLandlordRatings)
	require.InDelta(t, 5, lp.AvgLandlordRating, 1e-9)

	tp, err := e.ratings.Profile(ctx, tenant)
	require.NoError(t, err)
	require.EqualValues(t, 1, tp.NumberTenantRatings)
	require.InDelta(t, 4, tp.AvgTenantRating, 1e-9)

	res = e.run(t)
	require.Zero(t, res.Aggregates, "converged aggregates are not rewritten")
}
