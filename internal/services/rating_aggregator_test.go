package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
)

func addReview(t *testing.T, f *fixture, tenancyID string, role domain.ReviewRole, reviewee string, rating int, active bool) {
	t.Helper()
	tid := tenancyID
	r := &domain.Review{
		ID: uuid.NewString(), TenancyID: &tid, ReviewerID: "x", RevieweeID: reviewee,
		Role: role, OverallRating: rating, ReviewFlags: []string{},
		RevealAt: f.clock.Now(), Active: active, SubmittedAt: f.clock.Now(),
	}
	require.NoError(t, repo.CreateReview(context.Background(), f.db, r))
}

func TestRatingAggregator_UserAndRoom(t *testing.T) {
	f := newFixture(t, time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	tn := f.confirmedTenancy(t, day(2025, 1, 1), 6)

	// A second room of the same landlord with its own tenancy.
	other := seedRoom(t, f.db, "room-2", f.landlord)
	tid2 := uuid.NewString()
	require.NoError(t, repo.CreateTenancy(ctx, f.db, &domain.Tenancy{
		ID: tid2, RoomID: other.ID, LandlordID: f.landlord, TenantID: "tenant-2", ProposedByID: f.landlord,
		MoveInDate: day(2025, 1, 1), DurationMonths: 6, Status: domain.TenancyEnded,
	}))

	addReview(t, f, tn.ID, domain.RoleTenantToLandlord, f.landlord, 5, true)
	addReview(t, f, tid2, domain.RoleTenantToLandlord, f.landlord, 2, true)
	addReview(t, f, tn.ID, domain.RoleLandlordToTenant, f.tenant, 1, false)

	r, err := f.ratings.Recompute(ctx, f.landlord, domain.RoleTenantToLandlord)
	require.NoError(t, err)
	require.EqualValues(t, 2, r.Count)
	require.InDelta(t, 3.5, r.Average, 1e-9)

	// Hidden reviews do not count.
	r, err = f.ratings.Recompute(ctx, f.tenant, domain.RoleLandlordToTenant)
	require.NoError(t, err)
	require.Zero(t, r.Count)
	require.Zero(t, r.Average)

	_, err = f.ratings.PersistUser(ctx, f.landlord, domain.RoleTenantToLandlord)
	require.NoError(t, err)
	_, err = f.ratings.PersistUser(ctx, f.landlord, domain.RoleTenantToLandlord)
	require.NoError(t, err)
	p, err := f.ratings.Profile(ctx, f.landlord)
	require.NoError(t, err)
	require.InDelta(t, 3.5, p.AvgLandlordRating, 1e-9)
	require.EqualValues(t, 2, p.NumberLandlordRatings)
	require.EqualValues(t, 2, p.RatingGeneration)

	room, err := f.ratings.PersistRoom(ctx, f.room.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, room.Count)
	require.InDelta(t, 5, room.Average, 1e-9)

	stored, err := f.ratings.RoomRating(ctx, f.room.ID)
	require.NoError(t, err)
	require.InDelta(t, 5, stored.AvgRating, 1e-9)
	require.EqualValues(t, 1, stored.NumberRatings)
	require.EqualValues(t, 1, stored.RatingGeneration)

	_, err = f.ratings.PersistRoom(ctx, "nope")
	require.ErrorIs(t, err, ErrRoomNotFound)
	_, err = f.ratings.RoomRating(ctx, "nope")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRatingAggregator_ProfileDefaultsToZero(t *testing.T) {
	f := newFixture(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	p, err := f.ratings.Profile(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, "nobody", p.UserID)
	require.Zero(t, p.RatingGeneration)
	require.Zero(t, p.NumberTenantRatings)
}
