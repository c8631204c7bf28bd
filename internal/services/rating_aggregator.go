// Package services – RatingAggregator
//
// Ratings are pure functions of the active reviews a subject received; this
// file recomputes them and persists the results onto user profiles and rooms.
// Every persisted write bumps the aggregate's rating_generation, which the
// HTTP layer uses as a cache validator.

package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Rating is an average over a number of reviews.
type Rating struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// RatingAggregator computes and stores rating aggregates.
type RatingAggregator struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Recompute aggregates the active reviews subjectID received in role.
func (a *RatingAggregator) Recompute(ctx context.Context, subjectID string, role domain.ReviewRole) (Rating, error) {
	row, err := repo.AverageRating(ctx, a.DB, subjectID, role)
	if err != nil {
		return Rating{}, storage("average rating", err)
	}
	return Rating{Average: row.Avg, Count: row.N}, nil
}

// RecomputeRoom aggregates active tenant reviews of the room's tenancies.
func (a *RatingAggregator) RecomputeRoom(ctx context.Context, roomID string) (Rating, error) {
	row, err := repo.AverageRoomRating(ctx, a.DB, roomID)
	if err != nil {
		return Rating{}, storage("average room rating", err)
	}
	return Rating{Average: row.Avg, Count: row.N}, nil
}

// PersistUser recomputes and stores the user's aggregate for role.
func (a *RatingAggregator) PersistUser(ctx context.Context, userID string, role domain.ReviewRole) (Rating, error) {
	tr := otel.Tracer("services/RatingAggregator")
	ctx, span := tr.Start(ctx, "PersistUser",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("role", string(role)),
		),
	)
	defer span.End()

	r, err := a.Recompute(ctx, userID, role)
	if err != nil {
		return Rating{}, err
	}
	row := repo.RatingRow{Avg: r.Average, N: r.Count}
	if err := repo.SaveUserRating(ctx, a.DB, userID, role, row, clock(a.Now)); err != nil {
		return Rating{}, storage("save user rating", err)
	}
	return r, nil
}

// PersistRoom recomputes and stores the room's aggregate.
func (a *RatingAggregator) PersistRoom(ctx context.Context, roomID string) (Rating, error) {
	tr := otel.Tracer("services/RatingAggregator")
	ctx, span := tr.Start(ctx, "PersistRoom",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	r, err := a.RecomputeRoom(ctx, roomID)
	if err != nil {
		return Rating{}, err
	}
	err = repo.SaveRoomRating(ctx, a.DB, roomID, repo.RatingRow{Avg: r.Average, N: r.Count}, clock(a.Now))
	if errors.Is(err, repo.ErrNotFound) {
		return Rating{}, ErrRoomNotFound
	}
	if err != nil {
		return Rating{}, storage("save room rating", err)
	}
	return r, nil
}

// Profile returns the stored aggregates for userID; users nobody has reviewed
// get a zero profile.
func (a *RatingAggregator) Profile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	p, err := repo.GetUserProfile(ctx, a.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return &domain.UserProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, storage("load profile", err)
	}
	return p, nil
}

// RoomRating returns the room row carrying its stored aggregate.
func (a *RatingAggregator) RoomRating(ctx context.Context, roomID string) (*domain.Room, error) {
	r, err := repo.GetRoom(ctx, a.DB, roomID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, storage("load room", err)
	}
	return r, nil
}
