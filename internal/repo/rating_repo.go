// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries and writes behind
// user and room ratings.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// RatingRow is an average and the number of reviews it was computed from.
type RatingRow struct {
	Avg float64
	N   int64
}

// AverageRating aggregates the active reviews a subject received in role.
// A subject with no active reviews yields a zero row.
func AverageRating(ctx context.Context, db *gorm.DB, subjectID string, role domain.ReviewRole) (RatingRow, error) {
	var row RatingRow
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Select("COALESCE(AVG(overall_rating), 0) AS avg, COUNT(*) AS n").
		Where("reviewee_id = ? AND role = ? AND active = ?", subjectID, role, true).
		Scan(&row).Error
	return row, err
}

// AverageRoomRating aggregates active tenant-to-landlord reviews written for
// tenancies of the room.
func AverageRoomRating(ctx context.Context, db *gorm.DB, roomID string) (RatingRow, error) {
	var row RatingRow
	err := db.WithContext(ctx).
		Table("reviews AS r").
		Joins("JOIN tenancies AS t ON t.id = r.tenancy_id").
		Select("COALESCE(AVG(r.overall_rating), 0) AS avg, COUNT(*) AS n").
		Where("t.room_id = ? AND r.role = ? AND r.active = ?", roomID, domain.RoleTenantToLandlord, true).
		Scan(&row).Error
	return row, err
}

// SaveUserRating upserts the profile columns for role and bumps the profile's
// rating generation.
func SaveUserRating(ctx context.Context, db *gorm.DB, userID string, role domain.ReviewRole, r RatingRow, now time.Time) error {
	p := domain.UserProfile{UserID: userID, RatingGeneration: 1, UpdatedAt: now}
	cols := map[string]any{
		"rating_generation": gorm.Expr("user_profiles.rating_generation + 1"),
		"updated_at":        now,
	}
	switch role {
	case domain.RoleLandlordToTenant:
		p.AvgTenantRating, p.NumberTenantRatings = r.Avg, r.N
		cols["avg_tenant_rating"], cols["number_tenant_ratings"] = r.Avg, r.N
	case domain.RoleTenantToLandlord:
		p.AvgLandlordRating, p.NumberLandlordRatings = r.Avg, r.N
		cols["avg_landlord_rating"], cols["number_landlord_ratings"] = r.Avg, r.N
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(cols),
		}).
		Create(&p).Error
}

// SaveRoomRating writes a room's aggregate and bumps its rating generation.
func SaveRoomRating(ctx context.Context, db *gorm.DB, roomID string, r RatingRow, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{
			"avg_rating":        r.Avg,
			"number_ratings":    r.N,
			"rating_generation": gorm.Expr("rating_generation + 1"),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUserProfile returns the stored profile, or ErrNotFound.
func GetUserProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	if err := db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// StaleUserRating is a (user, review role) whose stored count disagrees with
// the number of active reviews it received.
type StaleUserRating struct {
	UserID string
	Role   domain.ReviewRole
}

// StaleUserRatings lists subjects whose profile aggregate lags the active
// reviews. Active reviews never revert and are never edited, so a count
// mismatch is the only way an aggregate can be out of date.
func StaleUserRatings(ctx context.Context, db *gorm.DB) ([]StaleUserRating, error) {
	var out []StaleUserRating
	err := db.WithContext(ctx).
		Table("reviews AS r").
		Joins("LEFT JOIN user_profiles AS p ON p.user_id = r.reviewee_id").
		Select("r.reviewee_id AS user_id, r.role AS role").
		Where("r.active = ?", true).
		Group("r.reviewee_id, r.role, p.number_tenant_ratings, p.number_landlord_ratings").
		Having(`COUNT(*) <> CASE WHEN r.role = ?
			THEN COALESCE(p.number_landlord_ratings, 0)
			ELSE COALESCE(p.number_tenant_ratings, 0) END`, domain.RoleTenantToLandlord).
		Scan(&out).Error
	return out, err
}

// StaleRoomRatings lists rooms whose stored rating count disagrees with the
// active tenant-to-landlord reviews of their tenancies.
func StaleRoomRatings(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Table("reviews AS r").
		Joins("JOIN tenancies AS t ON t.id = r.tenancy_id").
		Joins("JOIN rooms AS m ON m.id = t.room_id").
		Where("r.active = ? AND r.role = ?", true, domain.RoleTenantToLandlord).
		Group("t.room_id, m.number_ratings").
		Having("COUNT(*) <> m.number_ratings").
		Pluck("t.room_id", &out).Error
	return out, err
}
