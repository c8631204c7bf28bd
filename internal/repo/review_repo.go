// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for reviews.
//
// Visibility rules (who may see a hidden review) live in services.ReviewVault;
// the functions here only filter on stored columns.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// CreateReview inserts a review row.
func CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) error {
	return db.WithContext(ctx).Create(r).Error
}

// LockReviewByRole fetches and locks the review written in role for a
// tenancy, or ErrNotFound.
func LockReviewByRole(ctx context.Context, tx *gorm.DB, tenancyID string, role domain.ReviewRole) (*domain.Review, error) {
	var r domain.Review
	err := ForUpdate(tx.WithContext(ctx)).
		Where("tenancy_id = ? AND role = ?", tenancyID, role).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LockReview fetches a review by id with a row lock.
func LockReview(ctx context.Context, tx *gorm.DB, id string) (*domain.Review, error) {
	var r domain.Review
	if err := ForUpdate(tx.WithContext(ctx)).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// SetReviewRevealAt moves the reveal time of the given reviews.
func SetReviewRevealAt(ctx context.Context, db *gorm.DB, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("id IN ?", ids).
		Update("reveal_at", at).Error
}

// ActivateReview flips a hidden review to active. It reports false when the
// review was already active.
func ActivateReview(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("id = ? AND active = ?", id, false).
		Updates(map[string]any{"active": true, "revealed_at": at})
	return res.RowsAffected > 0, res.Error
}

// ListTenancyReviews returns every review of a tenancy, ordered by submission.
func ListTenancyReviews(ctx context.Context, db *gorm.DB, tenancyID string) ([]domain.Review, error) {
	var out []domain.Review
	err := db.WithContext(ctx).
		Where("tenancy_id = ?", tenancyID).
		Order("submitted_at asc").
		Find(&out).Error
	return out, err
}

// ListDueReviewIDs returns hidden reviews of a tenancy whose reveal time has
// passed.
func ListDueReviewIDs(ctx context.Context, db *gorm.DB, tenancyID string, now time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("tenancy_id = ? AND active = ? AND reveal_at <= ?", tenancyID, false, now).
		Order("reveal_at asc").
		Pluck("id", &ids).Error
	return ids, err
}

// ReviewRoles returns the roles already submitted for a tenancy.
func ReviewRoles(ctx context.Context, db *gorm.DB, tenancyID string) ([]domain.ReviewRole, error) {
	var roles []domain.ReviewRole
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("tenancy_id = ?", tenancyID).
		Pluck("role", &roles).Error
	return roles, err
}
