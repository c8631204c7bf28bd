// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for tenancies and
// their extension requests.
//
// Error semantics follow the rest of the package: missing rows surface as
// ErrNotFound and raw driver errors are propagated; IsDuplicate classifies
// partial-unique-index races.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// CreateTenancy inserts a tenancy row.
func CreateTenancy(ctx context.Context, db *gorm.DB, t *domain.Tenancy) error {
	return db.WithContext(ctx).Create(t).Error
}

// SaveTenancy writes every column of t.
func SaveTenancy(ctx context.Context, db *gorm.DB, t *domain.Tenancy) error {
	return db.WithContext(ctx).Save(t).Error
}

// GetTenancy fetches a tenancy by id, or ErrNotFound.
func GetTenancy(ctx context.Context, db *gorm.DB, id string) (*domain.Tenancy, error) {
	var t domain.Tenancy
	if err := db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// LockTenancy fetches a tenancy with a row lock.
func LockTenancy(ctx context.Context, tx *gorm.DB, id string) (*domain.Tenancy, error) {
	var t domain.Tenancy
	if err := ForUpdate(tx.WithContext(ctx)).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// LockLiveTenancy fetches and locks the non-cancelled tenancy for
// (roomID, tenantID), or ErrNotFound.
func LockLiveTenancy(ctx context.Context, tx *gorm.DB, roomID, tenantID string) (*domain.Tenancy, error) {
	var t domain.Tenancy
	err := ForUpdate(tx.WithContext(ctx)).
		Where("room_id = ? AND tenant_id = ? AND status <> ?", roomID, tenantID, domain.TenancyCancelled).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTenanciesForUser returns how many tenancies name userID as a party.
func CountTenanciesForUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Tenancy{}).
		Where("landlord_id = ? OR tenant_id = ?", userID, userID).
		Count(&total).Error
	return total, err
}

// ListTenanciesPage returns a page of a user's tenancies, most recently
// updated first.
func ListTenanciesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Tenancy, error) {
	var out []domain.Tenancy
	err := db.WithContext(ctx).
		Where("landlord_id = ? OR tenant_id = ?", userID, userID).
		Order("updated_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListSweepTenancyIDs returns ids of every tenancy that is not cancelled, in a
// stable order.
func ListSweepTenancyIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Tenancy{}).
		Where("status <> ?", domain.TenancyCancelled).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// CreateExtension inserts an extension request.
func CreateExtension(ctx context.Context, db *gorm.DB, e *domain.TenancyExtension) error {
	return db.WithContext(ctx).Create(e).Error
}

// SaveExtension writes every column of e.
func SaveExtension(ctx context.Context, db *gorm.DB, e *domain.TenancyExtension) error {
	return db.WithContext(ctx).Save(e).Error
}

// LockExtension fetches an extension scoped to its tenancy, with a row lock.
func LockExtension(ctx context.Context, tx *gorm.DB, tenancyID, id string) (*domain.TenancyExtension, error) {
	var e domain.TenancyExtension
	err := ForUpdate(tx.WithContext(ctx)).
		Where("id = ? AND tenancy_id = ?", id, tenancyID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// HasOpenExtension reports whether the tenancy has an extension still
// awaiting a response.
func HasOpenExtension(ctx context.Context, db *gorm.DB, tenancyID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.TenancyExtension{}).
		Where("tenancy_id = ? AND status = ?", tenancyID, domain.ExtensionProposed).
		Count(&n).Error
	return n > 0, err
}

// ListExtensions returns a tenancy's extension history, oldest first.
func ListExtensions(ctx context.Context, db *gorm.DB, tenancyID string) ([]domain.TenancyExtension, error) {
	var out []domain.TenancyExtension
	err := db.WithContext(ctx).
		Where("tenancy_id = ?", tenancyID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
