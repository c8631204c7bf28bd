// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the notification inbox.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// CreateNotification inserts an inbox entry.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

// CountNotifications returns the size of a user's inbox.
func CountNotifications(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListNotificationsPage returns a page of a user's inbox, newest first.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
