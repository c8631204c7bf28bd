// Package services – Inbox
//
// Read side of the notification inbox that notify.InboxSink writes to.

package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
	"github.com/tbourn/go-tenancy-backend/internal/utils"
)

// Inbox lists a user's notifications.
type Inbox struct {
	DB *gorm.DB
}

// ListPage returns a page of userID's notifications, newest first, and the
// total count.
func (s *Inbox) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Notification, int64, error) {
	w := utils.NewWindow(page, pageSize)
	total, err := repo.CountNotifications(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, storage("count notifications", err)
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, userID, w.Offset(), w.PageSize)
	return items, total, storage("list notifications", err)
}

// Stats returns the inbox size and newest entry time, used as a cache
// validator.
func (s *Inbox) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, newest, err := repo.NotificationsStats(ctx, s.DB, userID)
	return n, newest, storage("notification stats", err)
}
