package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// TenanciesStats counts the tenancies userID is party to, on either side,
// and returns the newest UpdatedAt among them. Listing handlers derive their
// ETag from it.
func TenanciesStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	q := db.WithContext(ctx).Model(&domain.Tenancy{}).
		Where("landlord_id = ? OR tenant_id = ?", userID, userID)
	return countAndNewest(q, "updated_at")
}

// NotificationsStats counts userID's inbox and returns its newest CreatedAt.
func NotificationsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("user_id = ?", userID)
	return countAndNewest(q, "created_at")
}

// countAndNewest runs a count and then reads the greatest value of column by
// ordering rather than MAX(), which SQLite hands back as TEXT. A zero count
// yields a nil time.
func countAndNewest(q *gorm.DB, column string) (int64, *time.Time, error) {
	q = q.Session(&gorm.Session{})

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, nil
	}

	var row struct{ At time.Time }
	if err := q.Select(column + " AS at").Order(column + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return n, &row.At, nil
}
