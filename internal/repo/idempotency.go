package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// ErrDuplicate is returned when a (user, scope, key) record already exists.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency loads the record stored under (userID, scope, key) that is
// still live at now. Expired, missing and unscoped lookups all yield
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where(map[string]any{"user_id": userID, "scope": scope, "key": key}).
		Where("expires_at > ?", now).
		Take(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency stores resourceID under (userID, scope, key) for ttl.
// A concurrent writer that got there first surfaces as ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	switch err := db.WithContext(ctx).Create(&rec).Error; {
	case err == nil:
		return &rec, nil
	case IsDuplicate(err):
		return nil, ErrDuplicate
	default:
		return nil, err
	}
}

// PurgeExpiredIdempotency removes records that stopped being live at or
// before now and reports how many went.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
