package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/repo"
)

// clock returns now() in UTC, defaulting to the wall clock.
func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

// inTx runs fn in a transaction bounded by lockTimeout on dialects that
// support it. Errors returned by fn pass through unchanged; storage errors
// are classified by storage().
func inTx(ctx context.Context, db *gorm.DB, lockTimeout time.Duration, op string, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SetLockTimeout(tx, lockTimeout); err != nil {
			return err
		}
		return fn(tx)
	})
	return storage(op, err)
}
