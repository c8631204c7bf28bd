// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and Postgres, schema migrations, and the small
// transaction utilities shared by the services (row locks, lock timeouts and
// driver-agnostic error classification).
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-tenancy-backend/internal/config"
	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// Postgres SQLSTATE codes the services react to.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

// Open connects to the configured dialect and attaches the tracing plugin.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = OpenPostgres(cfg.URL)
	case "sqlite", "":
		db, err = OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("attach tracing: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// SQLite has no row locks and a single writer. One connection queues
	// transactions, so a locked read followed by a write is never interleaved.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxIdleTime(0)
		sqlDB.SetConnMaxLifetime(0)
	}

	return db, nil
}

// OpenPostgres opens a Postgres connection pool via pgx.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Room{},
		&domain.AvailabilitySlot{},
		&domain.Booking{},
		&domain.Tenancy{},
		&domain.TenancyExtension{},
		&domain.Review{},
		&domain.UserProfile{},
		&domain.Notification{},
		&domain.Idempotency{},
	)
}

// ForUpdate adds SELECT ... FOR UPDATE to the next query. Dialects without row
// locks (SQLite) drop the clause.
func ForUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// SetLockTimeout bounds how long the current transaction waits on row locks.
// It is a no-op outside Postgres.
func SetLockTimeout(tx *gorm.DB, d time.Duration) error {
	if d <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}

// IsDuplicate reports unique-constraint violations across drivers.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// IsLockTimeout reports whether err came from an expired lock wait.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") || strings.Contains(low, "sqlite_busy")
}
