package domain

import "time"

// Idempotency remembers which resource a keyed write produced, so a retried
// request can be answered with the stored resource instead of running again.
//
// Records are unique per (UserID, Scope, Key). Scope is the request method and
// route path, e.g. "POST /api/v1/bookings"; a client may reuse a key on a
// different endpoint without colliding.
type Idempotency struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"not null;size:128;uniqueIndex:ux_idem_user_scope_key,priority:1"`
	Scope      string    `gorm:"not null;size:255;uniqueIndex:ux_idem_user_scope_key,priority:2"`
	Key        string    `gorm:"not null;size:200;uniqueIndex:ux_idem_user_scope_key,priority:3"`
	ResourceID string    `gorm:"not null;size:36"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

func (Idempotency) TableName() string { return "idempotency" }

// Live reports whether the record still answers retries at now.
func (i Idempotency) Live(now time.Time) bool { return now.Before(i.ExpiresAt) }
