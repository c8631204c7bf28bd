package domain

import "time"

// TenancyStatus is the lifecycle state of a Tenancy.
type TenancyStatus string

const (
	TenancyProposed  TenancyStatus = "proposed"
	TenancyConfirmed TenancyStatus = "confirmed"
	TenancyActive    TenancyStatus = "active"
	TenancyEnded     TenancyStatus = "ended"
	TenancyCancelled TenancyStatus = "cancelled"
)

// ExtensionStatus is the state of a TenancyExtension.
type ExtensionStatus string

const (
	ExtensionProposed ExtensionStatus = "proposed"
	ExtensionAccepted ExtensionStatus = "accepted"
	ExtensionRejected ExtensionStatus = "rejected"
)

// Review window offsets, relative to midnight of the tenancy end date.
const (
	ReviewOpenDelay     = 7 * 24 * time.Hour
	ReviewWindow        = 60 * 24 * time.Hour
	StillLivingLeadTime = 7 * 24 * time.Hour
)

// IsParty reports whether userID is the landlord or the tenant.
func (t *Tenancy) IsParty(userID string) bool {
	return userID != "" && (userID == t.LandlordID || userID == t.TenantID)
}

// Counterparty returns the other party of the tenancy, or "" when userID is
// not a party.
func (t *Tenancy) Counterparty(userID string) string {
	switch userID {
	case t.LandlordID:
		return t.TenantID
	case t.TenantID:
		return t.LandlordID
	}
	return ""
}

// Parties returns landlord and tenant ids.
func (t *Tenancy) Parties() []string { return []string{t.LandlordID, t.TenantID} }

// BothConfirmed reports whether landlord and tenant have confirmed the terms.
func (t *Tenancy) BothConfirmed() bool {
	return t.LandlordConfirmedAt != nil && t.TenantConfirmedAt != nil
}

// EndDate is move-in plus the duration in calendar months.
func (t *Tenancy) EndDate() time.Time {
	return AddMonths(t.MoveInDate, t.DurationMonths)
}

// ScheduleComplete reports whether all derived schedule fields are set.
func (t *Tenancy) ScheduleComplete() bool {
	return t.ReviewOpenAt != nil && t.ReviewDeadlineAt != nil && t.StillLivingCheckAt != nil
}

// FillSchedule sets any unset schedule field from the current terms and
// reports whether something changed. Set fields are left untouched.
func (t *Tenancy) FillSchedule() bool {
	s := ComputeSchedule(t.MoveInDate, t.DurationMonths)
	changed := false
	if t.ReviewOpenAt == nil {
		t.ReviewOpenAt = &s.ReviewOpenAt
		changed = true
	}
	if t.ReviewDeadlineAt == nil {
		t.ReviewDeadlineAt = &s.ReviewDeadlineAt
		changed = true
	}
	if t.StillLivingCheckAt == nil {
		t.StillLivingCheckAt = &s.StillLivingCheckAt
		changed = true
	}
	return changed
}

// ClearSchedule drops the derived schedule and still-living stamps.
func (t *Tenancy) ClearSchedule() {
	t.ReviewOpenAt = nil
	t.ReviewDeadlineAt = nil
	t.StillLivingCheckAt = nil
	t.StillLivingLandlordConfirmedAt = nil
	t.StillLivingTenantConfirmedAt = nil
	t.StillLivingConfirmedAt = nil
}

// Schedule holds the timestamps derived from a tenancy's terms.
type Schedule struct {
	EndDate            time.Time
	ReviewOpenAt       time.Time
	ReviewDeadlineAt   time.Time
	StillLivingCheckAt time.Time
}

// ComputeSchedule derives the review window and still-living check from the
// move-in date and duration.
func ComputeSchedule(moveIn time.Time, months int) Schedule {
	end := AddMonths(moveIn, months)
	open := end.Add(ReviewOpenDelay)
	return Schedule{
		EndDate:            end,
		ReviewOpenAt:       open,
		ReviewDeadlineAt:   open.Add(ReviewWindow),
		StillLivingCheckAt: end.Add(-StillLivingLeadTime),
	}
}

// AddMonths adds calendar months to a date, clamping the day to the last day
// of the target month (Jan 31 + 1 month = Feb 28/29). The result is midnight UTC.
func AddMonths(d time.Time, months int) time.Time {
	d = DateOf(d)
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to midnight UTC of its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
