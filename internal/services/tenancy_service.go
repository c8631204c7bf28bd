// Package services – TenancyService
//
// This file implements the tenancy state machine:
//
//	proposed -> confirmed -> active -> ended
//	proposed -> cancelled
//
// Each transition runs in a transaction that locks the tenancy row. The
// landlord and tenant of a tenancy are fixed when it is first proposed; the
// proposer and the per-party confirmations change on every re-proposal.
// Notifications are collected while the transaction runs and emitted only
// after it commits.

package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/notify"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
	"github.com/tbourn/go-tenancy-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaxDurationMonths bounds tenancy and extension durations.
const MaxDurationMonths = 120

// Respond actions.
const (
	ActionConfirm        = "confirm"
	ActionProposeChanges = "propose_changes"
	ActionReject         = "reject"
	ActionAccept         = "accept"
)

// errProposeRace marks a lost insert race on the live-tenancy unique index.
var errProposeRace = errors.New("concurrent tenancy proposal")

// TenancyService coordinates the tenancy lifecycle.
type TenancyService struct {
	DB          *gorm.DB
	Notifier    notify.Notifier
	Now         func() time.Time
	LockTimeout time.Duration
}

// ProposeInput carries the terms of a tenancy proposal.
type ProposeInput struct {
	RoomID         string
	ProposerID     string
	CounterpartyID string
	MoveInDate     time.Time
	DurationMonths int
}

// Terms are the editable fields of a proposal.
type Terms struct {
	MoveInDate     *time.Time
	DurationMonths *int
}

func termsErrors(moveIn *time.Time, months *int) map[string]string {
	fields := map[string]string{}
	if moveIn == nil || moveIn.IsZero() {
		fields["move_in_date"] = "is required"
	}
	switch {
	case months == nil:
		fields["duration_months"] = "is required"
	case *months < 1 || *months > MaxDurationMonths:
		fields["duration_months"] = "must be between 1 and 120"
	}
	return fields
}

func tenancyContext(t *domain.Tenancy) map[string]string {
	return map[string]string{"tenancy_id": t.ID, "room_id": t.RoomID}
}

// applyProposal overwrites terms, resets confirmations and self-confirms
// the proposer.
func applyProposal(t *domain.Tenancy, proposerID string, moveIn time.Time, months int, now time.Time) {
	t.MoveInDate = domain.DateOf(moveIn)
	t.DurationMonths = months
	t.ProposedByID = proposerID
	t.Status = domain.TenancyProposed
	t.LandlordConfirmedAt = nil
	t.TenantConfirmedAt = nil
	setConfirmed(t, proposerID, now)
	t.ClearSchedule()
}

func setConfirmed(t *domain.Tenancy, userID string, now time.Time) {
	at := now
	switch userID {
	case t.LandlordID:
		t.LandlordConfirmedAt = &at
	case t.TenantID:
		t.TenantConfirmedAt = &at
	}
}

func confirmedBy(t *domain.Tenancy, userID string) bool {
	switch userID {
	case t.LandlordID:
		return t.LandlordConfirmedAt != nil
	case t.TenantID:
		return t.TenantConfirmedAt != nil
	}
	return false
}

// Propose creates a tenancy proposal, or updates the live one for the same
// room and tenant in place. created reports whether a new row was inserted.
func (s *TenancyService) Propose(ctx context.Context, in ProposeInput) (t *domain.Tenancy, created bool, err error) {
	tr := otel.Tracer("services/TenancyService")
	ctx, span := tr.Start(ctx, "Propose",
		trace.WithAttributes(
			attribute.String("room.id", in.RoomID),
			attribute.String("user.id", in.ProposerID),
		),
	)
	defer span.End()

	fields := termsErrors(&in.MoveInDate, &in.DurationMonths)
	switch in.CounterpartyID {
	case "":
		fields["counterparty_id"] = "is required"
	case in.ProposerID:
		fields["counterparty_id"] = "must differ from the proposer"
	}
	if len(fields) > 0 {
		return nil, false, NewValidationError(fields)
	}

	room, err := repo.GetRoom(ctx, s.DB, in.RoomID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, ErrRoomNotFound
	}
	if err != nil {
		return nil, false, storage("load room", err)
	}

	var landlordID, tenantID string
	switch room.OwnerID {
	case in.ProposerID:
		landlordID, tenantID = in.ProposerID, in.CounterpartyID
	case in.CounterpartyID:
		landlordID, tenantID = in.CounterpartyID, in.ProposerID
	default:
		return nil, false, ErrForbidden
	}

	now := clock(s.Now)
	viewed, err := repo.HasCompletedViewing(ctx, s.DB, room.ID, tenantID, now)
	if err != nil {
		return nil, false, storage("check viewing", err)
	}
	if !viewed {
		return nil, false, ErrViewingRequired
	}

	for attempt := 0; attempt < 2; attempt++ {
		t, created, err = s.propose(ctx, in, landlordID, tenantID, now)
		if !errors.Is(err, errProposeRace) {
			break
		}
	}
	if err != nil {
		return nil, false, err
	}

	var batch notify.Batch
	batch.Add(notify.TenancyProposed, tenancyContext(t), in.CounterpartyID)
	batch.Send(ctx, s.Notifier)

	span.SetAttributes(attribute.String("tenancy.id", t.ID), attribute.Bool("created", created))
	return t, created, nil
}

func (s *TenancyService) propose(ctx context.Context, in ProposeInput, landlordID, tenantID string, now time.Time) (*domain.Tenancy, bool, error) {
	var (
		out     *domain.Tenancy
		created bool
	)
	err := inTx(ctx, s.DB, s.LockTimeout, "propose tenancy", func(tx *gorm.DB) error {
		existing, err := repo.LockLiveTenancy(ctx, tx, in.RoomID, tenantID)
		switch {
		case err == nil:
			if existing.Status != domain.TenancyProposed {
				return ErrNotEligible
			}
			applyProposal(existing, in.ProposerID, in.MoveInDate, in.DurationMonths, now)
			out = existing
			return repo.SaveTenancy(ctx, tx, existing)
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		t := &domain.Tenancy{
			ID:         uuid.NewString(),
			RoomID:     in.RoomID,
			LandlordID: landlordID,
			TenantID:   tenantID,
			CreatedAt:  now,
		}
		applyProposal(t, in.ProposerID, in.MoveInDate, in.DurationMonths, now)
		if err := repo.CreateTenancy(ctx, tx, t); err != nil {
			if repo.IsDuplicate(err) {
				return errProposeRace
			}
			return err
		}
		out, created = t, true
		return nil
	})
	return out, created, err
}

// Respond applies a party's answer to a proposal: confirm, propose_changes
// (with new terms) or reject.
func (s *TenancyService) Respond(ctx context.Context, tenancyID, actorID, action string, terms Terms) (*domain.Tenancy, error) {
	tr := otel.Tracer("services/TenancyService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("tenancy.id", tenancyID),
			attribute.String("user.id", actorID),
			attribute.String("action", action),
		),
	)
	defer span.End()

	switch action {
	case ActionConfirm, ActionProposeChanges, ActionReject:
	default:
		return nil, fieldError("action", "must be one of confirm, propose_changes, reject")
	}

	now := clock(s.Now)
	var (
		out   *domain.Tenancy
		batch notify.Batch
	)
	err := inTx(ctx, s.DB, s.LockTimeout, "respond to tenancy", func(tx *gorm.DB) error {
		t, err := repo.LockTenancy(ctx, tx, tenancyID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTenancyNotFound
		}
		if err != nil {
			return err
		}
		if !t.IsParty(actorID) {
			return ErrForbidden
		}
		out = t

		switch action {
		case ActionConfirm:
			if t.Status == domain.TenancyCancelled || t.Status == domain.TenancyEnded {
				return ErrNotEligible
			}
			if confirmedBy(t, actorID) {
				return nil
			}
			setConfirmed(t, actorID, now)
			if t.BothConfirmed() && t.Status == domain.TenancyProposed {
				t.Status = domain.TenancyConfirmed
				if !t.MoveInDate.After(domain.DateOf(now)) {
					t.Status = domain.TenancyActive
				}
				t.FillSchedule()
				batch.Add(notify.TenancyConfirmed, tenancyContext(t), t.Parties()...)
			}

		case ActionProposeChanges:
			if t.Status != domain.TenancyProposed {
				return ErrNotEligible
			}
			if fields := termsErrors(terms.MoveInDate, terms.DurationMonths); len(fields) > 0 {
				return NewValidationError(fields)
			}
			applyProposal(t, actorID, *terms.MoveInDate, *terms.DurationMonths, now)
			batch.Add(notify.TenancyProposed, tenancyContext(t), t.Counterparty(actorID))

		case ActionReject:
			switch t.Status {
			case domain.TenancyCancelled:
				return nil
			case domain.TenancyProposed:
				t.Status = domain.TenancyCancelled
			default:
				return ErrNotEligible
			}
		}
		return repo.SaveTenancy(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	batch.Send(ctx, s.Notifier)
	return out, nil
}

// Extend opens a request to change the tenancy's total duration.
func (s *TenancyService) Extend(ctx context.Context, tenancyID, actorID string, months int) (*domain.TenancyExtension, error) {
	tr := otel.Tracer("services/TenancyService")
	ctx, span := tr.Start(ctx, "Extend",
		trace.WithAttributes(
			attribute.String("tenancy.id", tenancyID),
			attribute.String("user.id", actorID),
			attribute.Int("months", months),
		),
	)
	defer span.End()

	if months < 1 || months > MaxDurationMonths {
		return nil, fieldError("proposed_duration_months", "must be between 1 and 120")
	}

	now := clock(s.Now)
	var (
		out   *domain.TenancyExtension
		batch notify.Batch
	)
	err := inTx(ctx, s.DB, s.LockTimeout, "extend tenancy", func(tx *gorm.DB) error {
		t, err := repo.LockTenancy(ctx, tx, tenancyID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTenancyNotFound
		}
		if err != nil {
			return err
		}
		if !t.IsParty(actorID) {
			return ErrForbidden
		}
		if t.Status == domain.TenancyEnded || t.Status == domain.TenancyCancelled {
			return ErrNotEligible
		}

		open, err := repo.HasOpenExtension(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrExtensionInProgress
		}

		e := &domain.TenancyExtension{
			ID:                     uuid.NewString(),
			TenancyID:              t.ID,
			ProposedByID:           actorID,
			ProposedDurationMonths: months,
			Status:                 domain.ExtensionProposed,
			CreatedAt:              now,
		}
		if err := repo.CreateExtension(ctx, tx, e); err != nil {
			if repo.IsDuplicate(err) {
				return ErrExtensionInProgress
			}
			return err
		}
		out = e

		kv := tenancyContext(t)
		kv["extension_id"] = e.ID
		batch.Add(notify.ExtensionProposed, kv, t.Counterparty(actorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	batch.Send(ctx, s.Notifier)
	return out, nil
}

// RespondToExtension accepts or rejects an open extension. Only the party
// that did not propose it may answer.
func (s *TenancyService) RespondToExtension(ctx context.Context, tenancyID, extensionID, actorID, action string) (*domain.Tenancy, *domain.TenancyExtension, error) {
	tr := otel.Tracer("services/TenancyService")
	ctx, span := tr.Start(ctx, "RespondToExtension",
		trace.WithAttributes(
			attribute.String("tenancy.id", tenancyID),
			attribute.String("extension.id", extensionID),
			attribute.String("user.id", actorID),
			attribute.String("action", action),
		),
	)
	defer span.End()

	var target domain.ExtensionStatus
	switch action {
	case ActionAccept:
		target = domain.ExtensionAccepted
	case ActionReject:
		target = domain.ExtensionRejected
	default:
		return nil, nil, fieldError("action", "must be one of accept, reject")
	}

	now := clock(s.Now)
	var (
		outT  *domain.Tenancy
		outE  *domain.TenancyExtension
		batch notify.Batch
	)
	err := inTx(ctx, s.DB, s.LockTimeout, "respond to extension", func(tx *gorm.DB) error {
		t, err := repo.LockTenancy(ctx, tx, tenancyID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTenancyNotFound
		}
		if err != nil {
			return err
		}
		if !t.IsParty(actorID) {
			return ErrForbidden
		}
		e, err := repo.LockExtension(ctx, tx, t.ID, extensionID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrExtensionNotFound
		}
		if err != nil {
			return err
		}
		if e.ProposedByID == actorID {
			return ErrForbidden
		}
		outT, outE = t, e

		if e.Status != domain.ExtensionProposed {
			if e.Status == target {
				return nil
			}
			return ErrNotEligible
		}

		kv := tenancyContext(t)
		kv["extension_id"] = e.ID

		if target == domain.ExtensionAccepted {
			if t.Status == domain.TenancyEnded || t.Status == domain.TenancyCancelled {
				return ErrNotEligible
			}
			t.DurationMonths = e.ProposedDurationMonths
			if t.ReviewOpenAt != nil && t.ReviewOpenAt.After(now) {
				t.ClearSchedule()
				t.FillSchedule()
			}
			if err := repo.SaveTenancy(ctx, tx, t); err != nil {
				return err
			}
			batch.Add(notify.ExtensionAccepted, kv, t.Parties()...)
		} else {
			batch.Add(notify.ExtensionRejected, kv, e.ProposedByID)
		}

		e.Status = target
		e.RespondedAt = &now
		return repo.SaveExtension(ctx, tx, e)
	})
	if err != nil {
		return nil, nil, err
	}
	batch.Send(ctx, s.Notifier)
	return outT, outE, nil
}

// ConfirmStillLiving records that actorID confirms the tenancy is still
// occupied. Once both parties confirm, the combined stamp is set. Repeated
// calls are no-ops.
func (s *TenancyService) ConfirmStillLiving(ctx context.Context, tenancyID, actorID string) (*domain.Tenancy, error) {
	tr := otel.Tracer("services/TenancyService")
	ctx, span := tr.Start(ctx, "ConfirmStillLiving",
		trace.WithAttributes(
			attribute.String("tenancy.id", tenancyID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	now := clock(s.Now)
	var out *domain.Tenancy
	err := inTx(ctx, s.DB, s.LockTimeout, "confirm still living", func(tx *gorm.DB) error {
		t, err := repo.LockTenancy(ctx, tx, tenancyID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTenancyNotFound
		}
		if err != nil {
			return err
		}
		if !t.IsParty(actorID) {
			return ErrForbidden
		}
		if t.Status != domain.TenancyActive {
			return ErrNotEligible
		}
		if t.StillLivingCheckAt == nil || t.StillLivingCheckAt.After(now) {
			return ErrTooEarly
		}
		out = t

		changed := false
		at := now
		if actorID == t.LandlordID && t.StillLivingLandlordConfirmedAt == nil {
			t.StillLivingLandlordConfirmedAt = &at
			changed = true
		}
		if actorID == t.TenantID && t.StillLivingTenantConfirmedAt == nil {
			t.StillLivingTenantConfirmedAt = &at
			changed = true
		}
		if t.StillLivingConfirmedAt == nil && t.StillLivingLandlordConfirmedAt != nil && t.StillLivingTenantConfirmedAt != nil {
			t.StillLivingConfirmedAt = &at
			changed = true
		}
		if !changed {
			return nil
		}
		return repo.SaveTenancy(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TenancyDetail is a tenancy together with its extension history.
type TenancyDetail struct {
	domain.Tenancy
	Extensions []domain.TenancyExtension `json:"extensions"`
}

// Get returns a tenancy visible to actorID.
func (s *TenancyService) Get(ctx context.Context, tenancyID, actorID string) (*TenancyDetail, error) {
	tr := otel.Tracer("services/TenancyService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("tenancy.id", tenancyID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	t, err := repo.GetTenancy(ctx, s.DB, tenancyID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTenancyNotFound
	}
	if err != nil {
		return nil, storage("load tenancy", err)
	}
	if !t.IsParty(actorID) {
		return nil, ErrForbidden
	}
	ext, err := repo.ListExtensions(ctx, s.DB, t.ID)
	if err != nil {
		return nil, storage("list extensions", err)
	}
	if ext == nil {
		ext = []domain.TenancyExtension{}
	}
	return &TenancyDetail{Tenancy: *t, Extensions: ext}, nil
}

// ListForUser returns a page of the tenancies userID is party to.
func (s *TenancyService) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Tenancy, int64, error) {
	tr := otel.Tracer("services/TenancyService")
	ctx, span := tr.Start(ctx, "ListForUser",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	w := utils.NewWindow(page, pageSize)
	total, err := repo.CountTenanciesForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, storage("count tenancies", err)
	}
	if total == 0 {
		return []domain.Tenancy{}, 0, nil
	}
	items, err := repo.ListTenanciesPage(ctx, s.DB, userID, w.Offset(), w.PageSize)
	return items, total, storage("list tenancies", err)
}

// Stats returns how many tenancies userID is party to and the latest update
// time among them, used as a cache validator for ListForUser.
func (s *TenancyService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, latest, err := repo.TenanciesStats(ctx, s.DB, userID)
	return n, latest, storage("tenancy stats", err)
}
