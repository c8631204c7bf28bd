// Package services – ReviewVault
//
// This file implements double-blind tenancy reviews. Each party writes at
// most one review per tenancy. A review stays hidden from the other party
// until both have written theirs or the review deadline passes, whichever
// comes first; the reveal sweep then marks it active and folds it into the
// rating aggregates.
//
// A review is either a checklist (review_flags, scored into a rating) or a
// free-text review (notes plus overall_rating), never both.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/notify"
	"github.com/tbourn/go-tenancy-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReviewVault stores reviews and enforces the submission gates.
type ReviewVault struct {
	DB          *gorm.DB
	Notifier    notify.Notifier
	Now         func() time.Time
	LockTimeout time.Duration
}

// ReviewInput is a review submission. Role is optional; when set it must
// match the role the reviewer holds in the tenancy.
type ReviewInput struct {
	Role          domain.ReviewRole
	ReviewFlags   []string
	Notes         *string
	OverallRating *int
}

// normalizeReview applies the flags-or-text contract and returns the rating,
// notes and de-duplicated flags to store.
func normalizeReview(role domain.ReviewRole, in ReviewInput) (rating int, notes string, flags []string, err error) {
	hasFlags := len(in.ReviewFlags) > 0
	hasNotes := in.Notes != nil && strings.TrimSpace(*in.Notes) != ""
	hasRating := in.OverallRating != nil

	fields := map[string]string{}
	if hasFlags {
		if hasNotes {
			fields["notes"] = "must be empty when review_flags are provided"
		}
		if hasRating {
			fields["overall_rating"] = "must be empty when review_flags are provided"
		}
		seen := make(map[string]struct{}, len(in.ReviewFlags))
		for _, f := range in.ReviewFlags {
			if !domain.KnownFlag(role, f) {
				fields["review_flags"] = fmt.Sprintf("unknown flag %q", f)
				break
			}
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			flags = append(flags, f)
		}
		if len(fields) > 0 {
			return 0, "", nil, NewValidationError(fields)
		}
		return domain.ScoreFlags(role, flags), "", flags, nil
	}

	switch {
	case !hasNotes && !hasRating:
		fields["review_flags"] = "provide review_flags, or notes with overall_rating"
	case !hasRating:
		fields["overall_rating"] = "is required with notes"
	case !hasNotes:
		fields["notes"] = "is required with overall_rating"
	}
	if hasRating && (*in.OverallRating < domain.MinRating || *in.OverallRating > domain.MaxRating) {
		fields["overall_rating"] = "must be between 1 and 5"
	}
	if len(fields) > 0 {
		return 0, "", nil, NewValidationError(fields)
	}
	return *in.OverallRating, *in.Notes, []string{}, nil
}

// Submit stores reviewerID's review of the other party of a tenancy.
func (s *ReviewVault) Submit(ctx context.Context, tenancyID, reviewerID string, in ReviewInput) (*domain.Review, error) {
	tr := otel.Tracer("services/ReviewVault")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("tenancy.id", tenancyID),
			attribute.String("user.id", reviewerID),
		),
	)
	defer span.End()

	now := clock(s.Now)
	var (
		out   *domain.Review
		batch notify.Batch
	)
	err := inTx(ctx, s.DB, s.LockTimeout, "submit review", func(tx *gorm.DB) error {
		t, err := repo.LockTenancy(ctx, tx, tenancyID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTenancyNotFound
		}
		if err != nil {
			return err
		}
		role, revieweeID, ok := domain.ReviewRoleFor(t, reviewerID)
		if !ok || (in.Role != "" && in.Role != role) {
			return ErrForbidden
		}
		switch t.Status {
		case domain.TenancyConfirmed, domain.TenancyActive, domain.TenancyEnded:
		default:
			return ErrNotEligible
		}
		if t.ReviewOpenAt == nil || t.ReviewOpenAt.After(now) {
			return ErrTooEarly
		}
		if t.ReviewDeadlineAt != nil && !t.ReviewDeadlineAt.After(now) {
			return ErrWindowExpired
		}
		if _, err := repo.LockReviewByRole(ctx, tx, t.ID, role); err == nil {
			return ErrAlreadySubmitted
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		rating, notes, flags, err := normalizeReview(role, in)
		if err != nil {
			return err
		}

		revealAt := t.ReviewOpenAt.Add(domain.ReviewWindow)
		if t.ReviewDeadlineAt != nil {
			revealAt = *t.ReviewDeadlineAt
		}

		counterpart, err := repo.LockReviewByRole(ctx, tx, t.ID, role.Counterpart())
		switch {
		case err == nil:
			// Both sides are in: reveal together now.
			revealAt = now
			if !counterpart.Active && counterpart.RevealAt.After(now) {
				if err := repo.SetReviewRevealAt(ctx, tx, []string{counterpart.ID}, now); err != nil {
					return err
				}
			}
		case errors.Is(err, repo.ErrNotFound):
			batch.Add(notify.ReviewCounterpartWritten, map[string]string{"tenancy_id": t.ID, "role": string(role)}, revieweeID)
		default:
			return err
		}

		tid := t.ID
		r := &domain.Review{
			ID:            uuid.NewString(),
			TenancyID:     &tid,
			ReviewerID:    reviewerID,
			RevieweeID:    revieweeID,
			Role:          role,
			OverallRating: rating,
			ReviewFlags:   flags,
			Notes:         notes,
			RevealAt:      revealAt,
			SubmittedAt:   now,
		}
		if err := repo.CreateReview(ctx, tx, r); err != nil {
			if repo.IsDuplicate(err) {
				return ErrAlreadySubmitted
			}
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	batch.Send(ctx, s.Notifier)
	span.SetAttributes(attribute.String("review.id", out.ID))
	return out, nil
}

// SubmitForBooking rejects reviews attached to bookings; reviews are only
// written for tenancies.
func (s *ReviewVault) SubmitForBooking(ctx context.Context, bookingID, reviewerID string, _ ReviewInput) (*domain.Review, error) {
	_, span := otel.Tracer("services/ReviewVault").Start(ctx, "SubmitForBooking",
		trace.WithAttributes(
			attribute.String("booking.id", bookingID),
			attribute.String("user.id", reviewerID),
		),
	)
	defer span.End()
	return nil, ErrBookingReviewsDisabled
}

// ListVisible returns the tenancy reviews viewerID may read: every revealed
// review plus the viewer's own hidden one.
func (s *ReviewVault) ListVisible(ctx context.Context, tenancyID, viewerID string) ([]domain.Review, error) {
	tr := otel.Tracer("services/ReviewVault")
	ctx, span := tr.Start(ctx, "ListVisible",
		trace.WithAttributes(
			attribute.String("tenancy.id", tenancyID),
			attribute.String("user.id", viewerID),
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
	if !t.IsParty(viewerID) {
		return nil, ErrForbidden
	}

	all, err := repo.ListTenancyReviews(ctx, s.DB, t.ID)
	if err != nil {
		return nil, storage("list reviews", err)
	}
	now := clock(s.Now)
	out := make([]domain.Review, 0, len(all))
	for _, r := range all {
		if r.Active || !r.RevealAt.After(now) || r.ReviewerID == viewerID {
			out = append(out, r)
		}
	}
	return out, nil
}
