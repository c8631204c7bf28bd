// Package sweep runs the periodic pass that moves date-driven tenancy state
// forward: status transitions, schedule backfill, still-living prompts,
// review nudges and review reveals, followed by rating recomputation for
// every subject whose visible reviews changed.
//
// Each tenancy is handled in its own transaction under a row lock, so a
// failure on one tenancy is logged and counted without aborting the pass.
// Every step re-checks its condition against the locked row; running the
// pass twice converges to the same state.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/notify"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
	"github.com/tbourn/go-tenancy-backend/internal/services"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Sweeper performs one sweep pass per Run call.
type Sweeper struct {
	DB          *gorm.DB
	Notifier    notify.Notifier
	Ratings     *services.RatingAggregator
	Now         func() time.Time
	LockTimeout time.Duration
	Workers     int
}

// Result summarizes a pass.
type Result struct {
	Tenancies   int           `json:"tenancies"`
	Activated   int           `json:"activated"`
	Ended       int           `json:"ended"`
	Backfilled  int           `json:"backfilled"`
	StillLiving int           `json:"still_living_confirmed"`
	Prompted    int           `json:"still_living_prompts"`
	Nudged      int           `json:"review_nudges"`
	Revealed    int           `json:"revealed"`
	Aggregates  int           `json:"aggregates"`
	PurgedKeys  int64         `json:"purged_idempotency_keys"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

// subject is a rated user in one review direction.
type subject struct {
	userID string
	role   domain.ReviewRole
}

// outcome is what one tenancy contributed to the pass.
type outcome struct {
	activated, ended, backfilled, stillLiving, nudged bool

	prompts  int
	revealed int
	users    []subject
	roomID   string
	batch    notify.Batch
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Run executes one pass over every non-cancelled tenancy. The returned error
// is non-nil only when the pass could not start or ctx was cancelled;
// per-tenancy failures are reported in Result.Failed.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer("sweep").Start(ctx, "Run")
	defer span.End()

	start := time.Now()
	now := s.now()

	ids, err := repo.ListSweepTenancyIDs(ctx, s.DB)
	if err != nil {
		return Result{}, fmt.Errorf("list tenancies: %w", err)
	}

	var (
		mu    sync.Mutex
		res   = Result{Tenancies: len(ids)}
		users = map[subject]struct{}{}
		rooms = map[string]struct{}{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Workers, 1))
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := s.sweepTenancy(gctx, id, now)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				sweepFailures.Inc()
				log.Error().Err(err).Str("component", "sweep").Str("tenancy_id", id).Msg("tenancy sweep failed")
				mu.Lock()
				res.Failed++
				mu.Unlock()
				return nil
			}
			out.batch.Send(gctx, s.Notifier)

			mu.Lock()
			defer mu.Unlock()
			res.merge(out)
			for _, u := range out.users {
				users[u] = struct{}{}
			}
			if out.roomID != "" {
				rooms[out.roomID] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	s.persistAggregates(ctx, users, rooms, &res)

	purged, err := repo.PurgeExpiredIdempotency(ctx, s.DB, now)
	if err != nil {
		log.Warn().Err(err).Str("component", "sweep").Msg("purge idempotency keys")
	}
	res.PurgedKeys = purged

	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("sweep.tenancies", res.Tenancies),
		attribute.Int("sweep.revealed", res.Revealed),
		attribute.Int("sweep.failed", res.Failed),
	)
	return res, nil
}

func (r *Result) merge(o outcome) {
	if o.activated {
		r.Activated++
	}
	if o.ended {
		r.Ended++
	}
	if o.backfilled {
		r.Backfilled++
	}
	if o.stillLiving {
		r.StillLiving++
	}
	if o.nudged {
		r.Nudged++
	}
	r.Prompted += o.prompts
	r.Revealed += o.revealed
}

// persistAggregates recomputes ratings for every subject touched by a reveal
// in this pass, plus any subject whose stored count lags its active reviews.
// The second set is read from the database, so an aggregate whose write failed
// here, or whose reveal committed in a pass that was then cancelled, is picked
// up by the next pass.
func (s *Sweeper) persistAggregates(ctx context.Context, users map[subject]struct{}, rooms map[string]struct{}, res *Result) {
	if s.Ratings == nil {
		return
	}
	if stale, err := repo.StaleUserRatings(ctx, s.DB); err != nil {
		log.Warn().Err(err).Str("component", "sweep").Msg("list stale user ratings")
	} else {
		for _, u := range stale {
			users[subject{userID: u.UserID, role: u.Role}] = struct{}{}
		}
	}
	if stale, err := repo.StaleRoomRatings(ctx, s.DB); err != nil {
		log.Warn().Err(err).Str("component", "sweep").Msg("list stale room ratings")
	} else {
		for _, id := range stale {
			rooms[id] = struct{}{}
		}
	}

	for u := range users {
		if _, err := s.Ratings.PersistUser(ctx, u.userID, u.role); err != nil {
			sweepFailures.Inc()
			res.Failed++
			log.Error().Err(err).Str("component", "sweep").Str("user_id", u.userID).Str("role", string(u.role)).Msg("persist user rating")
			continue
		}
		res.Aggregates++
	}
	for id := range rooms {
		if _, err := s.Ratings.PersistRoom(ctx, id); err != nil {
			sweepFailures.Inc()
			res.Failed++
			log.Error().Err(err).Str("component", "sweep").Str("room_id", id).Msg("persist room rating")
			continue
		}
		res.Aggregates++
	}
}

// sweepTenancy applies every step to one tenancy inside a single transaction.
// Notifications are returned in the outcome and sent by the caller after
// commit.
func (s *Sweeper) sweepTenancy(ctx context.Context, id string, now time.Time) (outcome, error) {
	var out outcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SetLockTimeout(tx, s.LockTimeout); err != nil {
			return err
		}
		t, err := repo.LockTenancy(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status == domain.TenancyCancelled {
			return nil
		}

		today := domain.DateOf(now)
		dirty := false

		if t.Status == domain.TenancyConfirmed && !t.MoveInDate.After(today) {
			t.Status = domain.TenancyActive
			out.activated, dirty = true, true
		}
		if (t.Status == domain.TenancyConfirmed || t.Status == domain.TenancyActive) && t.EndDate().Before(today) {
			t.Status = domain.TenancyEnded
			out.ended, dirty = true, true
		}

		switch t.Status {
		case domain.TenancyConfirmed, domain.TenancyActive, domain.TenancyEnded:
			if t.FillSchedule() {
				out.backfilled, dirty = true, true
			}
		}

		kv := map[string]string{"tenancy_id": t.ID, "room_id": t.RoomID}

		if s.stillLivingDue(t, now) {
			if t.StillLivingLandlordConfirmedAt != nil && t.StillLivingTenantConfirmedAt != nil {
				at := now
				t.StillLivingConfirmedAt = &at
				out.stillLiving, dirty = true, true
			} else {
				if t.StillLivingLandlordConfirmedAt == nil {
					out.batch.Add(notify.StillLivingCheck, kv, t.LandlordID)
					out.prompts++
				}
				if t.StillLivingTenantConfirmedAt == nil {
					out.batch.Add(notify.StillLivingCheck, kv, t.TenantID)
					out.prompts++
				}
			}
		}

		if dirty {
			if err := repo.SaveTenancy(ctx, tx, t); err != nil {
				return fmt.Errorf("save tenancy: %w", err)
			}
		}

		if t.ReviewOpenAt != nil && !t.ReviewOpenAt.After(now) &&
			(t.ReviewDeadlineAt == nil || t.ReviewDeadlineAt.After(now)) {
			roles, err := repo.ReviewRoles(ctx, tx, t.ID)
			if err != nil {
				return fmt.Errorf("review roles: %w", err)
			}
			if len(roles) < 2 {
				out.batch.Add(notify.ReviewAvailable, kv, t.Parties()...)
				out.nudged = true
			}
		}

		return s.reveal(ctx, tx, t, now, &out)
	})
	if err != nil {
		return outcome{}, err
	}
	return out, nil
}

func (s *Sweeper) stillLivingDue(t *domain.Tenancy, now time.Time) bool {
	if t.Status != domain.TenancyConfirmed && t.Status != domain.TenancyActive {
		return false
	}
	return t.StillLivingCheckAt != nil && !t.StillLivingCheckAt.After(now) && t.StillLivingConfirmedAt == nil
}

// reveal activates the tenancy's reviews whose reveal time has passed.
func (s *Sweeper) reveal(ctx context.Context, tx *gorm.DB, t *domain.Tenancy, now time.Time, out *outcome) error {
	ids, err := repo.ListDueReviewIDs(ctx, tx, t.ID, now)
	if err != nil {
		return fmt.Errorf("list due reviews: %w", err)
	}
	for _, rid := range ids {
		r, err := repo.LockReview(ctx, tx, rid)
		if err != nil {
			return fmt.Errorf("lock review %s: %w", rid, err)
		}
		if r.Active || r.RevealAt.After(now) {
			continue
		}
		flipped, err := repo.ActivateReview(ctx, tx, r.ID, now)
		if err != nil {
			return fmt.Errorf("activate review %s: %w", rid, err)
		}
		if !flipped {
			continue
		}
		out.revealed++
		out.users = append(out.users, subject{userID: r.RevieweeID, role: r.Role})
		if r.Role == domain.RoleTenantToLandlord {
			out.roomID = t.RoomID
		}
		out.batch.Add(notify.ReviewRevealed, map[string]string{
			"tenancy_id": t.ID,
			"review_id":  r.ID,
			"role":       string(r.Role),
		}, r.RevieweeID)
	}
	return nil
}
