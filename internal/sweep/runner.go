package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Locker hands out a cluster-wide lease so that one replica sweeps at a time.
// Acquire reports false when another holder owns the lease.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Runner schedules sweep passes. Passes never overlap: a tick that arrives
// while a pass is running is skipped.
type Runner struct {
	Sweeper  *Sweeper
	Interval time.Duration
	// Locker is optional; nil means single-replica operation.
	Locker Locker

	mu sync.Mutex
}

// ErrSkipped is returned by RunOnce when a pass was already in progress or
// the lease was held elsewhere.
var ErrSkipped = errors.New("sweep: pass skipped")

// Start runs a pass immediately, then one per Interval until ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	if r.Interval <= 0 {
		return errors.New("sweep: interval must be > 0")
	}
	log.Info().Str("component", "sweep").Dur("interval", r.Interval).Msg("sweep runner started")

	r.tick(ctx)
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "sweep").Msg("sweep runner stopped")
			return nil
		case <-t.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	res, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSkipped):
		log.Debug().Str("component", "sweep").Msg("sweep pass skipped")
	case err != nil:
		log.Error().Err(err).Str("component", "sweep").Msg("sweep pass failed")
	default:
		log.Info().
			Str("component", "sweep").
			Int("tenancies", res.Tenancies).
			Int("activated", res.Activated).
			Int("ended", res.Ended).
			Int("revealed", res.Revealed).
			Int("failed", res.Failed).
			Dur("duration", res.Duration).
			Msg("sweep pass complete")
	}
}

// RunOnce performs a single pass unless one is already running here or, when
// a Locker is set, on another replica.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	if !r.mu.TryLock() {
		sweepRuns.WithLabelValues("skipped").Inc()
		return Result{}, ErrSkipped
	}
	defer r.mu.Unlock()

	if r.Locker != nil {
		ok, err := r.Locker.Acquire(ctx)
		if err != nil {
			sweepRuns.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !ok {
			sweepRuns.WithLabelValues("skipped").Inc()
			return Result{}, ErrSkipped
		}
		defer func() {
			// Release on a fresh context so shutdown still frees the lease.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.Locker.Release(rctx); err != nil {
				log.Warn().Err(err).Str("component", "sweep").Msg("release sweep lease")
			}
		}()
	}

	res, err := r.Sweeper.Run(ctx)
	if err != nil {
		sweepRuns.WithLabelValues("error").Inc()
		return res, err
	}
	sweepRuns.WithLabelValues("ok").Inc()
	sweepDuration.Observe(res.Duration.Seconds())
	sweepRevealed.Add(float64(res.Revealed))
	return res, nil
}

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by SET NX PX on a single key.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// DefaultLockKey is the Redis key that holds the sweep lease.
const DefaultLockKey = "tenancy:sweep:lease"

// NewRedisLocker builds a lease on key with the given lifetime. The TTL must
// exceed the longest expected pass; an expired lease lets another replica in.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, token: uuid.NewString()}
}

// Acquire sets the lease if nobody holds it.
func (l *RedisLocker) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release drops the lease if this locker still holds it.
func (l *RedisLocker) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// NewRedisClient parses a redis:// URL and checks connectivity. An empty URL
// returns nil, nil.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
