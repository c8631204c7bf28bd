// Command server runs the tenancy HTTP API together with the notification
// dispatcher and the periodic reveal sweep.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-tenancy-backend/internal/config"
	httpapi "github.com/tbourn/go-tenancy-backend/internal/http"
	"github.com/tbourn/go-tenancy-backend/internal/notify"
	"github.com/tbourn/go-tenancy-backend/internal/observability"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
	"github.com/tbourn/go-tenancy-backend/internal/services"
	"github.com/tbourn/go-tenancy-backend/internal/sweep"
	"github.com/tbourn/go-tenancy-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogging(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	sinks := []notify.Sink{&notify.InboxSink{DB: db}, notify.LogSink{}}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		sinks = append(sinks, notify.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic))
	}
	dispatcher := notify.NewDispatcher(notify.Options{
		QueueSize:    cfg.Notify.QueueSize,
		Workers:      cfg.Notify.Workers,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		RetryBackoff: cfg.Notify.RetryBackoff,
	}, sinks...)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, dispatcher)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	var runner *sweep.Runner
	if cfg.Sweep.Enabled {
		runner = &sweep.Runner{
			Sweeper: &sweep.Sweeper{
				DB:          db,
				Notifier:    dispatcher,
				Ratings:     &services.RatingAggregator{DB: db},
				LockTimeout: cfg.DB.LockTimeout,
				Workers:     cfg.Sweep.Workers,
			},
			Interval: cfg.Sweep.Interval,
		}
		if cfg.Sweep.RedisURL != "" {
			client, err := sweep.NewRedisClient(ctx, cfg.Sweep.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()
			runner.Locker = sweep.NewRedisLocker(client, sweep.DefaultLockKey, cfg.Sweep.LockTTL)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if runner != nil {
		g.Go(func() error { return runner.Start(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		var errs []error
		errs = append(errs, srv.Shutdown(sctx))
		errs = append(errs, dispatcher.Close(sctx))
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
		errs = append(errs, shutdownTracing(sctx))
		return errors.Join(errs...)
	})

	return g.Wait()
}
