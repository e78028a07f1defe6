package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/motionquiz/internal/auth"
	"github.com/playperu/motionquiz/internal/config"
	"github.com/playperu/motionquiz/internal/database"
	"github.com/playperu/motionquiz/internal/evaluator"
	"github.com/playperu/motionquiz/internal/events"
	"github.com/playperu/motionquiz/internal/handler/health"
	"github.com/playperu/motionquiz/internal/hub"
	"github.com/playperu/motionquiz/internal/migrations"
	"github.com/playperu/motionquiz/internal/pubsub"
	"github.com/playperu/motionquiz/internal/scoring"
	"github.com/playperu/motionquiz/internal/server"
	"github.com/playperu/motionquiz/internal/session"
	"github.com/playperu/motionquiz/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.RunContext(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{"sqlite": dbChecker{db}}

	// --- Redis (optional) ---
	var hubOpts []hub.Option
	var sensors server.SensorCache
	var rooms server.RoomStates
	if cfg.RedisURL != "" {
		rdb, err := pubsub.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()

		rs := pubsub.NewRedis(rdb, logger, cfg.SensorCacheTTL)
		hubOpts = append(hubOpts, hub.WithBridge(rs), hub.WithPresenceStore(rs))
		sensors = rs
		rooms = rs
		checks["redis"] = rs
		logger.Info("connected to redis")
	} else {
		logger.Warn("REDIS_URL is empty, running as a single instance")
	}

	// --- RabbitMQ (optional) ---
	publisher, err := events.NewPublisher(cfg.AMQPURL, logger)
	if err != nil {
		return fmt.Errorf("starting event publisher: %w", err)
	}
	defer publisher.Close()
	if publisher.Enabled() {
		checks["amqp"] = publisher
		logger.Info("connected to rabbitmq", "exchange", events.ExchangeName)
	}

	// --- Session engine ---
	h := hub.New(cfg.InstanceID, logger, hubOpts...)
	sessions := session.NewManager(
		store.NewSQLite(db),
		evaluator.New(evaluator.Config{
			CorrectThreshold: cfg.CorrectThreshold,
			VoiceThreshold:   cfg.VoiceThreshold,
		}),
		scoring.New(scoring.DefaultTiers()),
		h,
		logger,
		session.Config{
			Countdown:         cfg.Countdown,
			ResultsInterval:   cfg.ResultsInterval,
			FinishedRetention: cfg.FinishedRetention,
		},
		session.WithNotifier(publisher),
	)
	defer sessions.Close()

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Sessions:        sessions,
		Hub:             h,
		Verifier:        auth.NewVerifier(cfg.JWTSecret),
		Sensors:         sensors,
		Rooms:           rooms,
		Health:          health.NewHandler(logger, checks).Routes(),
		SendQueueSize:   cfg.SendQueueSize,
		SmoothingFactor: cfg.SmoothingFactor,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr, "instance_id", h.InstanceID())
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error { return h.Run(gctx) })
	g.Go(func() error { return publisher.Run(gctx) })

	return g.Wait()
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }
