package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/listing-autoposter/internal/automation"
	"github.com/maltedev/listing-autoposter/internal/browser"
	"github.com/maltedev/listing-autoposter/internal/config"
	"github.com/maltedev/listing-autoposter/internal/database"
	"github.com/maltedev/listing-autoposter/internal/events"
	"github.com/maltedev/listing-autoposter/internal/jobs"
	"github.com/maltedev/listing-autoposter/internal/orchestrator"
	"github.com/maltedev/listing-autoposter/internal/ratelimit"
	"github.com/maltedev/listing-autoposter/internal/runlog"
	"github.com/maltedev/listing-autoposter/internal/storage"
	"github.com/maltedev/listing-autoposter/internal/storage/pgstore"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	browser *browser.Manager
	runner  *orchestrator.Orchestrator
	redis   *redis.Client
	db      *database.DB
	relay   *database.Relay
	closers []func() error
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.NeedsRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, a.redis.Close)

		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.browser = browser.NewManager(cfg.BrowserOptions(), logger)
	a.closers = append(a.closers, a.browser.Close)

	pacer := ratelimit.NewPacer(cfg.Automation.StepDelayMin, cfg.Automation.StepDelayMax)
	craigslist := automation.NewCraigslist(cfg.CraigslistDriver(), pacer)
	facebook := automation.NewFacebook(cfg.FacebookDriver(), pacer)

	a.runner = orchestrator.New(a.store, a.browser, craigslist, facebook, cfg.Orchestrator(), logger)

	if cfg.Limits.Enabled {
		var history ratelimit.History = ratelimit.NewMemoryHistory()
		if cfg.Limits.Backend == config.BackendRedis {
			history = ratelimit.NewRedisHistory(a.redis, "autoposter:posts:")
		}
		a.runner.WithGuard(ratelimit.NewPostingGuard(cfg.PostingLimits(), history))
		logger.Info("posting limits enabled", "backend", cfg.Limits.Backend)
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.StorePostgres:
		db, err := database.New(ctx, a.cfg.DatabaseConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, func() error {
			db.Close()
			return nil
		})

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		publisher := events.NewPublisher(db, a.logger)
		a.store = pgstore.New(db, publisher, a.logger)
		a.relay = database.NewRelay(db, a.redis, a.logger, database.RelayConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
		})
	default:
		a.store = storage.NewFileStore(a.cfg.Store.File)
	}

	a.logger.Info("listing store ready", "backend", a.cfg.Store.Backend)
	return nil
}

// startRelay publishes outbox events until ctx is cancelled. It is a no-op
// for the file store.
func (a *app) startRelay(ctx context.Context) {
	if a.relay == nil {
		return
	}
	go func() {
		if err := a.relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("relay stopped with error", "error", err)
		}
	}()
}

// newLog returns the run log backend keyed by name.
func (a *app) newLog(name string) runlog.Log {
	if a.cfg.RunLog.Backend == config.BackendRedis {
		return runlog.NewRedisLog(a.redis, a.cfg.RunLog.KeyPrefix+name, int64(a.cfg.RunLog.MaxEntries), a.cfg.RunLog.TTL, a.logger)
	}
	return runlog.NewMemoryLog(a.cfg.RunLog.MaxEntries)
}

func (a *app) jobLogFactory() jobs.LogFactory {
	return func(jobID string) runlog.Log {
		return a.newLog("job:" + jobID)
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
