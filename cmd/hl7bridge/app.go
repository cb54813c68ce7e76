package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/config"
	"github.com/ehr/hl7bridge/internal/domain/conversion"
	"github.com/ehr/hl7bridge/internal/domain/transaction"
	"github.com/ehr/hl7bridge/internal/mapping/engine"
	"github.com/ehr/hl7bridge/internal/platform/cache"
	"github.com/ehr/hl7bridge/internal/platform/db"
	"github.com/ehr/hl7bridge/internal/platform/queue"
	"github.com/ehr/hl7bridge/internal/platform/webhook"
)

// newLogger builds the root logger: JSON to stdout, console output in
// development, level from LOG_LEVEL.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

// app holds the collaborators shared by serve and worker. Postgres and
// Redis are optional: without DATABASE_URL the stores live in memory, and
// without REDIS_URL there is no cache and no queue.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	redis       *redis.Client
	engine      *engine.Engine
	txs         *transaction.Service
	webhooks    *webhook.Manager
	conversions *conversion.Service
	queue       *queue.Queue
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var (
		txRepo       transaction.Repository = transaction.NewMemoryRepo()
		webhookStore webhook.Store          = webhook.NewMemoryStore()
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		txRepo = transaction.NewRepoPG(pool)
		webhookStore = webhook.NewPGStore(pool)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, transactions and webhooks are kept in memory")
	}

	// Left nil unless Redis is configured; a typed nil would enable the cache.
	var cmdable redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		cmdable = client
		a.queue = queue.New(client, queue.Config{Prefix: cfg.QueuePrefix, MaxAttempts: cfg.QueueMaxAttempts}, logger)
		logger.Info().Msg("connected to redis")
	}
	ttl, err := cfg.CacheTTLDuration()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = engine.New(engine.Options{
		Logger:          logger.With().Str("component", "engine").Logger(),
		SendingApp:      cfg.SendingApp,
		SendingFacility: cfg.SendingFacility,
		Strict:          cfg.StrictValidation,
	})
	a.txs = transaction.NewService(txRepo, logger)
	a.webhooks = webhook.NewManager(webhookStore,
		webhook.WithMaxRetries(cfg.WebhookRetries),
		webhook.WithLogger(logger.With().Str("component", "webhook").Logger()),
	)
	a.conversions = conversion.NewService(
		a.engine,
		cache.New(cmdable, cfg.QueuePrefix, ttl),
		a.txs,
		a.webhooks,
		conversion.Config{BatchConcurrency: cfg.BatchConcurrency, BatchMaxItems: cfg.BatchMaxItems},
		logger,
	)
	return a, nil
}

// checkers lists the readiness probes of the configured backends.
func (a *app) checkers() []checker {
	var cs []checker
	if a.pool != nil {
		cs = append(cs, db.Checker{Pool: a.pool})
	}
	if a.redis != nil {
		cs = append(cs, cache.Checker{Client: a.redis})
	}
	return cs
}

// consume runs the queue workers until ctx is done.
func (a *app) consume(ctx context.Context) error {
	if a.queue == nil {
		return fmt.Errorf("queue requires REDIS_URL")
	}
	a.logger.Info().Int("workers", a.cfg.QueueWorkers).Str("prefix", a.cfg.QueuePrefix).Msg("queue consumers starting")
	return a.queue.Consume(ctx, a.cfg.QueueWorkers, a.conversions.QueueHandler())
}

// Close waits for pending webhook deliveries, then releases connections.
func (a *app) Close() {
	if a.webhooks != nil {
		a.webhooks.Wait()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
