// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leaklook/leaklook/internal/clock/system"
	"github.com/leaklook/leaklook/internal/config"
	"github.com/leaklook/leaklook/internal/engine"
	"github.com/leaklook/leaklook/internal/feed"
	"github.com/leaklook/leaklook/internal/id/uuid"
	"github.com/leaklook/leaklook/internal/logging"
	"github.com/leaklook/leaklook/internal/notify"
	pubsubnotify "github.com/leaklook/leaklook/internal/notify/pubsub"
	"github.com/leaklook/leaklook/internal/parser"
	"github.com/leaklook/leaklook/internal/progress"
	"github.com/leaklook/leaklook/internal/progress/sinks"
	"github.com/leaklook/leaklook/internal/source"
	"github.com/leaklook/leaklook/internal/store"
	memstore "github.com/leaklook/leaklook/internal/store/memory"
	pgstore "github.com/leaklook/leaklook/internal/store/postgres"
)

// App holds the shared services built from configuration: logger, store,
// notifier, progress hub, and the ingestion engine. It is initialized once
// at startup and handed to the commands that need it.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    store.Store
	notifier feed.Notifier
	hub      *progress.Hub
	registry *prometheus.Registry
	engine   *engine.Engine

	closeNotifier func() error
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the canonical store.
func (a *App) Store() store.Store { return a.store }

// Engine returns the ingestion engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Registry returns the Prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// New builds the service graph from configuration. It fails fast when any
// backend cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	switch cfg.Store.Provider {
	case config.StorePostgres:
		logger.Info("connecting to postgres store")
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.Store.DSN,
			MaxConns:        int32(cfg.Store.MaxConns),
			MinConns:        int32(cfg.Store.MinConns),
			MaxConnLifetime: cfg.ConnLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.store = pg
	case config.StoreMemory:
		logger.Info("using in-memory store, records are not persisted")
		a.store = memstore.New()
	default:
		return nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}

	switch cfg.Notifier.Provider {
	case config.NotifierPubSub:
		logger.Info("connecting pubsub notifier",
			zap.String("topic", cfg.Notifier.TopicName),
		)
		ps, err := pubsubnotify.New(ctx, cfg.Notifier.ProjectID, cfg.Notifier.TopicName)
		if err != nil {
			a.store.Close()
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.notifier = ps
		a.closeNotifier = ps.Close
	case config.NotifierLog:
		a.notifier = notify.NewLogNotifier(logger.Named("notify"))
	case config.NotifierNone:
		a.notifier = nil
	default:
		a.store.Close()
		return nil, fmt.Errorf("unknown notifier provider: %s", cfg.Notifier.Provider)
	}

	a.registry = prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	docs, err := source.NewFS(cfg.Ingest.StagingDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open staging dir: %w", err)
	}

	a.engine = engine.New(
		parser.NewRegistry(),
		docs,
		a.store,
		a.notifier,
		system.New(),
		uuid.New(),
		a.hub,
		engine.Config{
			Concurrency:  cfg.Ingest.Concurrency,
			ParseTimeout: cfg.ParseTimeout(),
		},
		logger.Named("engine"),
	)

	return a, nil
}

// Close shuts the services down in reverse dependency order.
func (a *App) Close() {
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		cancel()
	}
	if a.closeNotifier != nil {
		if err := a.closeNotifier(); err != nil {
			a.logger.Warn("notifier close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}
