// Package app builds and owns the long-lived services a crawl depends on:
// record mirrors, the notifier, the artifact uploader, the progress hub and
// the optional status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/api"
	"github.com/JakeFAU/autoplay-crawler/internal/clock/system"
	"github.com/JakeFAU/autoplay-crawler/internal/config"
	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	csvexport "github.com/JakeFAU/autoplay-crawler/internal/export/csv"
	"github.com/JakeFAU/autoplay-crawler/internal/id/uuid"
	"github.com/JakeFAU/autoplay-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/autoplay-crawler/internal/progress/sinks"
	"github.com/JakeFAU/autoplay-crawler/internal/publisher"
	gcppublisher "github.com/JakeFAU/autoplay-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/autoplay-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/autoplay-crawler/internal/storage/gcs"
	pgstore "github.com/JakeFAU/autoplay-crawler/internal/storage/postgres"
)

// ShutdownGrace bounds how long the status server may take to drain.
const ShutdownGrace = 5 * time.Second

// App contains the crawl's shared dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	status   *api.StatusTracker
	hub      *progress.Hub

	pool      *pgxpool.Pool
	publisher *gcppublisher.Publisher
	blobs     *gcsstorage.BlobStore

	sinks    []crawler.RecordSink
	uploader crawler.ArtifactUploader
}

// Build connects every configured backend. A backend that is configured but
// unreachable fails the build, so a bad setting surfaces before the browser
// starts rather than after a long crawl.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		status:   api.NewStatusTracker(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	steps := []func(context.Context) error{
		a.setupDatabase,
		a.setupPublisher,
		a.setupStorage,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			if closeErr := a.Close(ctx); closeErr != nil {
				logger.Warn("cleanup after failed build", zap.Error(closeErr))
			}
			return nil, err
		}
	}
	if err := a.setupProgress(ctx); err != nil {
		if closeErr := a.Close(ctx); closeErr != nil {
			logger.Warn("cleanup after failed build", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no db.dsn configured, postgres mirror disabled")
		return nil
	}
	pool, err := pgstore.Connect(ctx, a.cfg.PostgresSettings())
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool

	records, err := pgstore.NewRecordStoreWithPool(pool, a.cfg.DB.Table)
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	if err := records.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("record store schema: %w", err)
	}
	a.sinks = append(a.sinks, records)
	a.logger.Info("postgres record mirror enabled", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("no pubsub topic configured, notifications disabled")
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub init failed: %w", err)
	}
	a.publisher = pub
	notifier, err := publisher.NewNotifier(pub, a.cfg.PubSub.TopicName, a.logger.Named("notifier"))
	if err != nil {
		return fmt.Errorf("notifier init failed: %w", err)
	}
	a.sinks = append(a.sinks, notifier)
	a.logger.Info("pubsub notifications enabled",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	if a.cfg.Storage.GCSBucket == "" {
		a.logger.Debug("no storage.gcs_bucket configured, artifact upload disabled")
		return nil
	}
	blobs, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket}, a.logger)
	if err != nil {
		return fmt.Errorf("gcs init failed: %w", err)
	}
	a.blobs = blobs
	uploader, err := storage.NewUploader(blobs, a.cfg.Storage.Prefix, a.logger.Named("uploader"))
	if err != nil {
		return fmt.Errorf("uploader init failed: %w", err)
	}
	a.uploader = uploader
	a.logger.Info("artifact upload enabled",
		zap.String("bucket", a.cfg.Storage.GCSBucket),
		zap.String("prefix", a.cfg.Storage.Prefix),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		a.status,
	}
	if a.pool != nil {
		sessions, err := pgstore.NewSessionStoreWithPool(a.pool, a.cfg.DB.SessionTable)
		if err != nil {
			return fmt.Errorf("session store init failed: %w", err)
		}
		if err := sessions.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("session store schema: %w", err)
		}
		sinkList = append(sinkList, sessions)
	}
	a.hub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}, sinkList...)
	a.logger.Debug("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

// Components returns the engine collaborators around the per-run session,
// store and enricher.
func (a *App) Components(session crawler.Session, store crawler.ResultStore, enricher crawler.Enricher) crawler.Components {
	c := crawler.Components{
		Session:  session,
		Store:    store,
		Enricher: enricher,
		Sinks:    a.sinks,
		Exporter: csvexport.New(a.logger.Named("csv")),
		Clock:    system.New(),
		IDs:      uuid.New(),
	}
	if a.uploader != nil {
		c.Uploader = a.uploader
	}
	if a.hub != nil {
		c.Progress = a.hub
	}
	return c
}

// StatusServer returns the HTTP server for server.addr, or nil when the
// status server is disabled.
func (a *App) StatusServer(records api.RecordsSource) *http.Server {
	if a.cfg.Server.Addr == "" {
		return nil
	}
	srv := api.NewServer(records, a.status, a.registry, a.logger)
	return &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Registry exposes the metrics registry served on /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Status exposes the progress snapshot tracker.
func (a *App) Status() *api.StatusTracker {
	return a.status
}

// RecordSinks lists the configured record mirrors.
func (a *App) RecordSinks() []crawler.RecordSink {
	return a.sinks
}

// Close flushes progress and releases backends. The hub closes before the
// pool so the final session row is written.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub: %w", err))
		}
		a.hub = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub: %w", err))
		}
		a.publisher = nil
	}
	if a.blobs != nil {
		if err := a.blobs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs: %w", err))
		}
		a.blobs = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}
