// Package app builds and holds the long-lived services behind a loader run,
// acting as the dependency injection container for the CLI and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/govcontracts-loader/internal/clock/system"
	"github.com/JakeFAU/govcontracts-loader/internal/config"
	"github.com/JakeFAU/govcontracts-loader/internal/delivery"
	"github.com/JakeFAU/govcontracts-loader/internal/fetcher/usaspending"
	"github.com/JakeFAU/govcontracts-loader/internal/id/uuid"
	"github.com/JakeFAU/govcontracts-loader/internal/logging"
	"github.com/JakeFAU/govcontracts-loader/internal/metrics"
	"github.com/JakeFAU/govcontracts-loader/internal/pipeline"
	"github.com/JakeFAU/govcontracts-loader/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/govcontracts-loader/internal/publisher/pubsub"
	snspublisher "github.com/JakeFAU/govcontracts-loader/internal/publisher/sns"
	"github.com/JakeFAU/govcontracts-loader/internal/report"
	"github.com/JakeFAU/govcontracts-loader/internal/storage/gcs"
	"github.com/JakeFAU/govcontracts-loader/internal/storage/local"
	"github.com/JakeFAU/govcontracts-loader/internal/telemetry"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse/bigquery"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse/clickhouse"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse/postgres"
)

// Options overrides pieces of the default wiring.
type Options struct {
	// Out receives the progress lines. Defaults to os.Stdout.
	Out io.Writer
	// Drivers replaces DefaultDrivers.
	Drivers warehouse.Registry
	// Publisher replaces the one selected by notify.provider.
	Publisher publisher.Publisher
	// Fetcher replaces the USAspending fetcher.
	Fetcher pipeline.Fetcher
}

// App holds all the shared, long-lived services for the loader.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	pipeline  *pipeline.Pipeline
	publisher publisher.Publisher
	closers   []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// DefaultDrivers maps connection profile drivers to their loaders.
func DefaultDrivers() warehouse.Registry {
	return warehouse.Registry{
		postgres.Driver:   postgres.Open,
		clickhouse.Driver: clickhouse.Open,
		bigquery.Driver:   bigquery.Open,
	}
}

// NewApp creates the services for cfg. Any service that fails to start
// releases the ones already started.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Drivers == nil {
		opts.Drivers = DefaultDrivers()
	}
	a := &App{cfg: cfg, logger: logger}

	if err := a.build(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("target", cfg.Target().String()),
		zap.Bool("warehouse_enabled", cfg.Warehouse.Enabled),
		zap.String("notify", cfg.Notify.Provider),
	)
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, closer{name: "tracer", fn: tp.Shutdown})

	clock := system.New()
	fetcher := opts.Fetcher
	if fetcher == nil {
		f, err := usaspending.New(a.cfg.FetcherConfig(), clock, a.logger.Named("fetcher"))
		if err != nil {
			return fmt.Errorf("init fetcher: %w", err)
		}
		fetcher = f
	}

	artifact, err := local.New(local.Config{Path: a.cfg.Artifact.Path})
	if err != nil {
		return fmt.Errorf("init artifact writer: %w", err)
	}

	printer := report.New(opts.Out)
	deliveryOpts := []delivery.Option{delivery.WithObserver(printer)}
	if a.cfg.Artifact.GCSBucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs", fn: func(context.Context) error { return client.Close() }})
		mirror, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Artifact.GCSBucket, Prefix: a.cfg.Artifact.GCSPrefix})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		deliveryOpts = append(deliveryOpts, delivery.WithMirror(mirror))
	}

	var connector delivery.Connector
	if a.cfg.Warehouse.Enabled {
		connector = warehouse.Connector{
			ConnectionsFile: a.cfg.Warehouse.ConnectionsFile,
			Profile:         a.cfg.Warehouse.Profile,
			Drivers:         opts.Drivers,
		}
	}
	deliverer, err := delivery.New(a.cfg.DeliveryConfig(), artifact, connector, a.logger.Named("delivery"), deliveryOpts...)
	if err != nil {
		return fmt.Errorf("init delivery: %w", err)
	}

	a.publisher = opts.Publisher
	if a.publisher == nil {
		if a.publisher, err = a.newPublisher(ctx); err != nil {
			return err
		}
	}

	a.pipeline, err = pipeline.New(a.cfg.PipelineConfig(), fetcher, deliverer, clock, uuid.New(),
		pipeline.WithProgress(printer),
		pipeline.WithPublisher(a.publisher),
		pipeline.WithLogger(a.logger.Named("pipeline")),
	)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	return nil
}

func (a *App) newPublisher(ctx context.Context) (publisher.Publisher, error) {
	switch a.cfg.Notify.Provider {
	case config.NotifyPubSub:
		a.logger.Info("using pubsub notifier", zap.String("topic", a.cfg.Notify.Topic))
		p, err := pubsubpublisher.Dial(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.closers = append(a.closers, closer{name: "pubsub", fn: func(context.Context) error { return p.Close() }})
		return p, nil
	case config.NotifySNS:
		a.logger.Info("using sns notifier", zap.String("topic_arn", a.cfg.Notify.SNSTopicARN))
		p, err := snspublisher.Dial(ctx, a.cfg.Notify.Region, a.cfg.Notify.SNSTopicARN)
		if err != nil {
			return nil, fmt.Errorf("init sns notifier: %w", err)
		}
		return p, nil
	default:
		return publisher.Nop{}, nil
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Run executes one loader run and pushes metrics when a Pushgateway is configured.
func (a *App) Run(ctx context.Context) (pipeline.Summary, error) {
	summary, err := a.pipeline.Run(ctx)
	logger := logging.ForRun(a.logger, summary.RunID)
	logger.Info("run complete",
		zap.Int("rows", summary.Rows),
		zap.Int("failed_keywords", summary.FailedKeywords()),
		zap.Bool("empty", summary.Empty),
	)

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if perr := metrics.Push(pushCtx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.JobName); perr != nil {
		logger.Warn("metrics push failed", zap.Error(perr))
	}
	return summary, err
}

// Close shuts down services in reverse start order.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error shutting down services", zap.Error(err))
	}
}
