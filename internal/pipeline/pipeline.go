// Package pipeline runs one load: fetch every keyword, merge, normalize and deliver.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/govcontracts-loader/internal/aggregate"
	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/delivery"
	"github.com/JakeFAU/govcontracts-loader/internal/metrics"
	"github.com/JakeFAU/govcontracts-loader/internal/normalize"
	"github.com/JakeFAU/govcontracts-loader/internal/publisher"
	"github.com/JakeFAU/govcontracts-loader/internal/telemetry"
)

// notifyTimeout bounds the run notification, which is sent even after ctx is cancelled.
const notifyTimeout = 10 * time.Second

// DefaultLimit is the per-keyword result cap used by a run.
const DefaultLimit = 200

// DefaultKeywords is the ordered search list. Earlier keywords win when the
// same award matches several of them.
var DefaultKeywords = []string{
	"data analytics",
	"artificial intelligence",
	"machine learning",
	"data warehouse",
	"data lake",
	"cloud computing",
	"big data",
	"data platform",
	"data engineering",
	"business intelligence",
	"Palantir",
	"database",
	"ETL",
	"data integration",
}

// Fetcher runs one keyword query.
type Fetcher interface {
	Fetch(ctx context.Context, keyword string, limit int) award.FetchResult
}

// Deliverer persists the normalized table.
type Deliverer interface {
	Deliver(ctx context.Context, table award.Table) delivery.Report
}

// Clock stamps run start and finish.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Progress receives human-facing progress as the run advances.
type Progress interface {
	Start(runID string, keywords []string)
	Fetching(keyword string)
	Fetched(stats KeywordStats)
	Aggregated(totalUnique int)
	Empty()
	Normalized(rows, cols int)
	Delivered(report delivery.Report)
	Finished(summary Summary)
}

// Config controls the keyword sweep.
type Config struct {
	Keywords    []string
	Limit       int
	NotifyTopic string
}

// KeywordStats is the per-keyword line of a Summary.
type KeywordStats struct {
	aggregate.BatchStats
	FailureKind award.FailureKind `json:"failure_kind,omitempty"`
	Failure     string            `json:"failure,omitempty"`
}

// Failed reports whether the keyword query failed.
func (k KeywordStats) Failed() bool {
	return k.FailureKind != ""
}

// Summary describes a finished run.
type Summary struct {
	RunID        string           `json:"run_id"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Keywords     []KeywordStats   `json:"keywords"`
	TotalFetched int              `json:"total_fetched"`
	TotalUnique  int              `json:"total_unique"`
	Rows         int              `json:"rows"`
	Normalize    normalize.Stats  `json:"normalize"`
	Empty        bool             `json:"empty"`
	Delivery     *delivery.Report `json:"delivery,omitempty"`
}

// FailedKeywords returns how many keyword queries failed.
func (s Summary) FailedKeywords() int {
	n := 0
	for _, k := range s.Keywords {
		if k.Failed() {
			n++
		}
	}
	return n
}

// Pipeline wires the stages of a run together.
type Pipeline struct {
	cfg       Config
	fetcher   Fetcher
	deliverer Deliverer
	clock     Clock
	ids       IDGenerator
	progress  Progress
	publisher publisher.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithProgress reports progress to p.
func WithProgress(p Progress) Option {
	return func(pl *Pipeline) { pl.progress = p }
}

// WithPublisher announces each finished run on cfg.NotifyTopic.
func WithPublisher(p publisher.Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// New builds a Pipeline. Empty keyword lists and non-positive limits fall back to the defaults.
func New(cfg Config, fetcher Fetcher, deliverer Deliverer, clock Clock, ids IDGenerator, opts ...Option) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = append([]string(nil), DefaultKeywords...)
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	p := &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		deliverer: deliverer,
		clock:     clock,
		ids:       ids,
		progress:  nopProgress{},
		publisher: publisher.Nop{},
		logger:    zap.NewNop(),
		tracer:    telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes one load. Fetch and delivery failures are recorded in the
// Summary and never returned; the error is non-nil only when the run could not
// start or ctx was cancelled part-way, in which case the partial Summary is
// still returned.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	runID, err := p.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := Summary{RunID: runID, StartedAt: p.clock.Now()}
	logger := p.logger.With(zap.String("run_id", runID))

	ctx, span := p.tracer.Start(ctx, "govcontracts.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	p.progress.Start(runID, p.cfg.Keywords)
	logger.Info("run started", zap.Int("keywords", len(p.cfg.Keywords)), zap.Int("limit", p.cfg.Limit))

	agg := aggregate.New()
	for _, keyword := range p.cfg.Keywords {
		if err := ctx.Err(); err != nil {
			return p.finish(ctx, logger, summary), fmt.Errorf("run cancelled: %w", err)
		}
		stats := p.fetchKeyword(ctx, agg, keyword)
		summary.Keywords = append(summary.Keywords, stats)
		summary.TotalFetched += stats.Fetched
	}

	summary.TotalUnique = agg.Len()
	metrics.AddRecords("fetched", summary.TotalFetched)
	metrics.AddRecords("unique", summary.TotalUnique)
	p.progress.Aggregated(summary.TotalUnique)
	logger.Info("keywords aggregated",
		zap.Int("fetched", summary.TotalFetched),
		zap.Int("unique", summary.TotalUnique),
		zap.Int("failed_keywords", summary.FailedKeywords()),
	)

	if summary.TotalUnique == 0 {
		summary.Empty = true
		p.progress.Empty()
		logger.Warn("no contracts found; nothing to deliver")
		return p.finish(ctx, logger, summary), nil
	}

	table, nstats := normalize.Normalize(agg.Awards())
	summary.Rows = table.Len()
	summary.Normalize = nstats
	metrics.AddRecords("rows", summary.Rows)
	rows, cols := table.Shape()
	p.progress.Normalized(rows, cols)
	if nstats.BadDates > 0 || nstats.Duplicates > 0 || nstats.MissingID > 0 {
		logger.Warn("normalization adjusted records",
			zap.Int("bad_dates", nstats.BadDates),
			zap.Int("duplicates", nstats.Duplicates),
			zap.Int("missing_id", nstats.MissingID),
		)
	}

	dctx, dspan := p.tracer.Start(delivery.ContextWithRunID(ctx, runID), "govcontracts.deliver")
	report := p.deliverer.Deliver(dctx, table)
	dspan.End()
	summary.Delivery = &report
	metrics.ObserveDelivery(deliveryOutcome(report))
	metrics.AddRecords("loaded", int(report.LoadedRows))
	p.progress.Delivered(report)

	return p.finish(ctx, logger, summary), nil
}

func (p *Pipeline) fetchKeyword(ctx context.Context, agg *aggregate.Aggregator, keyword string) KeywordStats {
	ctx, span := p.tracer.Start(ctx, "govcontracts.fetch", trace.WithAttributes(attribute.String("keyword", keyword)))
	defer span.End()

	p.progress.Fetching(keyword)
	res := p.fetcher.Fetch(ctx, keyword, p.cfg.Limit)
	stats := KeywordStats{BatchStats: agg.Add(keyword, res.Awards)}
	if res.Failed() {
		stats.FailureKind = res.Err.Kind
		stats.Failure = res.Err.Error()
		metrics.ObserveFetch(string(res.Err.Kind))
	} else {
		metrics.ObserveFetch("ok")
	}
	metrics.AddRecords("missing_id", stats.MissingID)
	metrics.AddRecords("duplicates", stats.Duplicates)
	span.SetAttributes(attribute.Int("fetched", stats.Fetched), attribute.Int("added", stats.Added))
	p.progress.Fetched(stats)
	return stats
}

func (p *Pipeline) finish(ctx context.Context, logger *zap.Logger, summary Summary) Summary {
	summary.FinishedAt = p.clock.Now()
	metrics.ObserveRun(summary.FinishedAt.Sub(summary.StartedAt))
	p.progress.Finished(summary)

	fields := []zap.Field{
		zap.Int("total_fetched", summary.TotalFetched),
		zap.Int("total_unique", summary.TotalUnique),
		zap.Int("rows", summary.Rows),
		zap.Bool("empty", summary.Empty),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if summary.Delivery != nil {
		fields = append(fields, zap.Bool("warehouse_loaded", summary.Delivery.WarehouseLoaded))
	}
	logger.Info("run finished", fields...)

	if p.cfg.NotifyTopic != "" {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		id, err := p.publisher.Publish(pubCtx, p.cfg.NotifyTopic, summary)
		if err != nil {
			logger.Warn("run notification failed", zap.String("topic", p.cfg.NotifyTopic), zap.Error(err))
		} else {
			logger.Debug("run notification published", zap.String("message_id", id))
		}
	}
	return summary
}

func deliveryOutcome(r delivery.Report) string {
	switch {
	case r.WarehouseLoaded && r.ArtifactWritten:
		return "loaded"
	case r.WarehouseLoaded:
		return "loaded_without_artifact"
	case r.Failure != nil && r.Failure.Stage == delivery.StageConnect:
		return "connect_failed"
	case r.Failure != nil && r.Failure.Stage == delivery.StageLoad:
		return "load_failed"
	case r.Failure != nil:
		return "artifact_failed"
	default:
		return "artifact_only"
	}
}

type nopProgress struct{}

func (nopProgress) Start(string, []string) {}
func (nopProgress) Fetching(string) {}
func (nopProgress) Fetched(KeywordStats) {}
func (nopProgress) Aggregated(int) {}
func (nopProgress) Empty() {}
func (nopProgress) Normalized(int, int) {}
func (nopProgress) Delivered(delivery.Report) {}
func (nopProgress) Finished(Summary) {}
