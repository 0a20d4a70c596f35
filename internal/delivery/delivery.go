// Package delivery writes the normalized table to the local artifact and then
// appends it to the warehouse.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/storage"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
)

// Stage identifies where delivery failed.
type Stage string

// Delivery stages that can fail.
const (
	StageArtifact Stage = "artifact"
	StageConnect  Stage = "connect"
	StageLoad     Stage = "load"
)

// DefaultStageName is the warehouse stage named in the manual recovery instruction.
const DefaultStageName = "CONTRACT_DATA_STAGE"

// Error is a failed delivery stage.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("delivery %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the stage and message.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Stage Stage  `json:"stage"`
		Error string `json:"error"`
	}{e.Stage, e.Err.Error()})
}

// Report is the outcome of one delivery.
type Report struct {
	WrittenRows     int    `json:"written_rows"`
	ArtifactPath    string `json:"artifact_path"`
	ArtifactURI     string `json:"artifact_uri,omitempty"`
	ArtifactWritten bool   `json:"artifact_written"`
	MirrorURI       string `json:"mirror_uri,omitempty"`
	Target          string `json:"target,omitempty"`
	WarehouseLoaded bool   `json:"warehouse_loaded"`
	LoadedRows      int64  `json:"loaded_rows"`
	Failure         *Error `json:"failure,omitempty"`
	StageName       string `json:"-"`
}

// RecoveryHint returns the manual upload instruction when the warehouse load
// did not happen but the artifact exists, and "" otherwise.
func (r Report) RecoveryHint() string {
	if r.WarehouseLoaded || !r.ArtifactWritten {
		return ""
	}
	stage := r.StageName
	if stage == "" {
		stage = DefaultStageName
	}
	return fmt.Sprintf("PUT file://%s @%s", r.ArtifactPath, stage)
}

// ArtifactWriter persists the table to a fixed local path.
type ArtifactWriter interface {
	Path() string
	Write(ctx context.Context, table award.Table) (string, error)
}

// Connector opens a warehouse connection for a target.
type Connector interface {
	Connect(ctx context.Context, target warehouse.Target) (warehouse.Loader, error)
}

// Mirror uploads a copy of the artifact.
type Mirror interface {
	storage.Provider
	ObjectPath(runID string) string
}

// Observer is told about delivery progress as it happens.
type Observer interface {
	ArtifactSaved(path string)
	Connecting(target warehouse.Target)
	Loading(target warehouse.Target)
}

// Config controls the warehouse half of delivery.
type Config struct {
	Target           warehouse.Target
	WarehouseEnabled bool
	ConnectTimeout   time.Duration
	StageName        string
}

// Deliverer writes the artifact and loads the warehouse.
type Deliverer struct {
	cfg       Config
	artifact  ArtifactWriter
	connector Connector
	mirror    Mirror
	observer  Observer
	logger    *zap.Logger
}

// Option customises a Deliverer.
type Option func(*Deliverer)

// WithMirror uploads the artifact after it is written.
func WithMirror(m Mirror) Option {
	return func(d *Deliverer) { d.mirror = m }
}

// WithObserver reports progress to o.
func WithObserver(o Observer) Option {
	return func(d *Deliverer) { d.observer = o }
}

// New builds a Deliverer. connector may be nil when the warehouse is disabled.
func New(cfg Config, artifact ArtifactWriter, connector Connector, logger *zap.Logger, opts ...Option) (*Deliverer, error) {
	if artifact == nil {
		return nil, fmt.Errorf("artifact writer is required")
	}
	if cfg.WarehouseEnabled {
		if connector == nil {
			return nil, fmt.Errorf("warehouse connector is required when the warehouse is enabled")
		}
		if err := cfg.Target.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.StageName == "" {
		cfg.StageName = DefaultStageName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deliverer{cfg: cfg, artifact: artifact, connector: connector, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

type runIDKey struct{}

// ContextWithRunID tags ctx with the run ID used to name mirrored artifacts.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Deliver writes the artifact unconditionally and then attempts the warehouse
// load. Failures are reported in the returned Report, never as an error, and
// the warehouse connection is closed on every path.
func (d *Deliverer) Deliver(ctx context.Context, table award.Table) Report {
	report := Report{
		ArtifactPath: d.artifact.Path(),
		StageName:    d.cfg.StageName,
	}
	if d.cfg.WarehouseEnabled {
		report.Target = d.cfg.Target.String()
	}

	d.writeArtifact(ctx, table, &report)

	if !d.cfg.WarehouseEnabled {
		d.logger.Info("warehouse load disabled; artifact only", zap.String("path", report.ArtifactPath))
		return report
	}
	d.load(ctx, table, &report)
	return report
}

func (d *Deliverer) writeArtifact(ctx context.Context, table award.Table, report *Report) {
	uri, err := d.artifact.Write(ctx, table)
	if err != nil {
		report.Failure = &Error{Stage: StageArtifact, Err: err}
		d.logger.Error("artifact write failed", zap.String("path", report.ArtifactPath), zap.Error(err))
		return
	}
	report.ArtifactURI = uri
	report.ArtifactWritten = true
	report.WrittenRows = table.Len()
	d.logger.Info("artifact written", zap.String("uri", uri), zap.Int("rows", table.Len()))
	if d.observer != nil {
		d.observer.ArtifactSaved(report.ArtifactPath)
	}

	if d.mirror != nil {
		report.MirrorURI = d.upload(ctx, report.ArtifactPath)
	}
}

func (d *Deliverer) upload(ctx context.Context, path string) string {
	name := runIDFrom(ctx)
	if name == "" {
		name = trimExt(filepath.Base(path))
	}
	f, err := os.Open(path) // #nosec G304 -- path is the configured artifact location.
	if err != nil {
		d.logger.Warn("artifact mirror skipped", zap.String("path", path), zap.Error(err))
		return ""
	}
	defer f.Close()

	uri, err := d.mirror.PutObject(ctx, d.mirror.ObjectPath(name), "text/csv", f)
	if err != nil {
		d.logger.Warn("artifact mirror upload failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	d.logger.Info("artifact mirrored", zap.String("uri", uri))
	return uri
}

func (d *Deliverer) load(ctx context.Context, table award.Table, report *Report) {
	target := d.cfg.Target
	if d.observer != nil {
		d.observer.Connecting(target)
	}

	connectCtx := ctx
	if d.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, d.cfg.ConnectTimeout)
		defer cancel()
	}
	loader, err := d.connector.Connect(connectCtx, target)
	if err != nil {
		report.Failure = &Error{Stage: StageConnect, Err: err}
		d.logger.Error("warehouse connect failed",
			zap.String("target", report.Target),
			zap.String("recovery", report.RecoveryHint()),
			zap.Error(err),
		)
		return
	}
	defer func() {
		if cerr := loader.Close(); cerr != nil {
			d.logger.Warn("warehouse close failed", zap.String("target", report.Target), zap.Error(cerr))
		}
	}()

	if d.observer != nil {
		d.observer.Loading(target)
	}
	n, err := loader.Load(ctx, target, table)
	report.LoadedRows = n
	if err != nil {
		report.Failure = &Error{Stage: StageLoad, Err: err}
		d.logger.Error("warehouse load failed",
			zap.String("target", report.Target),
			zap.Int64("loaded_rows", n),
			zap.String("recovery", report.RecoveryHint()),
			zap.Error(err),
		)
		return
	}
	report.WarehouseLoaded = true
	d.logger.Info("warehouse load complete", zap.String("target", report.Target), zap.Int64("rows", n))
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
