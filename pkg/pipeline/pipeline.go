// Package pipeline runs a full reconciliation: ingest both exports, join
// them, write the intermediate CSVs, and load the result into the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/WilliamDuke02/databaseProject/pkg/context"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/events"
	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/ingest"
	"github.com/WilliamDuke02/databaseProject/pkg/keys"
	"github.com/WilliamDuke02/databaseProject/pkg/materialize"
	"github.com/WilliamDuke02/databaseProject/pkg/metrics"
	"github.com/WilliamDuke02/databaseProject/pkg/reconcile"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Options describes one run.
type Options struct {
	SourcePath      string
	DecoderPath     string
	SourceEncoding  ingest.Encoding
	DecoderEncoding ingest.Encoding
	// WorkDir receives merged_<source> and unmerged_<source>. Defaults to the
	// source file's directory.
	WorkDir string
	// Reset drops and recreates the schema before loading.
	Reset             bool
	KeepIntermediates bool
	RemoveInputs      bool
}

// Migrator is satisfied by *database.MigrationService.
type Migrator interface {
	Migrate(db database.DB) error
	Reset(db database.DB) error
}

type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

type Report struct {
	RunID        string                  `json:"run_id"`
	Status       Status                  `json:"status"`
	Source       string                  `json:"source"`
	Decoder      string                  `json:"decoder"`
	Reconcile    reconcile.Stats         `json:"reconcile"`
	Load         *materialize.LoadResult `json:"load,omitempty"`
	MergedFile   string                  `json:"merged_file,omitempty"`
	UnmergedFile string                  `json:"unmerged_file,omitempty"`
	StartedAt    time.Time               `json:"started_at"`
	Duration     time.Duration           `json:"duration"`
	Stages       []StageTiming           `json:"stages"`
	Error        string                  `json:"error,omitempty"`
}

func (r *Report) stage(name string, started time.Time) {
	r.Stages = append(r.Stages, StageTiming{Stage: name, Duration: time.Since(started)})
}

type Pipeline struct {
	db         database.DB
	migrator   Migrator
	reader     *ingest.Reader
	reconciler *reconcile.Reconciler
	loader     *materialize.Loader
	emitter    *events.Emitter
	logger     ectologger.Logger

	running sync.Mutex
}

type Option func(*Pipeline)

func WithEmitter(emitter *events.Emitter) Option {
	return func(p *Pipeline) {
		p.emitter = emitter
	}
}

func WithLoader(loader *materialize.Loader) Option {
	return func(p *Pipeline) {
		p.loader = loader
	}
}

func New(db database.DB, migrator Migrator, deriver keys.Deriver, logger ectologger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		db:         db,
		migrator:   migrator,
		reader:     ingest.NewReader(logger),
		reconciler: reconcile.New(deriver, logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.loader == nil {
		p.loader = materialize.NewLoader(db, logger)
	}
	if p.emitter == nil {
		p.emitter = events.NewEmitter(nil, logger)
	}
	return p
}

// Run executes one reconciliation. A missing source file is not an error:
// the report comes back with StatusSkipped. Only one run proceeds at a time;
// a concurrent call gets a 409.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	if !p.running.TryLock() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "a reconciliation run is already in progress")
	}
	defer p.running.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		Source:    opts.SourcePath,
		Decoder:   opts.DecoderPath,
		StartedAt: time.Now().UTC(),
	}
	ctx = appctx.SetRunID(ctx, report.RunID)

	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Run")
	defer span.End()

	logger := p.logger.WithContext(ctx).WithField("run_id", report.RunID)
	logger.WithFields(map[string]any{
		"source":  opts.SourcePath,
		"decoder": opts.DecoderPath,
		"reset":   opts.Reset,
	}).Info("starting reconciliation run")

	err := p.run(ctx, opts, report)

	report.Duration = time.Since(report.StartedAt)
	switch {
	case err != nil:
		report.Status = StatusFailed
		report.Error = err.Error()
		logger.WithError(err).Error("reconciliation run failed")
	case report.Status == StatusSkipped:
		logger.Warn("reconciliation run skipped")
	default:
		report.Status = StatusSuccess
		logger.WithFields(map[string]any{
			"merged_rows":   report.Reconcile.MergedRows,
			"unmerged_rows": report.Reconcile.UnmergedRows,
			"duration":      report.Duration.String(),
		}).Info("reconciliation run completed")
	}

	p.observe(report)
	p.emitter.EmitRunCompleted(ctx, report.RunID, string(report.Status), report)

	return report, err
}

func (p *Pipeline) run(ctx context.Context, opts Options, report *Report) error {
	started := time.Now()
	records, err := p.reader.ReadFile(ctx, opts.SourcePath, encodingOr(opts.SourceEncoding, ingest.EncodingUTF8))
	if err != nil {
		if ingest.IsSkippable(err) {
			report.Status = StatusSkipped
			report.Error = err.Error()
			return nil
		}
		return err
	}

	decoder, err := p.reader.ReadFile(ctx, opts.DecoderPath, encodingOr(opts.DecoderEncoding, ingest.EncodingLatin1))
	if err != nil {
		if !ingest.IsSkippable(err) {
			return err
		}
		p.logger.WithContext(ctx).WithError(err).Warn("decoder unavailable, every record will be unmerged")
		decoder = nil
	}
	report.stage("ingest", started)

	started = time.Now()
	result, err := p.reconciler.Reconcile(ctx, records, decoder)
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}
	merged, dropped := reconcile.Dedup(result.Merged, 0)
	result.Stats.Duplicates = dropped
	report.Reconcile = result.Stats
	report.stage("reconcile", started)

	started = time.Now()
	mergedPath, unmergedPath, err := writeIntermediates(opts, merged, result.Unmerged)
	if err != nil {
		return err
	}
	report.stage("write", started)

	cleanup := func() {
		if opts.KeepIntermediates {
			report.MergedFile, report.UnmergedFile = mergedPath, unmergedPath
			return
		}
		p.remove(ctx, mergedPath, unmergedPath)
	}

	started = time.Now()
	if opts.Reset {
		err = p.migrator.Reset(p.db)
	} else {
		err = p.migrator.Migrate(p.db)
	}
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to prepare schema: %w", err)
	}
	report.stage("migrate", started)

	started = time.Now()
	load, err := p.loader.Load(ctx, merged, result.Unmerged)
	cleanup()
	if err != nil {
		return err
	}
	report.Load = load
	report.stage("load", started)

	if opts.RemoveInputs {
		p.remove(ctx, opts.SourcePath, opts.DecoderPath)
	}
	return nil
}

func writeIntermediates(opts Options, merged, unmerged *frame.Frame) (string, string, error) {
	dir := opts.WorkDir
	if dir == "" {
		dir = filepath.Dir(opts.SourcePath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create work dir: %w", err)
	}

	base := filepath.Base(opts.SourcePath)
	mergedPath := filepath.Join(dir, "merged_"+base)
	unmergedPath := filepath.Join(dir, "unmerged_"+base)

	if err := merged.WriteFile(mergedPath); err != nil {
		return "", "", err
	}
	if err := unmerged.WriteFile(unmergedPath); err != nil {
		return "", "", err
	}
	return mergedPath, unmergedPath, nil
}

func (p *Pipeline) remove(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.WithContext(ctx).WithError(err).WithField("path", path).Warn("failed to remove file")
			continue
		}
		p.logger.WithContext(ctx).WithField("path", path).Debug("removed file")
	}
}

func (p *Pipeline) observe(report *Report) {
	metrics.PipelineRunsTotal.WithLabelValues(string(report.Status)).Inc()
	metrics.PipelineRunDuration.Observe(report.Duration.Seconds())

	stats := report.Reconcile
	metrics.PipelineRows.WithLabelValues("merged").Add(float64(stats.MergedRows - stats.Duplicates))
	metrics.PipelineRows.WithLabelValues("unmerged").Add(float64(stats.UnmergedRows))
	metrics.PipelineRows.WithLabelValues("duplicate").Add(float64(stats.Duplicates))
	metrics.PipelineRows.WithLabelValues("unkeyed").Add(float64(stats.UnkeyedRecords))
}

func encodingOr(enc, fallback ingest.Encoding) ingest.Encoding {
	if enc == "" {
		return fallback
	}
	return enc
}
