// Package pipeline runs one space consumption report end to end: build,
// render, display, upload, export, snapshot, history and mail.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/cache"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/export"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/render"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/report"
)

// Orchestrator runs the stages of a report in order. Any failure stops the
// stages after it; earlier side effects, such as an uploaded report, stay.
type Orchestrator struct {
	builder  Builder
	store    Appender
	cfg      Config
	renderer render.Renderer
	sinks    []report.Sink
	cache    cache.SnapshotCache
	recorder Recorder
	notifier Notifier
}

type Option func(*Orchestrator)

func WithSinks(sinks ...report.Sink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

func WithCache(c cache.SnapshotCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithRenderer(r render.Renderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// NewOrchestrator creates a new Orchestrator. Cache, history and mail are
// skipped unless their options are given.
func NewOrchestrator(builder Builder, store Appender, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		builder: builder,
		store:   store,
		cfg:     cfg,
		cache:   cache.NewNoopSnapshotCache(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every stage for run.
func (o *Orchestrator) Run(ctx context.Context, run domain.Run) (*Result, error) {
	started := time.Now()
	result := &Result{Status: domain.RunStatusPending}
	logger := log.With().Str("bucket", run.Bucket).Str("date", run.ISODate()).Logger()

	if o.recorder != nil {
		id, err := o.recorder.StartRun(ctx, run.Bucket, run.Date)
		if err != nil {
			return nil, errors.WithStack(&StageError{Stage: StageHistory, Err: err})
		}
		result.RunID = id
	}
	result.Status = domain.RunStatusProcessing

	if err := o.run(ctx, run, result); err != nil {
		result.Status = domain.RunStatusFailed
		result.Duration = time.Since(started)
		o.finish(ctx, result, err)
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("report run failed")
		return result, err
	}

	result.Status = domain.RunStatusCompleted
	result.Duration = time.Since(started)
	o.finish(ctx, result, nil)

	logger.Info().
		Int64("total_files", result.Report.Totals.ObjectCount).
		Uint64("total_bytes", result.Report.Totals.SizeBytes).
		Bool("notified", result.Notified).
		Dur("duration", result.Duration).
		Msg("report run completed")
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, run domain.Run, result *Result) error {
	rep, err := o.builder.Build(ctx, run)
	if err != nil {
		return stageErr(StageBuild, err)
	}
	result.Report = rep

	result.Fragment, err = o.renderer.Render(rep.Root)
	if err != nil {
		return stageErr(StageRender, err)
	}
	result.Page, err = render.Page(o.cfg.PageTitle, result.Fragment)
	if err != nil {
		return stageErr(StageRender, err)
	}

	for _, sink := range o.sinks {
		if err := sink.Show(ctx, rep, result.Page); err != nil {
			return stageErr(StageDisplay, err)
		}
	}

	result.Append, err = o.store.Append(ctx, run, result.Fragment)
	if err != nil {
		return stageErr(StageUpload, err)
	}

	if o.cfg.XLSXEnabled {
		path := filepath.Join(o.cfg.WorkDir, export.FileName(run))
		if err := export.WriteWorkbook(path, rep.Bucket()); err != nil {
			return stageErr(StageExport, err)
		}
		result.WorkbookPath = path
	}

	rows := domain.Flatten(rep.Bucket())
	snapshot := &domain.UsageSnapshot{
		Bucket:     run.Bucket,
		RunDate:    run.ISODate(),
		TotalBytes: rep.Totals.SizeBytes,
		TotalFiles: rep.Totals.ObjectCount,
		Prefixes:   rows,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.cache.SetSnapshot(ctx, snapshot); err != nil {
		return stageErr(StageSnapshot, err)
	}

	if o.recorder != nil {
		if err := o.recorder.SavePrefixSizes(ctx, result.RunID, rows); err != nil {
			return stageErr(StageHistory, err)
		}
	}

	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, run, result.Fragment); err != nil {
			return stageErr(StageNotify, err)
		}
		result.Notified = true
	}

	return nil
}

// finish records the outcome; a failure to record is logged, not returned,
// so it never masks the run's own error.
func (o *Orchestrator) finish(ctx context.Context, result *Result, runErr error) {
	if o.recorder == nil {
		return
	}

	var totals domain.BucketTotals
	if result.Report != nil {
		totals = result.Report.Totals
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	if err := o.recorder.FinishRun(ctx, result.RunID, result.Status, totals, errMsg); err != nil {
		log.Error().Err(err).Int64("run_id", result.RunID).Msg("failed to record run status")
	}
}

func stageErr(stage Stage, err error) error {
	return errors.WithStack(&StageError{Stage: stage, Err: err})
}
