package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/aggregator"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/api"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/cache"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/config"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/history"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/notify"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/pipeline"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/render"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/report"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/reportstore"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/service"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage/driver"
	"github.com/andresuchdata/space-evaluation/backend-go/pkg/logger"
)

const runDateLayout = "2006-01-02"

func reportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "bucket",
			Usage:   "Bucket to evaluate",
			EnvVars: []string{"STORAGE_BUCKET"},
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "Storage backend: s3, minio, gcs or memory",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Start prefix; empty evaluates the whole bucket",
		},
		&cli.StringFlag{
			Name:  "date",
			Usage: "Run date (YYYY-MM-DD), defaults to today",
		},
		&cli.StringFlag{
			Name:  "segment",
			Usage: "Segment label used in the mail subject and file names",
		},
		&cli.StringFlag{
			Name:  "strategy",
			Usage: "Aggregation strategy: relist or single-pass",
		},
		&cli.StringFlag{
			Name:  "skip-prefix",
			Usage: "Prefix excluded from the tree (exact match)",
		},
		&cli.StringFlag{
			Name:  "date-marker",
			Usage: "Prefixes containing this text are not expanded",
		},
		&cli.IntFlag{
			Name:  "max-depth",
			Usage: "Maximum prefix depth to expand",
		},
		&cli.StringFlag{
			Name:  "local-dir",
			Usage: "Directory whose files fill the bucket of the memory driver",
		},
	}
}

// applyReportFlags overrides configuration with the flags set on c.
func applyReportFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("bucket") {
		cfg.Storage.Bucket = c.String("bucket")
	}
	if c.IsSet("driver") {
		cfg.Storage.Driver = strings.ToLower(c.String("driver"))
	}
	if c.IsSet("local-dir") {
		cfg.Storage.LocalDir = c.String("local-dir")
	}
	if c.IsSet("prefix") {
		cfg.Report.Prefix = c.String("prefix")
	}
	if c.IsSet("segment") {
		cfg.Report.Segment = c.String("segment")
	}
	if c.IsSet("strategy") {
		cfg.Report.Strategy = c.String("strategy")
	}
	if c.IsSet("skip-prefix") {
		cfg.Report.SkipPrefix = c.String("skip-prefix")
	}
	if c.IsSet("date-marker") {
		cfg.Report.DateMarker = c.String("date-marker")
	}
	if c.IsSet("max-depth") {
		cfg.Report.MaxDepth = c.Int("max-depth")
	}
	if c.IsSet("report-bucket") {
		cfg.Report.Bucket = c.String("report-bucket")
	}
	if c.IsSet("report-key") {
		cfg.Report.Key = c.String("report-key")
	}
	if c.IsSet("append-mode") {
		cfg.Report.AppendMode = c.String("append-mode")
	}
	if c.IsSet("work-dir") {
		cfg.Report.WorkDir = c.String("work-dir")
	}
	if c.IsSet("mail") {
		cfg.Mail.Enabled = c.Bool("mail")
	}
	if c.IsSet("xlsx") {
		cfg.Report.XLSXEnabled = c.Bool("xlsx")
	}
	if cfg.Report.Bucket == "" {
		cfg.Report.Bucket = cfg.Storage.Bucket
	}
}

func parseRunDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	date, err := time.ParseInLocation(runDateLayout, value, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return date, nil
}

// closeStorage releases the backend client, logging a failure.
func closeStorage(store storage.ObjectStorage) {
	if err := driver.Close(store); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to close storage client")
	}
}

func newRun(cfg *config.Config, date time.Time) domain.Run {
	return domain.Run{
		Bucket:       cfg.Storage.Bucket,
		Prefix:       cfg.Report.Prefix,
		Date:         date,
		Segment:      cfg.Report.Segment,
		ReportBucket: cfg.Report.Bucket,
		ReportKey:    cfg.Report.Key,
	}
}

func newAggregator(lister storage.Lister, cfg config.ReportConfig) (*aggregator.Aggregator, error) {
	strategy, err := aggregator.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return aggregator.New(lister, aggregator.Options{
		SkipPrefix: cfg.SkipPrefix,
		DateMarker: cfg.DateMarker,
		MaxDepth:   cfg.MaxDepth,
		Strategy:   strategy,
	}), nil
}

// prepareRun resolves configuration and flags into a run context.
func prepareRun(c *cli.Context, state *appState) (*config.Config, domain.Run, error) {
	cfg := *state.cfg
	applyReportFlags(c, &cfg)
	if cfg.Storage.Bucket == "" {
		return nil, domain.Run{}, errors.New("a bucket is required (--bucket or STORAGE_BUCKET)")
	}

	date, err := parseRunDate(c.String("date"), time.Now())
	if err != nil {
		return nil, domain.Run{}, err
	}
	return &cfg, newRun(&cfg, date), nil
}

func runCommand(state *appState) *cli.Command {
	flags := append(reportFlags(),
		&cli.StringFlag{Name: "report-bucket", Usage: "Bucket holding the accumulated HTML report"},
		&cli.StringFlag{Name: "report-key", Usage: "Object key of the accumulated HTML report"},
		&cli.StringFlag{Name: "append-mode", Usage: "How new sections are inserted: splice or structured"},
		&cli.StringFlag{Name: "work-dir", Usage: "Local directory for the workbook and report copy"},
		&cli.BoolFlag{Name: "mail", Usage: "Send the report by mail"},
		&cli.BoolFlag{Name: "xlsx", Usage: "Write the usage workbook"},
	)

	return &cli.Command{
		Name:   "run",
		Usage:  "Evaluate a bucket, append the report and send it",
		Flags:  flags,
		Action: func(c *cli.Context) error { return runReport(c, state) },
	}
}

func runReport(c *cli.Context, state *appState) error {
	ctx := c.Context
	cfg, run, err := prepareRun(c, state)
	if err != nil {
		return err
	}

	store, err := driver.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStorage(store)
	agg, err := newAggregator(store, cfg.Report)
	if err != nil {
		return err
	}
	mode, err := reportstore.ParseMode(cfg.Report.AppendMode)
	if err != nil {
		return err
	}
	reports := reportstore.New(store, reportstore.Options{
		Mode:     mode,
		WorkDir:  cfg.Report.WorkDir,
		Filename: cfg.Report.HTMLFilename,
	})

	snapshots, err := cache.NewSnapshotCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	opts := []pipeline.Option{
		pipeline.WithSinks(report.LogSink{Logger: logger.Log, Depth: 1}),
		pipeline.WithCache(snapshots),
	}

	if cfg.History.Enabled {
		db, err := history.NewDB(ctx, cfg.History.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := history.NewRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		opts = append(opts, pipeline.WithRecorder(repo))
	}

	if cfg.Mail.Enabled {
		client, err := notify.NewClient(cfg.Mail)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithNotifier(notify.New(client, notify.Options{
			From:            cfg.Mail.From,
			To:              cfg.Mail.To,
			InlineReport:    cfg.Mail.InlineReport,
			WorkDir:         cfg.Report.WorkDir,
			AttachmentMatch: cfg.Report.AttachmentMatch,
			HTMLFilename:    cfg.Report.HTMLFilename,
		})))
	}

	orchestrator := pipeline.NewOrchestrator(
		report.NewBuilder(agg),
		reports,
		pipeline.Config{WorkDir: cfg.Report.WorkDir, XLSXEnabled: cfg.Report.XLSXEnabled},
		opts...,
	)

	result, err := orchestrator.Run(ctx, run)
	if err != nil {
		return err
	}

	logger.Log.Info().
		Str("report", fmt.Sprintf("%s/%s", run.ReportBucket, run.ReportKey)).
		Str("total", humanize.IBytes(result.Report.Totals.SizeBytes)).
		Str("workbook", result.WorkbookPath).
		Msg("done")
	return nil
}

func treeCommand(state *appState) *cli.Command {
	flags := append(reportFlags(),
		&cli.StringFlag{Name: "out", Usage: "Write the rendered page to this file"},
		&cli.IntFlag{Name: "depth", Usage: "Levels below the bucket to log", Value: 2},
	)

	return &cli.Command{
		Name:  "tree",
		Usage: "Evaluate a bucket and print the usage tree without uploading",
		Flags: flags,
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg, run, err := prepareRun(c, state)
			if err != nil {
				return err
			}

			store, err := driver.Open(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer closeStorage(store)
			agg, err := newAggregator(store, cfg.Report)
			if err != nil {
				return err
			}

			rep, err := report.NewBuilder(agg).Build(ctx, run)
			if err != nil {
				return err
			}
			fragment, err := render.Render(rep.Root)
			if err != nil {
				return err
			}
			page, err := render.Page("", fragment)
			if err != nil {
				return err
			}

			sinks := []report.Sink{report.LogSink{Logger: logger.Log, Depth: c.Int("depth")}}
			if out := c.String("out"); out != "" {
				sinks = append(sinks, report.FileSink{Dir: filepath.Dir(out), Filename: filepath.Base(out)})
			}
			for _, sink := range sinks {
				if err := sink.Show(ctx, rep, page); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func serveCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the accumulated report and cached usage over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "Listen port", EnvVars: []string{"SERVER_PORT"}},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg := *state.cfg
			if c.IsSet("port") {
				cfg.Server.Port = c.String("port")
			}

			if cfg.Server.Mode == "debug" {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			store, err := driver.Open(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer closeStorage(store)
			snapshots, err := cache.NewSnapshotCache(ctx, cfg.Cache)
			if err != nil {
				return err
			}

			var historyReader service.HistoryReader
			if cfg.History.Enabled {
				db, err := history.NewDB(ctx, cfg.History.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				historyReader = history.NewRepository(db)
			}

			location := domain.Run{ReportBucket: cfg.Report.Bucket, ReportKey: cfg.Report.Key}
			usage := service.NewUsageService(snapshots, historyReader, reportstore.New(store, reportstore.Options{}), location)
			router := api.NewRouter(&api.Services{UsageService: usage}, cfg.Server.AllowedOrigins)

			srv := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      router,
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Log.Info().Msg("Shutting down server...")

			// The server has 5 seconds to finish the requests it is handling
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			logger.Log.Info().Msg("Server exiting")
			return nil
		},
	}
}

func historyCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded runs and prefix sizes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bucket", Usage: "Bucket to show", EnvVars: []string{"STORAGE_BUCKET"}},
			&cli.StringFlag{Name: "db-url", Usage: "Database connection string", EnvVars: []string{"DATABASE_URL"}},
			&cli.StringSliceFlag{Name: "prefix", Usage: "Prefixes to chart; defaults to top-level prefixes"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 10},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			bucket := c.String("bucket")
			if bucket == "" {
				bucket = state.cfg.Storage.Bucket
			}
			dbURL := c.String("db-url")
			if dbURL == "" {
				dbURL = state.cfg.History.DatabaseURL
			}
			if bucket == "" || dbURL == "" {
				return errors.New("history needs a bucket and a database url")
			}

			db, err := history.NewDB(ctx, dbURL)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := history.NewRepository(db)

			runs, err := repo.LatestRuns(ctx, bucket, c.Int("limit"))
			if err != nil {
				return err
			}
			for _, run := range runs {
				logger.Log.Info().
					Int64("id", run.ID).
					Str("date", run.RunDate.Format(runDateLayout)).
					Str("status", run.Status.Label()).
					Str("total", humanize.IBytes(uint64(max(run.TotalBytes, 0)))).
					Int64("files", run.TotalFiles).
					Str("error", run.ErrorMessage).
					Msg("run")
			}

			points, err := repo.PrefixHistory(ctx, bucket, c.StringSlice("prefix"), c.Int("limit"))
			if err != nil {
				return err
			}
			for _, p := range points {
				logger.Log.Info().
					Str("prefix", p.Prefix).
					Str("date", p.RunDate.Format(runDateLayout)).
					Str("size", humanize.IBytes(uint64(max(p.SizeBytes, 0)))).
					Msg("prefix size")
			}
			return nil
		},
	}
}

func cacheCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage cached usage snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Drop cached snapshots of the given buckets, or of every bucket",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "bucket", Usage: "Bucket whose snapshot is dropped; repeatable"},
				},
				Action: func(c *cli.Context) error {
					buckets := c.StringSlice("bucket")
					deleted, err := clearSnapshots(c.Context, state.cfg.Cache, buckets)
					if err != nil {
						return err
					}
					logger.Log.Info().
						Strs("buckets", buckets).
						Int64("deleted", deleted).
						Msg("cached snapshots cleared")
					return nil
				},
			},
		},
	}
}

func clearSnapshots(ctx context.Context, cfg config.CacheConfig, buckets []string) (int64, error) {
	if !cfg.Enabled {
		return 0, errors.New("snapshot cache is disabled (CACHE_ENABLED=false)")
	}
	snapshots, err := cache.NewSnapshotCache(ctx, cfg)
	if err != nil {
		return 0, err
	}
	return snapshots.Invalidate(ctx, buckets...)
}
