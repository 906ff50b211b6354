package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/report"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/reportstore"
)

// Stage names one step of a report run.
type Stage string

const (
	StageBuild    Stage = "build"
	StageRender   Stage = "render"
	StageDisplay  Stage = "display"
	StageUpload   Stage = "upload"
	StageExport   Stage = "export"
	StageSnapshot Stage = "snapshot"
	StageHistory  Stage = "history"
	StageNotify   Stage = "notify"
)

// StageError reports the stage that stopped a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Builder produces the report tree for a run.
type Builder interface {
	Build(ctx context.Context, run domain.Run) (*report.Report, error)
}

// Appender persists a rendered section to the accumulated report.
type Appender interface {
	Append(ctx context.Context, run domain.Run, fragment string) (*reportstore.AppendResult, error)
}

// Notifier mails a finished report.
type Notifier interface {
	Notify(ctx context.Context, run domain.Run, fragment string) error
}

// Recorder keeps the run history.
type Recorder interface {
	StartRun(ctx context.Context, bucket string, runDate time.Time) (int64, error)
	FinishRun(ctx context.Context, id int64, status domain.RunStatus, totals domain.BucketTotals, errMsg string) error
	SavePrefixSizes(ctx context.Context, runID int64, rows []domain.PrefixSize) error
}

// Config holds the local settings of a run.
type Config struct {
	// WorkDir receives the workbook and local report copies.
	WorkDir     string
	XLSXEnabled bool
	PageTitle   string
}

// Result is everything a completed run produced.
type Result struct {
	Report       *report.Report
	Fragment     string
	Page         string
	Append       *reportstore.AppendResult
	WorkbookPath string
	RunID        int64
	Notified     bool
	Status       domain.RunStatus
	Duration     time.Duration
}
