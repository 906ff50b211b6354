package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

// Sink displays a rendered report page.
type Sink interface {
	Show(ctx context.Context, rep *Report, page string) error
}

// FileSink saves the page under Dir/Filename.
type FileSink struct {
	Dir      string
	Filename string
}

// Path is where Show writes.
func (s FileSink) Path() string {
	return filepath.Join(s.Dir, s.Filename)
}

func (s FileSink) Show(_ context.Context, rep *Report, page string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir %s: %w", s.Dir, err)
	}
	if err := os.WriteFile(s.Path(), []byte(page), 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", s.Path(), err)
	}
	return nil
}

// LogSink logs the top of the tree, indented by depth like the console
// progress output.
type LogSink struct {
	Logger zerolog.Logger
	// Depth limits how many levels below the bucket node are logged.
	Depth int
}

func (s LogSink) Show(_ context.Context, rep *Report, page string) error {
	if rep == nil || rep.Root == nil {
		return nil
	}
	s.Logger.Info().
		Str("bucket", rep.Run.Bucket).
		Str("date", rep.Run.DateLabel()).
		Int64("total_files", rep.Totals.ObjectCount).
		Str("total", humanize.IBytes(rep.Totals.SizeBytes)).
		Int("page_bytes", len(page)).
		Msg("space consumption report")

	maxDepth := s.Depth + 2
	return rep.Root.Walk(func(_ string, node *domain.StorageNode, depth int) error {
		if depth >= maxDepth {
			return nil
		}
		s.Logger.Info().Msgf("%*s%s - %.2f GB", depth*3, "", node.Name, domain.GB(node.SizeBytes))
		return nil
	})
}
