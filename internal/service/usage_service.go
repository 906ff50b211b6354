package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/cache"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrHistoryDisabled = errors.New("run history is disabled")
)

// HistoryReader is the read side of history.Repository.
type HistoryReader interface {
	PrefixHistory(ctx context.Context, bucket string, prefixes []string, limit int) ([]domain.PrefixHistoryPoint, error)
	LatestRuns(ctx context.Context, bucket string, limit int) ([]domain.UsageRun, error)
}

// ReportFetcher reads the accumulated report document.
type ReportFetcher interface {
	Fetch(ctx context.Context, run domain.Run) (string, error)
}

// UsageService serves the latest results and the run history.
type UsageService struct {
	cache   cache.SnapshotCache
	history HistoryReader
	reports ReportFetcher
	// location carries the report bucket and key
	location domain.Run
}

func NewUsageService(cacheImpl cache.SnapshotCache, history HistoryReader, reports ReportFetcher, location domain.Run) *UsageService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopSnapshotCache()
	}
	return &UsageService{cache: cacheImpl, history: history, reports: reports, location: location}
}

// Snapshot returns the cached result of the last run for bucket.
func (s *UsageService) Snapshot(ctx context.Context, bucket string) (*domain.UsageSnapshot, error) {
	snapshot, ok, err := s.cache.GetSnapshot(ctx, bucket)
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket).Msg("usage: cache get snapshot failed")
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot, nil
}

func (s *UsageService) PrefixHistory(ctx context.Context, bucket string, prefixes []string, limit int) ([]domain.PrefixHistoryPoint, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.PrefixHistory(ctx, bucket, prefixes, limit)
}

func (s *UsageService) Runs(ctx context.Context, bucket string, limit int) ([]domain.UsageRun, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.LatestRuns(ctx, bucket, limit)
}

// Report returns the current accumulated HTML document.
func (s *UsageService) Report(ctx context.Context) (string, error) {
	if s.reports == nil {
		return "", ErrNotFound
	}
	doc, err := s.reports.Fetch(ctx, s.location)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", ErrNotFound
	}
	return doc, err
}
