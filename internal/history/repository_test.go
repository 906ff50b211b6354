package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewRepository(Wrap(sqlx.NewDb(db, "pgx"))), mock
}

var runDate = time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

func TestStartRun(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO usage_runs (bucket, run_date, status, started_at)")).
		WithArgs("lake", runDate, "processing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.StartRun(context.Background(), "lake", runDate)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestFinishRun(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE usage_runs")).
		WithArgs(int64(42), "completed", int64(350), int64(3), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE usage_runs")).
		WithArgs(int64(7), "failed", int64(0), int64(0), "boom").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FinishRun(context.Background(), 42, domain.RunStatusCompleted, domain.BucketTotals{SizeBytes: 350, ObjectCount: 3}, "")
	require.NoError(t, err)

	err = repo.FinishRun(context.Background(), 7, domain.RunStatusFailed, domain.BucketTotals{}, "boom")
	assert.ErrorContains(t, err, "run 7 not found")
}

func TestSavePrefixSizes(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := []domain.PrefixSize{
		{Prefix: "a/", Depth: 0, SizeBytes: 300},
		{Prefix: "a/2024-01-01/", Depth: 1, SizeBytes: 200},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO usage_prefix_sizes"))
	prep.ExpectExec().WithArgs(int64(42), "a/", 0, int64(300)).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(42), "a/2024-01-01/", 1, int64(200)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SavePrefixSizes(context.Background(), 42, rows))
}

func TestSavePrefixSizesRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	dbErr := errors.New("disk full")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO usage_prefix_sizes"))
	prep.ExpectExec().WillReturnError(dbErr)
	mock.ExpectRollback()

	err := repo.SavePrefixSizes(context.Background(), 42, []domain.PrefixSize{{Prefix: "a/", SizeBytes: 1}})
	assert.ErrorIs(t, err, dbErr)
}

func TestSavePrefixSizesEmpty(t *testing.T) {
	repo, _ := newMockRepo(t)
	require.NoError(t, repo.SavePrefixSizes(context.Background(), 42, nil))
}

func TestPrefixHistory(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("p.prefix = ANY($3)")).
		WithArgs("lake", "completed", sqlmock.AnyArg(), 5).
		WillReturnRows(sqlmock.NewRows([]string{"prefix", "run_date", "size_bytes"}).
			AddRow("a/", runDate, int64(300)).
			AddRow("a/", runDate.AddDate(0, 0, -1), int64(250)))

	points, err := repo.PrefixHistory(context.Background(), "lake", []string{"a/"}, 5)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, domain.PrefixHistoryPoint{Prefix: "a/", RunDate: runDate, SizeBytes: 300}, points[0])

	mock.ExpectQuery(regexp.QuoteMeta("p.depth = $3")).
		WithArgs("lake", "completed", 0, 30).
		WillReturnRows(sqlmock.NewRows([]string{"prefix", "run_date", "size_bytes"}))

	points, err = repo.PrefixHistory(context.Background(), "lake", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestLatestRuns(t *testing.T) {
	repo, mock := newMockRepo(t)
	started := runDate.Add(9 * time.Hour)
	completed := started.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("FROM usage_runs")).
		WithArgs("lake", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "bucket", "run_date", "status", "total_bytes", "total_files", "started_at", "completed_at", "error_message",
		}).
			AddRow(int64(2), "lake", runDate, "completed", int64(350), int64(3), started, completed, "").
			AddRow(int64(1), "lake", runDate, "failed", int64(0), int64(0), started, nil, "denied"))

	runs, err := repo.LatestRuns(context.Background(), "lake", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunStatusCompleted, runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Equal(t, completed, *runs[0].CompletedAt)
	assert.Nil(t, runs[1].CompletedAt)
	assert.Equal(t, "denied", runs[1].ErrorMessage)
}

func TestLatestRunsNormalizesStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	columns := []string{
		"id", "bucket", "run_date", "status", "total_bytes", "total_files", "started_at", "completed_at", "error_message",
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM usage_runs")).
		WithArgs("lake", 5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(3), "lake", runDate, " Processing ", int64(0), int64(0), runDate, nil, ""))

	runs, err := repo.LatestRuns(context.Background(), "lake", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusProcessing, runs[0].Status)

	mock.ExpectQuery(regexp.QuoteMeta("FROM usage_runs")).
		WithArgs("lake", 5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(4), "lake", runDate, "archived", int64(0), int64(0), runDate, nil, ""))

	_, err = repo.LatestRuns(context.Background(), "lake", 5)
	assert.ErrorContains(t, err, `run 4 has unknown status "archived"`)
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS usage_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
}
