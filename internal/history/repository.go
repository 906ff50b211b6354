// Package history records report runs and per-prefix sizes in postgres so
// growth can be charted across runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

// Schema creates the history tables when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_runs (
	id            BIGSERIAL PRIMARY KEY,
	bucket        TEXT        NOT NULL,
	run_date      DATE        NOT NULL,
	status        TEXT        NOT NULL,
	total_bytes   BIGINT      NOT NULL DEFAULT 0,
	total_files   BIGINT      NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at  TIMESTAMPTZ,
	error_message TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_runs_bucket_date ON usage_runs (bucket, run_date DESC);

CREATE TABLE IF NOT EXISTS usage_prefix_sizes (
	run_id     BIGINT  NOT NULL REFERENCES usage_runs (id) ON DELETE CASCADE,
	prefix     TEXT    NOT NULL,
	depth      INTEGER NOT NULL,
	size_bytes BIGINT  NOT NULL,
	PRIMARY KEY (run_id, prefix)
);
`

type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// StartRun inserts a processing run and returns its id.
func (r *Repository) StartRun(ctx context.Context, bucket string, runDate time.Time) (int64, error) {
	query := `
		INSERT INTO usage_runs (bucket, run_date, status, started_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id
	`

	var id int64
	if err := r.db.QueryRowxContext(ctx, query, bucket, runDate, domain.RunStatusProcessing).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcome of a run.
func (r *Repository) FinishRun(ctx context.Context, id int64, status domain.RunStatus, totals domain.BucketTotals, errMsg string) error {
	query := `
		UPDATE usage_runs
		SET status = $2, total_bytes = $3, total_files = $4, error_message = $5, completed_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, status, int64(totals.SizeBytes), totals.ObjectCount, errMsg)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", id)
	}
	return nil
}

// SavePrefixSizes stores the flattened tree of a run in one transaction.
func (r *Repository) SavePrefixSizes(ctx context.Context, runID int64, rows []domain.PrefixSize) error {
	if len(rows) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO usage_prefix_sizes (run_id, prefix, depth, size_bytes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id, prefix)
			DO UPDATE SET depth = EXCLUDED.depth, size_bytes = EXCLUDED.size_bytes
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, runID, row.Prefix, row.Depth, int64(row.SizeBytes)); err != nil {
				return fmt.Errorf("failed to save prefix %s: %w", row.Prefix, err)
			}
		}
		return nil
	})
}

// PrefixHistory returns sizes recorded by completed runs, newest first. With
// no prefixes it returns the top-level prefixes.
func (r *Repository) PrefixHistory(ctx context.Context, bucket string, prefixes []string, limit int) ([]domain.PrefixHistoryPoint, error) {
	if limit <= 0 {
		limit = 30
	}

	base := `
		SELECT p.prefix, r.run_date, p.size_bytes
		FROM usage_prefix_sizes p
		JOIN usage_runs r ON r.id = p.run_id
		WHERE r.bucket = $1 AND r.status = $2 AND %s
		ORDER BY r.run_date DESC, p.prefix
		LIMIT $4
	`

	var (
		query  string
		filter interface{}
	)
	if len(prefixes) > 0 {
		query = fmt.Sprintf(base, "p.prefix = ANY($3)")
		filter = pq.Array(prefixes)
	} else {
		query = fmt.Sprintf(base, "p.depth = $3")
		filter = 0
	}

	points := []domain.PrefixHistoryPoint{}
	if err := r.db.SelectContext(ctx, &points, query, bucket, domain.RunStatusCompleted, filter, limit); err != nil {
		return nil, fmt.Errorf("failed to query prefix history: %w", err)
	}
	return points, nil
}

// LatestRuns returns the most recent runs for bucket. Stored statuses are
// normalized; a status outside the run lifecycle is an error.
func (r *Repository) LatestRuns(ctx context.Context, bucket string, limit int) ([]domain.UsageRun, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, bucket, run_date, status, total_bytes, total_files, started_at, completed_at, error_message
		FROM usage_runs
		WHERE bucket = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	runs := []domain.UsageRun{}
	if err := r.db.SelectContext(ctx, &runs, query, bucket, limit); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	for i := range runs {
		status, ok := domain.ParseRunStatus(string(runs[i].Status))
		if !ok {
			return nil, fmt.Errorf("run %d has unknown status %q", runs[i].ID, runs[i].Status)
		}
		runs[i].Status = status
	}
	return runs, nil
}
