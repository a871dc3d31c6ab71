package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists run state in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stitch_runs (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			total INT NOT NULL DEFAULT 0,
			successful INT NOT NULL DEFAULT 0,
			failed INT NOT NULL DEFAULT 0,
			skipped INT NOT NULL DEFAULT 0,
			mean_drift_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_drift_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS stitch_segments (
			run_id TEXT NOT NULL REFERENCES stitch_runs (id),
			index INT NOT NULL,
			start_seconds DOUBLE PRECISION NOT NULL,
			end_seconds DOUBLE PRECISION NOT NULL,
			text TEXT NOT NULL,
			output_file TEXT NOT NULL DEFAULT '',
			synthesis_method TEXT NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL DEFAULT FALSE,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			drift_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (run_id, index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stitch_runs_created ON stitch_runs (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, record RunRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO stitch_runs (id, state, total, successful, failed, skipped,
			mean_drift_seconds, max_drift_seconds, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			total = EXCLUDED.total,
			successful = EXCLUDED.successful,
			failed = EXCLUDED.failed,
			skipped = EXCLUDED.skipped,
			mean_drift_seconds = EXCLUDED.mean_drift_seconds,
			max_drift_seconds = EXCLUDED.max_drift_seconds,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		record.ID,
		record.State,
		record.Total,
		record.Successful,
		record.Failed,
		record.Skipped,
		record.MeanDrift,
		record.MaxDrift,
		record.Error,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSegment(ctx context.Context, record SegmentRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO stitch_segments (run_id, index, start_seconds, end_seconds, text,
			output_file, synthesis_method, success, degraded, drift_seconds, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (run_id, index) DO UPDATE SET
			output_file = EXCLUDED.output_file,
			synthesis_method = EXCLUDED.synthesis_method,
			success = EXCLUDED.success,
			degraded = EXCLUDED.degraded,
			drift_seconds = EXCLUDED.drift_seconds,
			error = EXCLUDED.error`,
		record.RunID,
		record.Index,
		record.Start,
		record.End,
		record.Text,
		record.OutputFile,
		record.SynthesisMethod,
		record.Success,
		record.Degraded,
		record.DriftSeconds,
		record.Error,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save segment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, state, total, successful, failed, skipped,
			mean_drift_seconds, max_drift_seconds, error, created_at, updated_at
		 FROM stitch_runs WHERE id=$1`,
		id,
	)
	var record RunRecord
	err := row.Scan(
		&record.ID,
		&record.State,
		&record.Total,
		&record.Successful,
		&record.Failed,
		&record.Skipped,
		&record.MeanDrift,
		&record.MaxDrift,
		&record.Error,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListSegments(ctx context.Context, runID string) ([]SegmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, index, start_seconds, end_seconds, text, output_file,
			synthesis_method, success, degraded, drift_seconds, error, created_at
		 FROM stitch_segments WHERE run_id=$1 ORDER BY index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []SegmentRecord
	for rows.Next() {
		var record SegmentRecord
		if err := rows.Scan(
			&record.RunID,
			&record.Index,
			&record.Start,
			&record.End,
			&record.Text,
			&record.OutputFile,
			&record.SynthesisMethod,
			&record.Success,
			&record.Degraded,
			&record.DriftSeconds,
			&record.Error,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
