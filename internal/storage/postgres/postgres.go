package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/tubebrief/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	keyword TEXT NOT NULL,
	max_results INTEGER NOT NULL,
	mode TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	stage TEXT,
	error TEXT,
	records INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS pipeline_runs_created_at ON pipeline_runs (created_at);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, r *storage.RunRecord) error {
	query := `
	INSERT INTO pipeline_runs (
		id, keyword, max_results, mode, success, stage, error, records, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := b.pool.Exec(ctx, query,
		r.ID,
		r.Keyword,
		r.MaxResults,
		r.Mode,
		r.Success,
		r.Stage,
		r.Error,
		r.Records,
		r.Duration.Milliseconds(),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	query := `SELECT id, keyword, max_results, mode, success, COALESCE(stage, ''), COALESCE(error, ''), records, duration_ms, created_at FROM pipeline_runs WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Keyword != "" {
		query += fmt.Sprintf(` AND keyword = $%d`, paramCount)
		args = append(args, filter.Keyword)
		paramCount++
	}
	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, paramCount)
		args = append(args, filter.Mode)
		paramCount++
	}
	if filter.Success != nil {
		query += fmt.Sprintf(` AND success = $%d`, paramCount)
		args = append(args, *filter.Success)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query runs: %w", err)
	}
	defer rows.Close()

	var results []*storage.RunRecord
	for rows.Next() {
		var r storage.RunRecord
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.Keyword, &r.MaxResults, &r.Mode, &r.Success, &r.Stage,
			&r.Error, &r.Records, &durationMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
