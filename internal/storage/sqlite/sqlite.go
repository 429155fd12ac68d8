package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/tubebrief/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
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
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS pipeline_runs_created_at ON pipeline_runs (created_at);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite allows a single writer; concurrent handlers share one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, r *storage.RunRecord) error {
	query := `
	INSERT INTO pipeline_runs (
		id, keyword, max_results, mode, success, stage, error, records, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		r.ID,
		r.Keyword,
		r.MaxResults,
		r.Mode,
		r.Success,
		r.Stage,
		r.Error,
		r.Records,
		r.Duration.Milliseconds(),
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert run: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	query := `SELECT id, keyword, max_results, mode, success, stage, error, records, duration_ms, created_at FROM pipeline_runs WHERE 1=1`
	args := []any{}

	if filter.Keyword != "" {
		query += ` AND keyword = ?`
		args = append(args, filter.Keyword)
	}
	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, filter.Mode)
	}
	if filter.Success != nil {
		query += ` AND success = ?`
		args = append(args, *filter.Success)
	}
	if filter.Since != nil {
		// created_at is stored as text, so both sides must be UTC to compare.
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query runs: %w", err)
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
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
