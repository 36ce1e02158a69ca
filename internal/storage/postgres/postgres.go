package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/searchmcp/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS request_records (
	id TEXT PRIMARY KEY,
	call_id TEXT NOT NULL DEFAULT '',
	tool TEXT NOT NULL,
	url TEXT NOT NULL,
	method TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	bytes BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	proxy TEXT NOT NULL DEFAULT '',
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS request_records_created_at ON request_records (created_at DESC);
`

const columns = `id, call_id, tool, url, method, status_code, bytes, duration_ms, proxy, detected_bot, detection_src, created_at, error`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: creating schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *storage.RequestRecord) error {
	query := `INSERT INTO request_records (` + columns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := b.pool.Exec(ctx, query,
		rec.ID,
		rec.CallID,
		rec.Tool,
		rec.URL,
		rec.Method,
		rec.StatusCode,
		rec.Bytes,
		rec.Duration.Milliseconds(),
		rec.Proxy,
		rec.DetectedBot,
		rec.DetectionSrc,
		rec.CreatedAt,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: saving %s: %w", rec.ID, err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RequestRecord, error) {
	query := `SELECT ` + columns + ` FROM request_records WHERE 1=1`
	args := []any{}

	arg := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}

	if filter.Tool != "" {
		arg(` AND tool = $%d`, filter.Tool)
	}
	if filter.URL != "" {
		arg(` AND url = $%d`, filter.URL)
	}
	if filter.DetectedBot != nil {
		arg(` AND detected_bot = $%d`, *filter.DetectedBot)
	}
	if filter.Since != nil {
		arg(` AND created_at >= $%d`, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		arg(` LIMIT $%d`, filter.Limit)
	}
	if filter.Offset > 0 {
		arg(` OFFSET $%d`, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var records []*storage.RequestRecord
	for rows.Next() {
		var r storage.RequestRecord
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.CallID, &r.Tool, &r.URL, &r.Method, &r.StatusCode, &r.Bytes,
			&durationMs, &r.Proxy, &r.DetectedBot, &r.DetectionSrc, &r.CreatedAt, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
