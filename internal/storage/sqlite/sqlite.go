package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/searchmcp/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS request_records (
	id TEXT PRIMARY KEY,
	call_id TEXT,
	tool TEXT NOT NULL,
	url TEXT NOT NULL,
	method TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	proxy TEXT,
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT,
	created_at DATETIME NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS request_records_created_at ON request_records (created_at);
`

const columns = `id, call_id, tool, url, method, status_code, bytes, duration_ms, proxy, detected_bot, detection_src, created_at, error`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: creating schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.RequestRecord) error {
	query := `INSERT INTO request_records (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := b.db.ExecContext(ctx, query,
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
		rec.CreatedAt.UTC(),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving %s: %w", rec.ID, err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RequestRecord, error) {
	query := `SELECT ` + columns + ` FROM request_records WHERE 1=1`
	args := []any{}

	if filter.Tool != "" {
		query += ` AND tool = ?`
		args = append(args, filter.Tool)
	}
	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.DetectedBot != nil {
		query += ` AND detected_bot = ?`
		args = append(args, *filter.DetectedBot)
	}
	if filter.Since != nil {
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
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var records []*storage.RequestRecord
	for rows.Next() {
		var r storage.RequestRecord
		var durationMs int64
		var callID, proxy, src, errStr sql.NullString

		err := rows.Scan(
			&r.ID, &callID, &r.Tool, &r.URL, &r.Method, &r.StatusCode, &r.Bytes,
			&durationMs, &proxy, &r.DetectedBot, &src, &r.CreatedAt, &errStr,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}

		r.CallID = callID.String
		r.Proxy = proxy.String
		r.DetectionSrc = src.String
		r.Error = errStr.String
		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return records, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
