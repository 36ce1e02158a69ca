package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/FranksOps/searchmcp/internal/storage"
	"github.com/FranksOps/searchmcp/internal/storage/jsonbackend"
	"github.com/FranksOps/searchmcp/internal/storage/postgres"
	"github.com/FranksOps/searchmcp/internal/storage/sqlite"
)

// openAuditBackend picks a storage backend from the shape of dsn:
// postgres:// or postgresql:// URLs use pgx, *.ndjson and *.jsonl files use
// the JSON lines backend and anything else is a SQLite database path.
func openAuditBackend(ctx context.Context, dsn string) (storage.Backend, error) {
	var (
		b   storage.Backend
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		b, err = postgres.New(ctx, dsn)
	case strings.EqualFold(filepath.Ext(dsn), ".ndjson"), strings.EqualFold(filepath.Ext(dsn), ".jsonl"):
		b, err = jsonbackend.New(dsn)
	case dsn == "":
		return nil, fmt.Errorf("audit store: no dsn configured")
	default:
		b, err = sqlite.New(dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	return b, nil
}
