package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/searchmcp/internal/storage"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if SEARCHMCP_TEST_PG_DSN is set
	dsn := os.Getenv("SEARCHMCP_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: SEARCHMCP_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	// Unique URL so repeated runs against the same database stay independent.
	target := "https://example-pg.com/" + uuid.NewString()

	rec := &storage.RequestRecord{
		ID:           uuid.NewString(),
		CallID:       "call-pg",
		Tool:         "scholar_search",
		URL:          target,
		Method:       "GET",
		StatusCode:   429,
		Bytes:        512,
		Duration:     50 * time.Millisecond,
		DetectedBot:  true,
		DetectionSrc: "Google",
		CreatedAt:    now,
	}

	if err := b.Save(ctx, rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{URL: target})
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ID != rec.ID || got.Tool != rec.Tool || got.StatusCode != rec.StatusCode {
		t.Errorf("Expected %+v, got %+v", rec, got)
	}
	if got.Duration.Milliseconds() != rec.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", rec.Duration, got.Duration)
	}
	if !got.DetectedBot || got.DetectionSrc != "Google" {
		t.Errorf("Expected Google detection, got %v %q", got.DetectedBot, got.DetectionSrc)
	}
	// Postgres keeps microseconds; compare at second precision.
	if got.CreatedAt.Unix() != rec.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", rec.CreatedAt, got.CreatedAt)
	}

	past := now.Add(-1 * time.Hour)
	resultsSince, err := b.Query(ctx, storage.Filter{URL: target, Tool: "scholar_search", Since: &past, Limit: 5})
	if err != nil {
		t.Fatalf("Failed to query records with Since: %v", err)
	}
	if len(resultsSince) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsSince))
	}
}
