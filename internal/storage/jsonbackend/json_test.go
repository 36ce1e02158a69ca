package jsonbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/searchmcp/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "audit.ndjson")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	rec1 := &storage.RequestRecord{
		ID:         "json1",
		Tool:       "fetch_content",
		URL:        "http://example.com/1",
		Method:     "GET",
		StatusCode: 200,
		Bytes:      10,
		Duration:   10 * time.Millisecond,
		CreatedAt:  now.Add(-2 * time.Hour),
	}
	rec2 := &storage.RequestRecord{
		ID:           "json2",
		Tool:         "search",
		URL:          "http://example.com/2",
		Method:       "POST",
		StatusCode:   403,
		Duration:     20 * time.Millisecond,
		DetectedBot:  true,
		DetectionSrc: "Cloudflare",
		CreatedAt:    now.Add(-1 * time.Hour),
	}

	for _, r := range []*storage.RequestRecord{rec1, rec2} {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Failed to save %s: %v", r.ID, err)
		}
	}

	tests := []struct {
		name    string
		filter  storage.Filter
		wantIDs []string
	}{
		{"all newest first", storage.Filter{}, []string{"json2", "json1"}},
		{"url", storage.Filter{URL: "http://example.com/2"}, []string{"json2"}},
		{"tool", storage.Filter{Tool: "fetch_content"}, []string{"json1"}},
		{"limit", storage.Filter{Limit: 1}, []string{"json2"}},
		{"offset", storage.Filter{Offset: 1}, []string{"json1"}},
		{"offset past end", storage.Filter{Offset: 5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Expected %d results, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("result %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}

	boolTrue := true
	detected, err := b.Query(ctx, storage.Filter{DetectedBot: &boolTrue})
	if err != nil {
		t.Fatalf("Failed to query by DetectedBot: %v", err)
	}
	if len(detected) != 1 || detected[0].DetectionSrc != "Cloudflare" {
		t.Fatalf("Expected the Cloudflare record, got %+v", detected)
	}

	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(since) != 1 || since[0].ID != "json2" {
		t.Fatalf("Expected json2 only, got %+v", since)
	}

	// Saves after a query still append.
	if err := b.Save(ctx, &storage.RequestRecord{ID: "json3", Tool: "search", CreatedAt: now}); err != nil {
		t.Fatalf("Failed to save after query: %v", err)
	}
	all, _ := b.Query(ctx, storage.Filter{})
	if len(all) != 3 || all[0].ID != "json3" {
		t.Fatalf("Expected json3 to be newest of 3, got %d records", len(all))
	}
}

func TestJSONBackend_LineFormat(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "audit.ndjson")
	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Appended out of order; queries still come back newest first.
	_ = b.Save(ctx, &storage.RequestRecord{ID: "late", Tool: "search", CallID: "c1", Duration: 1500 * time.Microsecond, CreatedAt: now})
	_ = b.Save(ctx, &storage.RequestRecord{ID: "early", Tool: "search", CreatedAt: now.Add(-time.Minute)})
	_ = b.Save(ctx, &storage.RequestRecord{ID: "latest", Tool: "search", CreatedAt: now.Add(time.Minute)})

	raw, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for _, want := range []string{`"id":"late"`, `"call_id":"c1"`, `"duration_ms":1.5`, `"created_at":"2024-05-01T12:00:00Z"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("expected %s in %s", want, lines[0])
		}
	}

	got, err := b.Query(ctx, storage.Filter{Offset: -1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, ",") != "latest,late,early" {
		t.Errorf("unexpected order %v", ids)
	}
	if got[1].Duration != 1500*time.Microsecond {
		t.Errorf("expected duration to round-trip, got %v", got[1].Duration)
	}
}
