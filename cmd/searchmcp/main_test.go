package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/searchmcp/internal/config"
	"github.com/FranksOps/searchmcp/internal/storage"
)

func seed(t *testing.T, dsn string) {
	t.Helper()
	b, err := openAuditBackend(context.Background(), dsn)
	if err != nil {
		t.Fatalf("opening %s: %v", dsn, err)
	}
	defer b.Close()

	now := time.Now().UTC()
	for i, rec := range []*storage.RequestRecord{
		{ID: "1", CallID: "a", Tool: "search", Method: "POST", URL: "https://html.duckduckgo.com/html", StatusCode: 200, Bytes: 10, CreatedAt: now.Add(-time.Minute)},
		{ID: "2", CallID: "b", Tool: "fetch_content", Method: "GET", URL: "https://example.com", StatusCode: 403, DetectedBot: true, DetectionSrc: "Cloudflare", CreatedAt: now},
	} {
		if err := b.Save(context.Background(), rec); err != nil {
			t.Fatalf("saving record %d: %v", i, err)
		}
	}
}

func TestOpenAuditBackend(t *testing.T) {
	dir := t.TempDir()
	for _, dsn := range []string{
		filepath.Join(dir, "audit.db"),
		filepath.Join(dir, "audit.ndjson"),
		filepath.Join(dir, "audit.JSONL"),
	} {
		b, err := openAuditBackend(context.Background(), dsn)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", dsn, err)
			continue
		}
		if err := b.Close(); err != nil {
			t.Errorf("%s: close: %v", dsn, err)
		}
	}

	if _, err := openAuditBackend(context.Background(), ""); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestAuditCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	dsn := filepath.Join(t.TempDir(), "audit.ndjson")
	seed(t, dsn)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"audit", "--audit-dsn", dsn, "--format", "json", "--records", "0"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("audit failed: %v", err)
	}

	var summary struct {
		TotalRequests   int            `json:"total_requests"`
		TotalCalls      int            `json:"total_calls"`
		DetectionsBySrc map[string]int `json:"detections_by_src"`
	}
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if summary.TotalRequests != 2 || summary.TotalCalls != 2 || summary.DetectionsBySrc["Cloudflare"] != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestNewService(t *testing.T) {
	c := config.Default()
	c.AuditDSN = filepath.Join(t.TempDir(), "audit.db")

	svc, closeFn, err := newService(context.Background(), c, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc == nil {
		t.Fatal("expected a service")
	}
	if err := closeFn(); err != nil {
		t.Errorf("closing: %v", err)
	}

	c.ProxyFile = filepath.Join(t.TempDir(), "missing.txt")
	if _, _, err := newService(context.Background(), c, nil); err == nil {
		t.Error("expected error for missing proxy file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("unexpected log output %q", out)
	}

	if _, err := newLogger(&buf, "chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}
