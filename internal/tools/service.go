// Package tools is the boundary between the MCP server and the pipelines.
// Every call is tagged, metered and shielded so that a failing pipeline
// produces a text answer instead of taking the server down.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/searchmcp/internal/format"
	"github.com/FranksOps/searchmcp/internal/metrics"
	"github.com/FranksOps/searchmcp/internal/notify"
	"github.com/FranksOps/searchmcp/internal/scholar"
	"github.com/FranksOps/searchmcp/internal/scraper"
	"github.com/FranksOps/searchmcp/internal/serp"
	"github.com/FranksOps/searchmcp/internal/webfetch"
)

// Tool names as advertised to clients.
const (
	ToolSearch        = "search"
	ToolFetchContent  = "fetch_content"
	ToolScholarSearch = "scholar_search"
)

const (
	searchFailure  = "An error occurred while searching: %v"
	fetchFailure   = "Error: An unexpected error occurred while fetching the webpage (%v)"
	scholarFailure = "An error occurred while searching Google Scholar: %v"
)

// ContentFetcher reduces a URL to readable text; *webfetch.Fetcher
// satisfies it.
type ContentFetcher interface {
	Fetch(ctx context.Context, sink notify.Sink, url string) string
}

// ScholarSearcher runs a Scholar query; *scholar.Pipeline satisfies it.
type ScholarSearcher interface {
	Search(ctx context.Context, sink notify.Sink, q scholar.Query, maxResults int) []scholar.Record
}

// Config wires the pipelines into a Service.
type Config struct {
	Search  serp.Provider
	Fetch   ContentFetcher
	Scholar ScholarSearcher
	Logger  *slog.Logger
}

// Service implements the three tools on top of the pipelines.
type Service struct {
	search  serp.Provider
	fetch   ContentFetcher
	scholar ScholarSearcher
	logger  *slog.Logger
}

// NewService builds a Service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		search:  cfg.Search,
		fetch:   cfg.Fetch,
		scholar: cfg.Scholar,
		logger:  cfg.Logger,
	}
}

// ScholarArgs are the scholar_search parameters.
type ScholarArgs struct {
	Query      string
	MaxResults int
	YearLow    *int
	YearHigh   *int
	SortBy     string
	StartIndex int
	Format     string
}

// Search runs a web search and formats the hits.
func (s *Service) Search(ctx context.Context, sink notify.Sink, query string, maxResults int) string {
	return s.call(ctx, ToolSearch, searchFailure, func(ctx context.Context) (string, string, error) {
		results := s.search.Search(ctx, sink, query, serp.ClampMaxResults(maxResults))
		return format.SearchResults(results), outcome(len(results)), nil
	})
}

// FetchContent returns the readable text of url or an "Error: " string.
func (s *Service) FetchContent(ctx context.Context, sink notify.Sink, url string) string {
	return s.call(ctx, ToolFetchContent, fetchFailure, func(ctx context.Context) (string, string, error) {
		text := s.fetch.Fetch(ctx, sink, url)
		if strings.HasPrefix(text, webfetch.ErrorPrefix) {
			return text, "error", nil
		}
		return text, "ok", nil
	})
}

// ScholarSearch runs a Scholar query and formats the records.
func (s *Service) ScholarSearch(ctx context.Context, sink notify.Sink, args ScholarArgs) string {
	return s.call(ctx, ToolScholarSearch, scholarFailure, func(ctx context.Context) (string, string, error) {
		sortBy, err := scholar.ParseSortBy(args.SortBy)
		if err != nil {
			return "", "", err
		}
		if args.StartIndex < 0 {
			return "", "", fmt.Errorf("start_index must not be negative, got %d", args.StartIndex)
		}
		q := scholar.Query{
			Text:       args.Query,
			YearLow:    args.YearLow,
			YearHigh:   args.YearHigh,
			SortBy:     sortBy,
			StartIndex: args.StartIndex,
		}
		records := s.scholar.Search(ctx, sink, q, args.MaxResults)
		return format.ScholarRecords(records, format.ParseStyle(args.Format)), outcome(len(records)), nil
	})
}

// call tags ctx with a fresh call ID and turns errors and panics from fn into
// a failure string built from failure.
func (s *Service) call(ctx context.Context, tool, failure string, fn func(context.Context) (text, outcome string, err error)) (out string) {
	start := time.Now()
	id := uuid.NewString()
	ctx = scraper.WithCallID(ctx, id)
	logger := s.logger.With("tool", tool, "call_id", id)

	result := "error"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			logger.Error("tool call panicked", "panic", r, "stack", string(debug.Stack()))
			out = fmt.Sprintf(failure, r)
		}
		metrics.RecordToolCall(tool, result, time.Since(start))
		logger.Debug("tool call finished", "outcome", result, "duration", time.Since(start))
	}()

	text, o, err := fn(ctx)
	if err != nil {
		logger.Error("tool call failed", "err", err)
		return fmt.Sprintf(failure, err)
	}
	result = o
	return text
}

func outcome(n int) string {
	if n == 0 {
		return "empty"
	}
	return "ok"
}
