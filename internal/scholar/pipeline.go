package scholar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/FranksOps/searchmcp/internal/notify"
)

const (
	// DefaultDelay paces consecutive records to stay under Scholar's radar.
	DefaultDelay      = 500 * time.Millisecond
	DefaultMaxResults = 10
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Provider Provider
	// Delay defaults to DefaultDelay; negative disables pacing.
	Delay time.Duration
	// Sleep replaces the ctx-aware timer, for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Pipeline is the scholar_search flow: enumerate, pace, enrich.
type Pipeline struct {
	provider Provider
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewPipeline builds a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		provider: cfg.Provider,
		delay:    cfg.Delay,
		sleep:    cfg.Sleep,
		logger:   cfg.Logger,
	}
}

// Search collects up to maxResults records. A failure after at least one
// record was collected stops enumeration, emits exactly one warning and
// returns what was gathered; earlier failures emit one error and return an
// empty slice.
func (p *Pipeline) Search(ctx context.Context, sink notify.Sink, q Query, maxResults int) []Record {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	sink.Info(fmt.Sprintf("Searching Google Scholar for: %s", q.Text))

	it, err := p.provider.Search(ctx, q)
	if err != nil {
		sink.Error(fmt.Sprintf("Unexpected error during Scholar search: %v", err))
		return []Record{}
	}

	records := []Record{}
	for len(records) < maxResults {
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.stop(sink, q, records, err)
		}

		if p.delay > 0 {
			if err := p.sleep(ctx, p.delay); err != nil {
				return p.stop(sink, q, records, err)
			}
		}

		bib, err := p.provider.Citation(ctx, rec)
		if err != nil {
			return p.stop(sink, q, records, err)
		}
		rec.BibTeX = bib
		records = append(records, rec)
	}

	sink.Info(fmt.Sprintf("Successfully found %d results on Google Scholar", len(records)))
	return records
}

func (p *Pipeline) stop(sink notify.Sink, q Query, records []Record, err error) []Record {
	p.logger.Debug("scholar enumeration stopped", "query", q.Text, "collected", len(records), "err", err)
	if len(records) == 0 {
		sink.Error(fmt.Sprintf("Scholar search for %s failed before any result was retrieved: %v", q.Text, err))
		return records
	}
	sink.Warning(fmt.Sprintf("Failed to fetch bib content for query %s: %v, the search results may be incomplete", q.Text, err))
	return records
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
